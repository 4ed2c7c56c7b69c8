// Package audit implements the pluggable event sinks a run's façade
// attaches alongside the in-run event list (§5 supplemented feature):
// every captured stdout/stderr and capability event is mirrored to
// zero or more AuditSinks as it is emitted.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sandboxkernel/sandboxkernel/pkg/result"
)

// AuditSink receives a copy of every Event as it is emitted. Emit must not
// panic; a sink that fails should report it some other way (log, metric)
// rather than aborting the run.
type AuditSink interface {
	Emit(event result.Event) error
}

// InMemorySink accumulates every emitted event. Like any live sink it
// cannot cross a process boundary, so the External transport rejects a
// request carrying one when the request is executed.
type InMemorySink struct {
	mu     sync.Mutex
	Events []result.Event
}

func NewInMemorySink() *InMemorySink { return &InMemorySink{} }

func (s *InMemorySink) Emit(event result.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, event)
	return nil
}

// Snapshot returns a copy of the events recorded so far.
func (s *InMemorySink) Snapshot() []result.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]result.Event, len(s.Events))
	copy(out, s.Events)
	return out
}

// StdoutSink writes one JSON line per event to os.Stdout, mirroring the
// original's StdoutAuditSink.
type StdoutSink struct{}

func (StdoutSink) Emit(event result.Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(b))
	return err
}

// FileSink appends one JSON line per event to a file at Path.
type FileSink struct {
	Path string
}

func (s FileSink) Emit(event result.Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(b, '\n'))
	return err
}

// Spec describes one sink the façade should build, the wire form of
// AuditSinkSpec. Kind is "memory", "stdout", or "file"; Options carries
// kind-specific settings (e.g. Options["path"] for "file").
type Spec struct {
	Kind    string         `json:"kind"`
	Options map[string]any `json:"options,omitempty"`
}

// Build constructs the sinks described by specs, in order.
func Build(specs []Spec) ([]AuditSink, error) {
	sinks := make([]AuditSink, 0, len(specs))
	for _, s := range specs {
		switch s.Kind {
		case "memory":
			sinks = append(sinks, NewInMemorySink())
		case "stdout":
			sinks = append(sinks, StdoutSink{})
		case "file":
			path, _ := s.Options["path"].(string)
			if path == "" {
				return nil, fmt.Errorf("file sink requires options.path")
			}
			sinks = append(sinks, FileSink{Path: path})
		default:
			return nil, fmt.Errorf("unknown audit sink kind: %q", s.Kind)
		}
	}
	return sinks, nil
}

// Stream fans one Event out to every attached sink, swallowing individual
// sink failures so a broken audit destination never fails the run.
type Stream struct {
	sinks []AuditSink
}

func NewStream(sinks []AuditSink) *Stream { return &Stream{sinks: sinks} }

func (s *Stream) Emit(event result.Event) {
	for _, sink := range s.sinks {
		func() {
			defer func() { recover() }()
			_ = sink.Emit(event)
		}()
	}
}
