package worker

import (
	"sync"
	"time"

	"github.com/sandboxkernel/sandboxkernel/pkg/audit"
	"github.com/sandboxkernel/sandboxkernel/pkg/result"
)

// EventWriter is a bounded stdout/stderr sink installed as sys.stdout/
// sys.stderr-equivalent: print() and any captured stderr write through it.
// Write always reports the full length requested, even when the chunk is
// silently truncated past the byte budget — a caller must never see a
// short write and retry.
type EventWriter struct {
	mu      sync.Mutex
	max     int
	kind    string
	buf     []byte
	clock   *Clock
	t0      time.Time
	stream  *audit.Stream
}

// NewEventWriter builds an EventWriter capped at max bytes (0 means
// unbounded), emitting one "stdout"/"stderr" Event per accepted write.
func NewEventWriter(max int, kind string, clock *Clock, stream *audit.Stream) *EventWriter {
	return &EventWriter{max: max, kind: kind, clock: clock, t0: clock.Now(), stream: stream}
}

func (w *EventWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	room := len(p)
	if w.max > 0 {
		if len(w.buf) >= w.max {
			room = 0
		} else if len(w.buf)+room > w.max {
			room = w.max - len(w.buf)
		}
	}
	if room > 0 {
		chunk := p[:room]
		w.buf = append(w.buf, chunk...)
		w.stream.Emit(result.Event{
			TsMs: int64(w.clock.Now().Sub(w.t0) / time.Millisecond),
			Type: w.kind,
			Data: map[string]any{"chunk": string(chunk)},
		})
	}
	return len(p), nil
}

// String returns the accumulated, bounded buffer.
func (w *EventWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}

// Len returns the UTF-8 byte length of the accumulated buffer.
func (w *EventWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}
