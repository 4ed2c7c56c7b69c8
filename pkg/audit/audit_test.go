package audit_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/audit"
	"github.com/sandboxkernel/sandboxkernel/pkg/result"
)

func TestInMemorySinkAccumulatesEvents(t *testing.T) {
	sink := audit.NewInMemorySink()
	require.NoError(t, sink.Emit(result.Event{Type: "stdout", Data: map[string]any{"chunk": "hi"}}))
	require.NoError(t, sink.Emit(result.Event{Type: "cap", Data: map[string]any{"name": "add"}}))
	assert.Len(t, sink.Snapshot(), 2)
}

func TestBuildUnknownKindErrors(t *testing.T) {
	_, err := audit.Build([]audit.Spec{{Kind: "bogus"}})
	require.Error(t, err)
}

func TestBuildFileSinkRequiresPath(t *testing.T) {
	_, err := audit.Build([]audit.Spec{{Kind: "file"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path")
}

type failingSink struct{}

func (failingSink) Emit(result.Event) error { return errors.New("boom") }

func TestStreamSwallowsSinkErrors(t *testing.T) {
	stream := audit.NewStream([]audit.AuditSink{failingSink{}})
	assert.NotPanics(t, func() {
		stream.Emit(result.Event{Type: "user"})
	})
}

func TestBuildMemoryThenStreamFansOut(t *testing.T) {
	sinks, err := audit.Build([]audit.Spec{{Kind: "memory"}})
	require.NoError(t, err)
	mem := sinks[0].(*audit.InMemorySink)
	stream := audit.NewStream(sinks)
	stream.Emit(result.Event{Type: "user", Data: map[string]any{"x": 1}})
	assert.Len(t, mem.Snapshot(), 1)
}
