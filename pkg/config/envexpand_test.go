package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnvSubstitutesBracedAndBareVars(t *testing.T) {
	t.Setenv("SANDBOXWORKER_PATH", "/usr/local/bin/sandboxworker")
	t.Setenv("HOST", "example.com")

	got := ExpandEnv([]byte("command: [${SANDBOXWORKER_PATH}]\nwork_dir: $HOST\n"))
	assert.Equal(t, "command: [/usr/local/bin/sandboxworker]\nwork_dir: example.com\n", string(got))
}

func TestExpandEnvMissingVarBecomesEmpty(t *testing.T) {
	got := ExpandEnv([]byte("mode: ${DOES_NOT_EXIST}external"))
	assert.Equal(t, "mode: external", string(got))
}

func TestExpandEnvNoVariablesPassesThrough(t *testing.T) {
	got := ExpandEnv([]byte("mode: inline\n"))
	assert.Equal(t, "mode: inline\n", string(got))
}
