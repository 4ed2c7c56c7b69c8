// Package config loads RunnerConfig: how the sandbox façade talks to the
// worker process. This is deliberately NOT a policy-preset factory — a
// Policy's limits are the caller's concern (pkg/policy), not something
// this package derives from a YAML file.
package config

import "time"

// RunnerConfig describes one worker transport deployment: whether runs
// dispatch in-process or to an external command, and if external, how to
// invoke it.
type RunnerConfig struct {
	// Mode is "inline" or "external". Empty defaults to "inline".
	Mode string `yaml:"mode"`

	// Command is the external worker binary and its fixed arguments.
	// Required when Mode is "external".
	Command []string `yaml:"command,omitempty"`

	// Env lists extra environment variables passed to the worker process,
	// on top of the current process's own environment.
	Env map[string]string `yaml:"env,omitempty"`

	// WorkDir is the external worker process's working directory. Empty
	// means inherit the façade's own.
	WorkDir string `yaml:"work_dir,omitempty"`

	// GracePeriod is how long the transport waits after SIGTERM before
	// escalating to SIGKILL once a run's deadline is exceeded, e.g. "200ms".
	// Parsed by GracePeriodDuration; empty means the transport's own default.
	GracePeriod string `yaml:"grace_period,omitempty"`
}

// GracePeriodDuration parses GracePeriod, defaulting to 200ms when empty.
func (c *RunnerConfig) GracePeriodDuration() (time.Duration, error) {
	if c.GracePeriod == "" {
		return 200 * time.Millisecond, nil
	}
	return time.ParseDuration(c.GracePeriod)
}

// ConfigStats summarizes a loaded RunnerConfig for logging.
type ConfigStats struct {
	Mode        string
	CommandLen  int
	HasWorkDir  bool
	EnvVarCount int
}

func (c *RunnerConfig) Stats() ConfigStats {
	return ConfigStats{
		Mode:        c.effectiveMode(),
		CommandLen:  len(c.Command),
		HasWorkDir:  c.WorkDir != "",
		EnvVarCount: len(c.Env),
	}
}

func (c *RunnerConfig) effectiveMode() string {
	if c.Mode == "" {
		return "inline"
	}
	return c.Mode
}
