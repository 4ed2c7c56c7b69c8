package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Load reads runner.yaml from configDir, optionally overlaying a local
// .env file first (for development — a deployed façade normally relies on
// the process environment alone), expands ${VAR}/$VAR references against
// the environment, and validates the result.
//
// Steps mirror the teacher's Initialize: load .env overlay, read file,
// expand env vars, parse YAML, validate. No defaults are written into the
// returned struct; an empty Mode is treated as "inline" by validate and
// Stats.
func Load(configDir string) (*RunnerConfig, error) {
	log := slog.With("config_dir", configDir)

	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Info("no .env overlay found, continuing with process environment", "path", envPath)
	} else {
		log.Info("loaded .env overlay", "path", envPath)
	}

	path := filepath.Join(configDir, "runner.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := ExpandEnv(raw)

	var cfg RunnerConfig
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	stats := cfg.Stats()
	log.Info("runner configuration loaded", "mode", stats.Mode, "command_len", stats.CommandLen)
	return &cfg, nil
}

func validate(cfg *RunnerConfig) error {
	switch cfg.effectiveMode() {
	case "inline":
		if len(cfg.Command) > 0 {
			return fmt.Errorf("mode is %q but command is set; command only applies to external mode", cfg.Mode)
		}
	case "external":
		if len(cfg.Command) == 0 {
			return fmt.Errorf("mode is \"external\" but command is empty")
		}
	default:
		return fmt.Errorf("unknown mode %q, want \"inline\" or \"external\"", cfg.Mode)
	}
	if cfg.GracePeriod != "" {
		if _, err := cfg.GracePeriodDuration(); err != nil {
			return fmt.Errorf("invalid grace_period %q: %w", cfg.GracePeriod, err)
		}
	}
	return nil
}
