package worker

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
	"github.com/sandboxkernel/sandboxkernel/pkg/sandboxerr"
)

var allowedSeccompActions = map[string]struct{}{
	"SCMP_ACT_ALLOW":       {},
	"SCMP_ACT_ERRNO":       {},
	"SCMP_ACT_KILL":        {},
	"SCMP_ACT_TRAP":        {},
	"SCMP_ACT_LOG":         {},
	"SCMP_ACT_KILL_PROCESS": {},
	"SCMP_ACT_KILL_THREAD":  {},
}

// validateSeccompProfile checks the shape of a decoded seccomp profile
// document without installing a syscall filter, mirroring
// validate_seccomp_profile.
func validateSeccompProfile(profile map[string]any) error {
	def, ok := profile["defaultAction"].(string)
	if !ok {
		return sandboxerr.New("seccomp profile missing defaultAction")
	}
	if _, ok := allowedSeccompActions[def]; !ok {
		return sandboxerr.New("seccomp defaultAction invalid")
	}
	rawRules, ok := profile["syscalls"].([]any)
	if !ok {
		return sandboxerr.New("seccomp syscalls must be a list")
	}
	for _, r := range rawRules {
		rule, ok := r.(map[string]any)
		if !ok {
			return sandboxerr.New("seccomp syscall rule must be dict")
		}
		action := "SCMP_ACT_ALLOW"
		if a, ok := rule["action"].(string); ok {
			action = a
		}
		if _, ok := allowedSeccompActions[action]; !ok {
			return sandboxerr.New("seccomp syscall action invalid")
		}
		names, ok := rule["names"].([]any)
		if !ok || len(names) == 0 {
			return sandboxerr.New("seccomp syscall names must be list")
		}
		for _, n := range names {
			s, ok := n.(string)
			if !ok || s == "" {
				return sandboxerr.New("seccomp syscall name invalid")
			}
		}
	}
	return nil
}

// applyOSSandbox applies cfg's filesystem confinement and validates any
// configured seccomp profile, mirroring apply_os_sandbox. No corpus example
// wires a syscall-filtering library onto this concern (the original itself
// treats its seccomp binding as optional, degrading to a no-op when
// unavailable) — syscall filtering is therefore validated but never
// installed here; SeccompEnforce still fails the run, matching
// apply_seccomp's own behavior when its binding is missing.
func applyOSSandbox(cfg *policy.OSSandboxConfig) error {
	if cfg == nil {
		return nil
	}
	if cfg.FSMode != "none" && cfg.FSMode != "tmp" && cfg.FSMode != "ro" {
		return sandboxerr.New("unknown fs_mode: " + cfg.FSMode)
	}
	if cfg.SeccompProfile != "" {
		var profile map[string]any
		if err := json.Unmarshal([]byte(cfg.SeccompProfile), &profile); err != nil {
			return sandboxerr.New("seccomp profile is not valid JSON")
		}
		if err := validateSeccompProfile(profile); err != nil {
			return err
		}
	}
	if err := applyFSSandbox(cfg); err != nil {
		return err
	}
	if cfg.SeccompEnforce {
		return sandboxerr.New("seccomp not available")
	}
	return nil
}

func applyFSSandbox(cfg *policy.OSSandboxConfig) error {
	switch cfg.FSMode {
	case "", "none":
		return nil
	case "tmp":
		tmp := cfg.TmpDir
		if tmp == "" {
			tmp = filepath.Join(os.TempDir(), "sandbox_"+uuid.NewString())
			if err := os.Mkdir(tmp, 0o700); err != nil {
				if cfg.FSEnforce {
					return err
				}
				return nil
			}
		}
		os.Setenv("TMPDIR", tmp)
		if err := os.Chdir(tmp); err != nil && cfg.FSEnforce {
			return err
		}
		if cfg.FSChroot {
			if err := chroot(tmp); err != nil && cfg.FSEnforce {
				return sandboxerr.New("fs_chroot failed")
			}
		}
		return nil
	case "ro":
		if cfg.FSEnforce {
			return sandboxerr.New("remount ro failed")
		}
		return nil
	default:
		if cfg.FSEnforce {
			return sandboxerr.New("unknown fs_mode: " + cfg.FSMode)
		}
		return nil
	}
}
