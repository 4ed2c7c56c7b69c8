//go:build !linux

package worker

import "github.com/sandboxkernel/sandboxkernel/pkg/policy"

// applyRlimits is a no-op off Linux: RLIMIT_CPU/AS/NOFILE have no portable
// equivalent, matching apply_linux_rlimits' own Linux-only scope.
func applyRlimits(p *policy.Policy) {}
