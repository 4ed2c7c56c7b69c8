//go:build linux

package worker

import (
	"golang.org/x/sys/unix"

	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
)

// applyRlimits sets RLIMIT_CPU/RLIMIT_AS/RLIMIT_NOFILE for the current
// process, mirroring apply_linux_rlimits. Every setrlimit failure is
// swallowed: a policy that asks for a limit the host won't grant should not
// stop the run, it should run unconfined on that axis.
func applyRlimits(p *policy.Policy) {
	if p.MaxCPUSeconds > 0 {
		cur := uint64(p.MaxCPUSeconds)
		_ = unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: cur, Max: cur})
	}
	if p.MaxMemoryMB > 0 {
		cur := uint64(p.MaxMemoryMB) * 1024 * 1024
		_ = unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{Cur: cur, Max: cur})
	}
	if p.MaxOpenFiles > 0 {
		cur := uint64(p.MaxOpenFiles)
		_ = unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: cur, Max: cur})
	}
}
