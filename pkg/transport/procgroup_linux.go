//go:build linux

package transport

import (
	"os/exec"
	"syscall"
	"time"
)

// setProcessGroup puts the worker subprocess in its own process group so a
// timeout can terminate it and anything it spawned in one signal, mirroring
// _maybe_setsid.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateProcessGroup escalates SIGTERM to the whole process group, waits
// up to grace for a clean exit, then SIGKILLs, mirroring
// _terminate_process/_kill_process_group's escalation.
func terminateProcessGroup(cmd *exec.Cmd, grace time.Duration, waitErr <-chan error) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-waitErr:
		return
	case <-time.After(grace):
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	<-waitErr
}
