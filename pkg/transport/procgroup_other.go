//go:build !linux

package transport

import (
	"os/exec"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {}

// terminateProcessGroup falls back to killing the single process; platforms
// without process groups can't reach any children it spawned.
func terminateProcessGroup(cmd *exec.Cmd, grace time.Duration, waitErr <-chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	<-waitErr
}
