//go:build linux

package worker

import "golang.org/x/sys/unix"

// chroot confines the process root to dir, requires CAP_SYS_CHROOT.
func chroot(dir string) error {
	if err := unix.Chroot(dir); err != nil {
		return err
	}
	return unix.Chdir("/")
}
