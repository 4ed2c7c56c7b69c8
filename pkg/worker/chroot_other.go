//go:build !linux

package worker

import "github.com/sandboxkernel/sandboxkernel/pkg/sandboxerr"

func chroot(dir string) error { return sandboxerr.New("chroot is only supported on linux") }
