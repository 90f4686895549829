//go:build !windows

package lockfile

import (
	"errors"
	"syscall"
)

// pidAlive probes a pid with signal 0, which performs permission and
// existence checks without delivering anything. EPERM still means the
// process exists.
func pidAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
