//go:build !windows

package sidecar

import "syscall"

// procAttr puts the child in its own process group so signals aimed at the
// supervisor's group never hit the server by accident.
func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// requestStop delivers SIGTERM to the child's whole process group so
// helper processes the server forked see the shutdown request too. When
// the group is already gone it falls back to the direct pid.
func requestStop(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGTERM)
	if err == syscall.ESRCH {
		err = syscall.Kill(pid, syscall.SIGTERM)
	}
	if err == syscall.ESRCH {
		return nil
	}
	return err
}

// forceKill sends SIGKILL to the process group. Killing only the direct
// pid would orphan grandchildren, and an orphan holding the log pipe
// keeps Wait from ever returning.
func forceKill(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		err = syscall.Kill(pid, syscall.SIGKILL)
	}
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
