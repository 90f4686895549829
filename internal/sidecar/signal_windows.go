//go:build windows

package sidecar

import (
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// procAttr gives the child its own console process group so a control
// event can target it without reaching the supervisor.
func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// requestStop sends CTRL_BREAK to the child's process group, the closest
// Windows equivalent of SIGTERM for console services.
func requestStop(pid int) error {
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(pid))
}

// forceKill terminates the process. Windows has no group-wide SIGKILL
// equivalent, so only the direct child is terminated here.
func forceKill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
