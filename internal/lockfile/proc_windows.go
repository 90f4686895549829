//go:build windows

package lockfile

import (
	"golang.org/x/sys/windows"
)

// stillActive is the exit code reported for processes that have not exited.
const stillActive = 259

// pidAlive queries the process handle for its exit code; a process that
// reports STILL_ACTIVE is alive. The query right carries no side effects.
func pidAlive(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var code uint32
	if err := windows.GetExitCodeProcess(handle, &code); err != nil {
		return false
	}
	return code == stillActive
}
