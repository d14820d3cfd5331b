//go:build windows

package daemonstate

import (
	"os"

	"golang.org/x/sys/windows"
)

// GracefulSignals returns the OS signals a running daemon should treat
// as a request to shut down cleanly. SIGTERM does not exist on Windows.
func GracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// ProcessIsAlive checks if a process is still running on Windows by
// opening a handle and checking the exit code.
func ProcessIsAlive(proc *os.Process) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(proc.Pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	// STILL_ACTIVE (259) means the process has not exited yet.
	return exitCode == 259
}

// SendGracefulStop terminates the process on Windows. Windows has no
// SIGTERM; Kill() calls TerminateProcess.
func SendGracefulStop(proc *os.Process) error {
	return proc.Kill()
}
