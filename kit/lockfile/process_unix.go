//go:build !windows

package lockfile

import (
	"os"
	"syscall"
)

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 only checks that the process exists.
	return process.Signal(syscall.Signal(0)) == nil
}
