//go:build !windows

package trainer

import (
	"os/exec"
	"syscall"
)

// setNewProcessGroup places the driver in its own process group so that
// termination signals reach any workers the backend forks.
func setNewProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcess(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}
