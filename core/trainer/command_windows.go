//go:build windows

package trainer

import (
	"os/exec"
)

func setNewProcessGroup(cmd *exec.Cmd) {
}

func terminateProcess(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
