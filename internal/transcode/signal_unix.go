//go:build !windows

package transcode

import (
	"os/exec"
	"syscall"
)

// terminateGracefully sends SIGTERM, giving the child a chance to exit
// cleanly before the caller escalates to SIGKILL.
func terminateGracefully(cmd *exec.Cmd) {
	cmd.Process.Signal(syscall.SIGTERM)
}
