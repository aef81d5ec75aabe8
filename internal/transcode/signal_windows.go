//go:build windows

package transcode

import "os/exec"

// terminateGracefully has no SIGTERM equivalent on Windows; the watcher's
// subsequent SIGKILL-after-2s escalation collapses to an immediate kill.
func terminateGracefully(cmd *exec.Cmd) {
	cmd.Process.Kill()
}
