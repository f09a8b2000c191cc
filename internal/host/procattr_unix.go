//go:build unix && !linux

package host

import (
	"os/exec"
	"syscall"
)

// setProcAttr puts the agent in its own process group. Pdeathsig is not
// available here; the host kills the group on Close.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
