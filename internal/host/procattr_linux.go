//go:build linux

package host

import (
	"os/exec"
	"syscall"
)

// setProcAttr puts the agent in its own process group and has the kernel
// kill it when the host dies.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
