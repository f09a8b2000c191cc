//go:build unix

package host

import (
	"errors"
	"os"
	"syscall"
)

// killProcess sends SIGKILL to the agent's process group, falling back to
// the process itself.
func killProcess(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err == nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
