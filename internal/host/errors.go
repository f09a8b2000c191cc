package host

import (
	"errors"
	"os/exec"
	"strconv"
)

// Sentinel errors for supervised agent sessions.
var (
	// ErrAgentExited indicates the agent terminated before completing the
	// handshake without reporting why.
	ErrAgentExited = errors.New("agent exited unexpectedly")

	// ErrProtocol indicates the agent sent something the host cannot
	// accept: an undecodable or oversized frame, or a message out of
	// order. The session is not recoverable.
	ErrProtocol = errors.New("agent protocol error")

	// ErrHandshakeTimeout indicates the agent sent nothing within
	// Options.HandshakeTimeout.
	ErrHandshakeTimeout = errors.New("agent handshake timed out")

	// ErrClosed indicates the session was ended by Close.
	ErrClosed = errors.New("agent session closed")
)

// ExitError represents an agent that exited with a non-zero status after
// a successful handshake. Code is -1 when the process was killed by a
// signal.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return "agent: " + e.Err.Error()
	}
	return "agent: exit status " + strconv.Itoa(e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// wrapExitError converts a non-zero *exec.ExitError to *ExitError.
// nil → nil, non-ExitError → passthrough, code 0 → nil.
func wrapExitError(err error) error {
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return err
	}
	code := ee.ExitCode()
	if code == 0 {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}
