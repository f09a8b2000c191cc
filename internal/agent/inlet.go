package agent

import (
	"errors"
	"io"
	"log/slog"

	"github.com/xfeldman/vros/internal/protocol"
)

// inletResult is one decoded host command or the decode error that
// replaced it.
type inletResult struct {
	cmd protocol.ToAgent
	err error
}

// startInlet reads host commands on a dedicated goroutine and hands each
// result to the loop over an unbuffered channel, so at most one command is
// in flight and order is preserved.
//
// The channel is closed when the host closes the pipe, when the pipe
// becomes unreadable, after a protocol violation has been delivered, or
// when done is closed. A read blocked on in is only released by closing in;
// the agent process exits shortly after the loop ends, which does that.
func startInlet(in io.Reader, maxFrameSize uint32, done <-chan struct{}, log *slog.Logger) <-chan inletResult {
	ch := make(chan inletResult)
	go func() {
		defer close(ch)
		rx := protocol.NewReceiver(in, maxFrameSize)
		for {
			cmd, err := rx.RecvToAgent()
			if err != nil && !protocol.IsViolation(err) {
				if !errors.Is(err, io.EOF) {
					log.Debug("command inlet unreadable", "err", err)
				}
				return
			}

			select {
			case ch <- inletResult{cmd: cmd, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}
