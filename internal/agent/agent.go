// Package agent implements the SteamVR agent: the child process that owns
// the runtime session, turns runtime events into protocol messages on
// stdout, and drains host commands from stdin at a fixed cadence.
//
// Lifecycle: Initializing → Running → ShuttingDown. The runtime session is
// released on every exit path.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/xfeldman/vros/internal/openvr"
	"github.com/xfeldman/vros/internal/protocol"
)

// DefaultTickRate is the loop frequency in Hz.
const DefaultTickRate = 120

// ErrInitialization wraps every failure to open the runtime session.
var ErrInitialization = errors.New("agent: runtime session unavailable")

// ErrOutletClosed is returned when a message can no longer be written to
// the host. The host has gone away and there is nothing left to serve.
var ErrOutletClosed = errors.New("agent: host output closed")

// Options configures Run.
type Options struct {
	// TickRate is the loop frequency in Hz. Zero means DefaultTickRate.
	TickRate int

	// MaxFrameSize caps frames in both directions. Zero means
	// protocol.DefaultMaxFrameSize.
	MaxFrameSize uint32

	// NameBufferSize is the first buffer size tried for display names.
	// Zero means DefaultNameBufferSize.
	NameBufferSize int

	// Logger receives diagnostics. It must not write to the output stream.
	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.TickRate <= 0 {
		o.TickRate = DefaultTickRate
	}
	if o.NameBufferSize <= 0 {
		o.NameBufferSize = DefaultNameBufferSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// TickPeriod returns the duration of one loop iteration.
func (o Options) TickPeriod() time.Duration {
	rate := o.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return time.Second / time.Duration(rate)
}

// Run opens a runtime session and serves the host until the runtime asks
// to quit, the host closes the command pipe, or ctx is cancelled; all three
// return nil.
//
// If the session cannot be opened, Run reports the refusal to the host as
// InitializationError and returns ErrInitialization wrapping the open error
// (a *openvr.InitError when the runtime refused). A host command that cannot be decoded ends Run with
// the decode error; a failed write ends it with ErrOutletClosed.
func Run(ctx context.Context, open openvr.Opener, in io.Reader, out io.Writer, opts Options) error {
	opts.setDefaults()
	log := opts.Logger

	// The runtime API is bound to the thread that opened it.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	done := make(chan struct{})
	defer close(done)
	inlet := startInlet(in, opts.MaxFrameSize, done, log)

	tx := protocol.NewSender(out, opts.MaxFrameSize)

	opened := false
	err := openvr.WithSession(open, func(sess openvr.Session) error {
		opened = true
		l := &loop{
			sess:     sess,
			tx:       tx,
			inlet:    inlet,
			period:   opts.TickPeriod(),
			nameSize: opts.NameBufferSize,
			log:      log,
		}
		return l.run(ctx)
	})
	if opened {
		log.Debug("runtime session released")
		return err
	}

	msg := initializationError(err)
	log.Error("runtime session unavailable", "name", msg.Name, "code", msg.Code, "err", err)
	err = fmt.Errorf("%w: %w", ErrInitialization, err)
	if sendErr := tx.SendFromAgent(msg); sendErr != nil {
		return errors.Join(err, fmt.Errorf("%w: %w", ErrOutletClosed, sendErr))
	}
	return err
}

func initializationError(err error) protocol.InitializationError {
	var initErr *openvr.InitError
	if errors.As(err, &initErr) {
		return protocol.InitializationError{Name: initErr.Name, Code: initErr.Code}
	}
	return protocol.InitializationError{Name: err.Error(), Code: openvr.InitErrorUnknown}
}

type state int

const (
	stateRunning state = iota
	stateShuttingDown
)

// loop is the Running state. It is confined to the goroutine that opened
// the session.
type loop struct {
	sess     openvr.Session
	tx       *protocol.Sender
	inlet    <-chan inletResult
	period   time.Duration
	nameSize int
	log      *slog.Logger
}

func (l *loop) run(ctx context.Context) error {
	if err := l.send(protocol.InitializationCompleted{}); err != nil {
		return err
	}
	l.log.Info("runtime session established", "tick", l.period)

	if err := l.publishApplication(); err != nil {
		return err
	}

	for {
		next, err := l.tick(ctx)
		if err != nil {
			return err
		}
		if next == stateShuttingDown {
			return nil
		}
	}
}

// tick drains every event pending at the start of the tick, then waits on
// the command inlet for whatever remains of the tick period.
func (l *loop) tick(ctx context.Context) (state, error) {
	start := time.Now()

	var raw openvr.RawEvent
	for l.sess.PollNextEvent(&raw) {
		switch ev := openvr.DecodeEvent(&raw).(type) {
		case openvr.SceneApplicationChanged:
			l.log.Debug("scene application changed", "pid", ev.PID, "old_pid", ev.OldPID)
			if err := l.publishApplication(); err != nil {
				return stateShuttingDown, err
			}
		case openvr.EnterStandby, openvr.LeaveStandby:
			// Reserved for standby signaling.
		case openvr.Quit:
			l.log.Info("runtime requested quit", "forced", ev.Forced, "connection_lost", ev.ConnectionLost)
			l.sess.AcknowledgeQuit()
			return stateShuttingDown, nil
		}
	}

	return l.wait(ctx, max(l.period-time.Since(start), 0))
}

func (l *loop) wait(ctx context.Context, remaining time.Duration) (state, error) {
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	for {
		select {
		case res, ok := <-l.inlet:
			if !ok {
				l.log.Info("command inlet closed, shutting down")
				return stateShuttingDown, nil
			}
			if res.err != nil {
				return stateShuttingDown, fmt.Errorf("command inlet: %w", res.err)
			}
			if err := l.dispatch(res.cmd); err != nil {
				return stateShuttingDown, err
			}
		case <-timer.C:
			return stateRunning, nil
		case <-ctx.Done():
			l.log.Info("shutdown requested", "cause", context.Cause(ctx))
			return stateShuttingDown, nil
		}
	}
}

// dispatch executes one host command.
func (l *loop) dispatch(cmd protocol.ToAgent) error {
	switch cmd.(type) {
	default:
		return fmt.Errorf("%w: %T", protocol.ErrUnknownVariant, cmd)
	}
}

// publishApplication resolves the scene application and reports it. A
// failed lookup is logged and the update skipped.
func (l *loop) publishApplication() error {
	app, err := ResolveApplication(l.sess, l.nameSize)
	if err != nil {
		l.log.Warn("application lookup failed", "err", err)
		return nil
	}
	return l.send(protocol.ApplicationName{Application: app})
}

func (l *loop) send(msg protocol.FromAgent) error {
	if err := l.tx.SendFromAgent(msg); err != nil {
		return fmt.Errorf("%w: %w", ErrOutletClosed, err)
	}
	l.log.Debug("sent", "message", protocol.Describe(msg))
	return nil
}
