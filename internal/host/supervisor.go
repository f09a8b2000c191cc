// Package host supervises the SteamVR agent: it spawns the agent binary,
// runs the handshake, and turns the agent's frame stream into ordered
// application updates for a Sink.
package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/xfeldman/vros/internal/config"
	"github.com/xfeldman/vros/internal/logstore"
	"github.com/xfeldman/vros/internal/protocol"
)

// DefaultExitGrace is how long the host keeps reading after the agent
// exits during the handshake.
const DefaultExitGrace = 2 * time.Second

// AgentPath returns the agent executable next to the running binary.
func AgentPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate host executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	name := config.AgentBinary
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(exe), name), nil
}

// Options configures Start.
type Options struct {
	// AgentPath is the agent executable. Empty means AgentPath().
	AgentPath string

	// Args are passed to the agent.
	Args []string

	// Env is appended to the host environment for the agent.
	Env []string

	// MaxFrameSize caps frames in both directions. Zero means
	// protocol.DefaultMaxFrameSize.
	MaxFrameSize uint32

	// HandshakeTimeout bounds the wait for the first message. Zero means
	// no limit beyond ctx.
	HandshakeTimeout time.Duration

	// ExitGrace is how long to keep reading after the agent exits during
	// the handshake, so an already-written InitializationError is not
	// lost. Zero means DefaultExitGrace.
	ExitGrace time.Duration

	// Sink receives application updates. Nil logs them.
	Sink Sink

	// Logger receives supervisor diagnostics and the agent's stderr at
	// debug level.
	Logger *slog.Logger

	// Diagnostics, when set, stores the agent's stderr and lifecycle lines.
	Diagnostics *logstore.Log

	// OnStart, when set, is called with the agent's process id once it is
	// running and before any message is read from it.
	OnStart func(pid int)
}

func (o *Options) setDefaults() error {
	if o.AgentPath == "" {
		p, err := AgentPath()
		if err != nil {
			return err
		}
		o.AgentPath = p
	}
	if o.ExitGrace <= 0 {
		o.ExitGrace = DefaultExitGrace
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Sink == nil {
		o.Sink = LogSink(o.Logger)
	}
	return nil
}

type frame struct {
	msg protocol.FromAgent
	err error
}

type sendRequest struct {
	msg    protocol.ToAgent
	result chan error
}

// Session is a running agent that has completed the handshake. Exactly one
// goroutine owns the child process and its pipes; the methods below talk
// to it.
type Session struct {
	opts Options
	log  *slog.Logger

	cmd    *exec.Cmd
	stdin  *os.File // host write end
	stdout *os.File // host read end
	tx     *protocol.Sender

	ctx    context.Context
	cancel context.CancelCauseFunc

	frames     chan frame
	sends      chan sendRequest
	stopPump   chan struct{}
	exited     chan struct{}
	waitErr    error
	stderrDone chan struct{}

	teardownOnce sync.Once
	done         chan struct{}
	err          error
}

// Start spawns the agent and waits for its handshake. It returns a running
// Session once the agent reports InitializationCompleted.
//
// If the agent reports InitializationError, Start returns it wrapped as
// "initialization error: ..."; errors.As recovers the
// protocol.InitializationError. If the agent exits without reporting,
// Start returns ErrAgentExited; if it sends anything else first,
// ErrProtocol. In every failure case the child has been killed and reaped
// and the pipes released.
//
// ctx bounds the handshake and the lifetime of the session.
func Start(ctx context.Context, opts Options) (*Session, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	s, err := spawn(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := s.handshake(ctx); err != nil {
		s.teardown()
		s.diag("handshake failed: " + err.Error())
		s.log.Warn("agent handshake failed", "err", err)
		s.cancel(err)
		return nil, err
	}

	s.diag("handshake completed")
	s.log.Info("agent ready")
	go s.run()
	return s, nil
}

func spawn(ctx context.Context, opts Options) (*Session, error) {
	// os.Pipe rather than cmd.StdoutPipe: Wait must not close the read end
	// while frames written before exit are still unread.
	childIn, hostIn, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create agent stdin: %w", err)
	}
	hostOut, childOut, err := os.Pipe()
	if err != nil {
		closeAll(childIn, hostIn)
		return nil, fmt.Errorf("create agent stdout: %w", err)
	}
	hostErr, childErr, err := os.Pipe()
	if err != nil {
		closeAll(childIn, hostIn, hostOut, childOut)
		return nil, fmt.Errorf("create agent stderr: %w", err)
	}

	cmd := exec.Command(opts.AgentPath, opts.Args...)
	cmd.Stdin = childIn
	cmd.Stdout = childOut
	cmd.Stderr = childErr
	cmd.Env = append(os.Environ(), opts.Env...)
	setProcAttr(cmd)

	startErr := cmd.Start()
	// The child holds its own copies now.
	closeAll(childIn, childOut, childErr)
	if startErr != nil {
		closeAll(hostIn, hostOut, hostErr)
		return nil, fmt.Errorf("start agent %s: %w", opts.AgentPath, startErr)
	}

	sctx, cancel := context.WithCancelCause(ctx)
	s := &Session{
		opts:       opts,
		log:        opts.Logger.With("agent_pid", cmd.Process.Pid),
		cmd:        cmd,
		stdin:      hostIn,
		stdout:     hostOut,
		tx:         protocol.NewSender(hostIn, opts.MaxFrameSize),
		ctx:        sctx,
		cancel:     cancel,
		frames:     make(chan frame),
		sends:      make(chan sendRequest),
		stopPump:   make(chan struct{}),
		exited:     make(chan struct{}),
		stderrDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.diag(fmt.Sprintf("agent started: %s (pid %d)", opts.AgentPath, cmd.Process.Pid))
	if opts.OnStart != nil {
		opts.OnStart(cmd.Process.Pid)
	}

	go func() {
		s.waitErr = wrapExitError(cmd.Wait())
		close(s.exited)
	}()
	go s.copyStderr(hostErr)
	go s.pump()
	return s, nil
}

// pump reads frames in order and hands them to the owner one at a time.
// It stops after the first error.
func (s *Session) pump() {
	rx := protocol.NewReceiver(s.stdout, s.opts.MaxFrameSize)
	for {
		msg, err := rx.RecvFromAgent()
		select {
		case s.frames <- frame{msg: msg, err: err}:
		case <-s.stopPump:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) copyStderr(r *os.File) {
	defer close(s.stderrDone)
	defer r.Close()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 4096), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if s.opts.Diagnostics != nil {
			s.opts.Diagnostics.Append(logstore.StreamStderr, line)
		}
		s.log.Debug("agent", "line", line)
	}
}

func (s *Session) diag(line string) {
	if s.opts.Diagnostics != nil {
		s.opts.Diagnostics.Append(logstore.StreamSystem, line)
	}
}

func (s *Session) handshake(ctx context.Context) error {
	var timeout <-chan time.Time
	if s.opts.HandshakeTimeout > 0 {
		t := time.NewTimer(s.opts.HandshakeTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case f := <-s.frames:
		return s.handshakeFrame(f)
	case <-s.exited:
		return s.exitedDuringHandshake()
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timeout:
		return fmt.Errorf("%w after %s", ErrHandshakeTimeout, s.opts.HandshakeTimeout)
	}
}

func (s *Session) handshakeFrame(f frame) error {
	if f.err != nil {
		if errors.Is(f.err, io.EOF) {
			// Output closed before any message: the agent is exiting.
			select {
			case <-s.exited:
			case <-time.After(s.opts.ExitGrace):
			}
			return s.agentExited()
		}
		return s.readError(f.err)
	}

	switch msg := f.msg.(type) {
	case protocol.InitializationCompleted:
		return nil
	case protocol.InitializationError:
		return fmt.Errorf("initialization error: %w", msg)
	default:
		return fmt.Errorf("%w: expected handshake, got %s", ErrProtocol, protocol.Describe(msg))
	}
}

// exitedDuringHandshake gives frames the agent wrote before exiting a
// chance to arrive. Only an InitializationError is passed through; a frame
// that fails to decode is still a protocol error.
func (s *Session) exitedDuringHandshake() error {
	grace := time.NewTimer(s.opts.ExitGrace)
	defer grace.Stop()

	select {
	case f := <-s.frames:
		if f.err != nil && !errors.Is(f.err, io.EOF) {
			return s.readError(f.err)
		}
		if msg, ok := f.msg.(protocol.InitializationError); ok && f.err == nil {
			return fmt.Errorf("initialization error: %w", msg)
		}
	case <-grace.C:
	}
	return s.agentExited()
}

func (s *Session) agentExited() error {
	select {
	case <-s.exited:
		if s.waitErr != nil {
			return fmt.Errorf("%w: %w", ErrAgentExited, s.waitErr)
		}
	default:
	}
	return ErrAgentExited
}

func (s *Session) readError(err error) error {
	if protocol.IsViolation(err) {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return fmt.Errorf("read agent output: %w", err)
}

// run is the owner goroutine of a session past the handshake.
func (s *Session) run() {
	err := s.serve()
	s.teardown()
	s.err = err
	s.cancel(err)

	if err != nil && !errors.Is(err, ErrClosed) {
		s.log.Warn("agent session ended", "err", err)
		s.diag("session ended: " + err.Error())
	} else {
		s.log.Info("agent session ended")
		s.diag("session ended")
	}
	close(s.done)
}

func (s *Session) serve() error {
	for {
		select {
		case f := <-s.frames:
			if f.err != nil {
				if errors.Is(f.err, io.EOF) {
					return s.awaitExit()
				}
				return s.readError(f.err)
			}
			switch msg := f.msg.(type) {
			case protocol.ApplicationName:
				if err := s.opts.Sink.Publish(s.ctx, msg); err != nil {
					s.log.Warn("sink rejected application update", "update", msg.String(), "err", err)
				}
			default:
				return fmt.Errorf("%w: duplicate handshake %s", ErrProtocol, protocol.Describe(msg))
			}
		case req := <-s.sends:
			req.result <- s.tx.SendToAgent(req.msg)
		case <-s.ctx.Done():
			return context.Cause(s.ctx)
		}
	}
}

// awaitExit runs after the agent closed its output. A clean exit ends the
// session without error.
func (s *Session) awaitExit() error {
	select {
	case <-s.exited:
		return s.waitErr
	case <-s.ctx.Done():
		return context.Cause(s.ctx)
	}
}

// teardown kills the agent if it is still running, reaps it, and releases
// the pipes. It is safe to call more than once.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		select {
		case <-s.exited:
		default:
			if err := killProcess(s.cmd.Process); err != nil {
				s.log.Warn("kill agent", "err", err)
			}
			<-s.exited
		}
		close(s.stopPump)
		closeAll(s.stdin, s.stdout)

		select {
		case <-s.stderrDone:
		case <-time.After(s.opts.ExitGrace):
		}
	})
}

// PID returns the agent's process id.
func (s *Session) PID() int { return s.cmd.Process.Pid }

// Done is closed when the session has ended and the agent has been reaped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session ends and returns why: nil for a clean
// agent exit, *ExitError for a non-zero exit, ErrProtocol for a
// desynchronized stream, ErrClosed after Close.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Err returns the session's error once Done is closed, nil before.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close kills the agent if it is still running and waits for the session
// to end. It is idempotent.
func (s *Session) Close() error {
	s.cancel(ErrClosed)
	<-s.done
	return nil
}

// Send delivers a command to the agent through the owner goroutine.
func (s *Session) Send(ctx context.Context, msg protocol.ToAgent) error {
	req := sendRequest{msg: msg, result: make(chan error, 1)}
	select {
	case s.sends <- req:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
}
