package host

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xfeldman/vros/internal/protocol"
)

// Sink receives application updates in the order the agent emitted them.
// Publish is called from the session's owner goroutine; a slow sink delays
// the next frame, it never reorders them. An error is logged and the
// session continues.
type Sink interface {
	Publish(ctx context.Context, msg protocol.ApplicationName) error
}

// FuncSink adapts a function to Sink.
type FuncSink func(ctx context.Context, msg protocol.ApplicationName) error

func (f FuncSink) Publish(ctx context.Context, msg protocol.ApplicationName) error {
	return f(ctx, msg)
}

// ChanSink delivers updates to a channel, blocking until the receiver is
// ready or ctx is done.
type ChanSink chan<- protocol.ApplicationName

func (c ChanSink) Publish(ctx context.Context, msg protocol.ApplicationName) error {
	select {
	case c <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink returns a Sink that logs every update.
func LogSink(log *slog.Logger) Sink {
	return FuncSink(func(ctx context.Context, msg protocol.ApplicationName) error {
		if msg.Application == nil {
			log.InfoContext(ctx, "scene application cleared")
			return nil
		}
		log.InfoContext(ctx, "scene application changed",
			"key", msg.Application.Key, "name", msg.Application.Name)
		return nil
	})
}

// MultiSink publishes to every sink in order. All sinks see every update;
// their errors are joined.
func MultiSink(sinks ...Sink) Sink {
	return FuncSink(func(ctx context.Context, msg protocol.ApplicationName) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Publish(ctx, msg); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
