package grace

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/erisprotocol/contracts-tokenfactory/kit/colorlog"
)

// ErrShutdownTimeout is returned by Run when the callback does not return
// within ShutdownTimeout after its context was cancelled.
var ErrShutdownTimeout = errors.New("grace: shutdown timed out")

func defaultSignals() []os.Signal {
	if runtime.GOOS == "windows" {
		return []os.Signal{os.Interrupt}
	}
	return []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}
}

type Options struct {
	ShutdownTimeout time.Duration // Default: 10 seconds
	Signals         []os.Signal   // Default: SIGHUP, SIGINT, SIGTERM, SIGQUIT
	Logger          *slog.Logger
}

// Run calls fn with a context that is cancelled when parent is done or one of
// the configured signals arrives. fn should return promptly once its context
// is cancelled. A nil error is returned when fn stops because of a signal.
func Run(parent context.Context, fn func(ctx context.Context) error, opts ...Options) error {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Logger == nil {
		o.Logger = colorlog.New("grace")
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
	if len(o.Signals) == 0 {
		o.Signals = defaultSignals()
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, o.Signals...)
	defer signal.Stop(sig)

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	var signalled bool
	select {
	case err := <-done:
		return err
	case s := <-sig:
		o.Logger.Info("Signal received, shutting down", "signal", s)
		signalled = true
	case <-ctx.Done():
	}
	cancel()

	select {
	case err := <-done:
		if signalled && errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-time.After(o.ShutdownTimeout):
		o.Logger.Warn("Graceful shutdown timed out", "timeout", o.ShutdownTimeout)
		return ErrShutdownTimeout
	}
}
