package runtime

import (
	"context"
	"io"
	"time"
)

// Loop executes a pass every interval and every time wake channel
// receives. It stops when context is done.
type Loop struct {
	Interval time.Duration
	Wake     <-chan struct{}
	PassFunc func() error
	StartFunc
	FlushFunc

	ticker *time.Ticker
}

// Run starts the loop.
func (l *Loop) Run(ctx context.Context) <-chan error {
	return Start(ctx, l)
}

// Start calls the start hook and starts the ticker.
func (l *Loop) Start(ctx context.Context) error {
	if err := l.StartFunc.Start(ctx); err != nil {
		return err
	}
	l.ticker = time.NewTicker(l.Interval)
	return nil
}

// Execute waits for the next tick and executes a single pass. io.EOF is
// returned if context is done.
func (l *Loop) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return io.EOF
	case <-l.ticker.C:
	case <-l.Wake:
	}
	return l.PassFunc()
}

// Flush stops the ticker and calls the flush hook.
func (l *Loop) Flush(ctx context.Context) error {
	if l.ticker != nil {
		l.ticker.Stop()
	}
	return l.FlushFunc.Flush(ctx)
}
