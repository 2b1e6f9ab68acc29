// Package runtime runs executors in a dedicated goroutine.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
)

type (
	// Executor executes a single iteration of a long running job. Execute
	// returns io.EOF when job is done.
	Executor interface {
		Start(context.Context) error
		Execute(context.Context) error
		Flush(context.Context) error
	}

	// StartFunc is a closure that triggers start hook.
	StartFunc func(ctx context.Context) error
	// FlushFunc is a closure that triggers flush hook.
	FlushFunc func(ctx context.Context) error
)

// Start calls the start hook.
func (fn StartFunc) Start(ctx context.Context) error {
	return callHook(ctx, fn)
}

// Flush calls the flush hook.
func (fn FlushFunc) Flush(ctx context.Context) error {
	return callHook(ctx, fn)
}

func callHook(ctx context.Context, hook func(context.Context) error) error {
	if hook == nil {
		return nil
	}
	return hook(ctx)
}

// Start the executor in a new goroutine. Returned channel receives errors
// and is closed when executor is done.
func Start(ctx context.Context, e Executor) <-chan error {
	errc := make(chan error, 2)
	go run(ctx, e, errc)
	return errc
}

func run(ctx context.Context, e Executor, errc chan<- error) {
	defer close(errc)
	if err := e.Start(ctx); err != nil {
		errc <- fmt.Errorf("error starting: %w", err)
		return
	}
	defer func() {
		if err := e.Flush(ctx); err != nil {
			errc <- fmt.Errorf("error flushing: %w", err)
		}
	}()

	var err error
	for err == nil {
		err = e.Execute(ctx)
	}
	if !errors.Is(err, io.EOF) {
		errc <- fmt.Errorf("error running: %w", err)
	}
}
