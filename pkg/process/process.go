// SPDX-License-Identifier: MPL-2.0

package process

import (
	"context"
	"sync"
)

type (
	// Producer is the body of a Process. It may call emit any number of times
	// before returning, and must not retain emit after it returns.
	Producer[S, T any] func(ctx context.Context, emit func(S)) (T, error)

	// Process is an operation that reports zero or more states of type S and
	// then completes with exactly one result of type T or an error. A Process
	// is a description; nothing runs until Run (or a consumer built on it) is
	// called, and each call runs it afresh. FromEvents is the one exception.
	Process[S, T any] struct {
		produce Producer[S, T]
	}

	// emitter delivers states to a single observer one at a time and drops
	// anything emitted after the run has finished.
	emitter[S any] struct {
		mu   sync.Mutex
		done bool
		fn   func(S)
	}
)

// New wraps fn as a Process.
func New[S, T any](fn Producer[S, T]) Process[S, T] {
	return Process[S, T]{produce: fn}
}

// Just returns a Process that emits states in order and then result.
func Just[S, T any](result T, states ...S) Process[S, T] {
	return New(func(_ context.Context, emit func(S)) (T, error) {
		for _, s := range states {
			emit(s)
		}
		return result, nil
	})
}

// Fail returns a Process that fails immediately with err.
func Fail[S, T any](err error) Process[S, T] {
	return New(func(context.Context, func(S)) (T, error) {
		var zero T
		return zero, err
	})
}

func (e *emitter[S]) emit(s S) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done || e.fn == nil {
		return
	}
	e.fn(s)
}

func (e *emitter[S]) finish() {
	e.mu.Lock()
	e.done = true
	e.mu.Unlock()
}

// run invokes the producer directly with emit. Combinators use it so a whole
// pipeline shares a single serialized emitter.
func (p Process[S, T]) run(ctx context.Context, emit func(S)) (T, error) {
	if p.produce == nil {
		var zero T
		return zero, &ProtocolError{Violation: ViolationNoResult}
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return p.produce(ctx, emit)
}

// Run executes the process, passing each state to onState, and returns the
// result. onState is never called concurrently and never after Run returns.
// A nil onState discards states.
func (p Process[S, T]) Run(ctx context.Context, onState func(S)) (T, error) {
	e := &emitter[S]{fn: onState}
	defer e.finish()
	return p.run(ctx, e.emit)
}

// States runs the process and returns every state it emitted. The error is
// the process's failure, if any.
func (p Process[S, T]) States(ctx context.Context) ([]S, error) {
	var states []S
	_, err := p.Run(ctx, func(s S) { states = append(states, s) })
	return states, err
}

// Result runs the process, discarding states, and returns its result.
func (p Process[S, T]) Result(ctx context.Context) (T, error) {
	return p.Run(ctx, nil)
}
