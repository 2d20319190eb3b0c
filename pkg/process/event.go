// SPDX-License-Identifier: MPL-2.0

package process

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrProtocol is the sentinel error wrapped by ProtocolError.
	ErrProtocol = errors.New("process protocol violation")

	// ErrConsumed is returned when a process built by FromEvents runs again
	// after its stream has been read.
	ErrConsumed = errors.New("event stream already consumed")
)

// Violation names a way an event stream can break the state-then-result rule.
type Violation string

const (
	// ViolationMultipleResults means a second result arrived.
	ViolationMultipleResults Violation = "more than one result"
	// ViolationNoResult means the stream ended without a result.
	ViolationNoResult Violation = "no result"
	// ViolationStateAfterResult means a state arrived after the result.
	ViolationStateAfterResult Violation = "state after result"
)

type (
	// ProtocolError reports an event stream that did not follow the
	// states-then-one-result contract. It indicates a bug in whatever produced
	// the stream, not a runtime condition.
	ProtocolError struct {
		Violation Violation
	}

	eventKind int

	// Event is one element of a process's stream: a state, the result, or a
	// terminal error.
	Event[S, T any] struct {
		kind   eventKind
		state  S
		result T
		err    error
	}
)

const (
	kindState eventKind = iota
	kindResult
	kindError
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("process protocol violation: %s", e.Violation)
}

// Unwrap returns ErrProtocol for errors.Is() compatibility.
func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// StateEvent builds a state event.
func StateEvent[S, T any](s S) Event[S, T] { return Event[S, T]{kind: kindState, state: s} }

// ResultEvent builds a result event.
func ResultEvent[S, T any](t T) Event[S, T] { return Event[S, T]{kind: kindResult, result: t} }

// ErrorEvent builds a terminal error event.
func ErrorEvent[S, T any](err error) Event[S, T] { return Event[S, T]{kind: kindError, err: err} }

// State returns the state and whether this is a state event.
func (e Event[S, T]) State() (S, bool) { return e.state, e.kind == kindState }

// Result returns the result and whether this is a result event.
func (e Event[S, T]) Result() (T, bool) { return e.result, e.kind == kindResult }

// Err returns the error carried by a terminal error event.
func (e Event[S, T]) Err() error {
	if e.kind == kindError {
		return e.err
	}
	return nil
}

// Events runs the process in a goroutine and streams its states followed by
// one result or error event. The channel is closed after the terminal event.
// Cancelling ctx stops delivery and closes the channel.
func (p Process[S, T]) Events(ctx context.Context) <-chan Event[S, T] {
	ch := make(chan Event[S, T])
	go func() {
		defer close(ch)
		send := func(ev Event[S, T]) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
		result, err := p.Run(ctx, func(s S) { send(StateEvent[S, T](s)) })
		if err != nil {
			send(ErrorEvent[S, T](err))
			return
		}
		send(ResultEvent[S, T](result))
	}()
	return ch
}

// FromEvents adapts a raw event stream into a Process. The stream is read
// until it is closed; a stream that yields no result, more than one result,
// or a state after its result fails with a ProtocolError.
//
// Unlike other processes it is single-shot: the channel can only be read
// once, so every run after the first fails with ErrConsumed. When a run
// stops early the rest of the stream is drained so the producer is never
// left blocked on a send.
func FromEvents[S, T any](ch <-chan Event[S, T]) Process[S, T] {
	var consumed atomic.Bool
	return New(func(ctx context.Context, emit func(S)) (T, error) {
		var zero T
		if !consumed.CompareAndSwap(false, true) {
			return zero, ErrConsumed
		}
		result, err := readEvents(ctx, ch, emit)
		if err != nil {
			go drain(ch)
			return zero, err
		}
		return result, nil
	})
}

func readEvents[S, T any](ctx context.Context, ch <-chan Event[S, T], emit func(S)) (T, error) {
	var (
		zero      T
		result    T
		hasResult bool
	)
	for {
		var (
			ev Event[S, T]
			ok bool
		)
		select {
		case ev, ok = <-ch:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		if !ok {
			if !hasResult {
				return zero, &ProtocolError{Violation: ViolationNoResult}
			}
			return result, nil
		}
		switch ev.kind {
		case kindState:
			if hasResult {
				return zero, &ProtocolError{Violation: ViolationStateAfterResult}
			}
			emit(ev.state)
		case kindResult:
			if hasResult {
				return zero, &ProtocolError{Violation: ViolationMultipleResults}
			}
			result, hasResult = ev.result, true
		case kindError:
			return zero, ev.err
		}
	}
}

func drain[E any](ch <-chan E) {
	for range ch { //nolint:revive // discard
	}
}
