// SPDX-License-Identifier: MPL-2.0

package process

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestJust(t *testing.T) {
	t.Parallel()

	p := Just("result", "s1", "s2", "s3")

	states, err := p.States(t.Context())
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	if !slices.Equal(states, []string{"s1", "s2", "s3"}) {
		t.Errorf("States() = %v, want [s1 s2 s3]", states)
	}

	result, err := p.Result(t.Context())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result != "result" {
		t.Errorf("Result() = %q, want result", result)
	}
}

func TestFail(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	if _, err := Fail[int, int](boom).Result(t.Context()); !errors.Is(err, boom) {
		t.Errorf("Result() error = %v, want boom", err)
	}
}

func TestZeroProcessHasNoResult(t *testing.T) {
	t.Parallel()

	var p Process[int, int]
	if _, err := p.Result(t.Context()); !errors.Is(err, ErrProtocol) {
		t.Errorf("zero Process error = %v, want ErrProtocol", err)
	}
}

func feed[S, T any](events ...Event[S, T]) <-chan Event[S, T] {
	ch := make(chan Event[S, T], len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestFromEvents_Protocol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		events []Event[string, int]
		want   Violation
	}{
		{
			name:   "two results",
			events: []Event[string, int]{StateEvent[string, int]("a"), ResultEvent[string](1), ResultEvent[string](2)},
			want:   ViolationMultipleResults,
		},
		{
			name:   "no result",
			events: []Event[string, int]{StateEvent[string, int]("a")},
			want:   ViolationNoResult,
		},
		{
			name:   "state after result",
			events: []Event[string, int]{ResultEvent[string](1), StateEvent[string, int]("late")},
			want:   ViolationStateAfterResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := FromEvents(feed(tt.events...)).Result(t.Context())
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Fatalf("Result() error = %v, want *ProtocolError", err)
			}
			if pe.Violation != tt.want {
				t.Errorf("Violation = %q, want %q", pe.Violation, tt.want)
			}
			if !errors.Is(err, ErrProtocol) {
				t.Error("ProtocolError should wrap ErrProtocol")
			}
		})
	}
}

func TestFromEvents_StatesSurfaceProtocolErrors(t *testing.T) {
	t.Parallel()

	p := FromEvents(feed(ResultEvent[string](1), ResultEvent[string](2)))
	if _, err := p.States(t.Context()); !errors.Is(err, ErrProtocol) {
		t.Errorf("States() error = %v, want ErrProtocol", err)
	}
}

func TestFromEvents_WellFormed(t *testing.T) {
	t.Parallel()

	p := FromEvents(feed(StateEvent[string, int]("a"), StateEvent[string, int]("b"), ResultEvent[string](42)))
	var states []string
	got, err := p.Run(t.Context(), func(s string) { states = append(states, s) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != 42 || !slices.Equal(states, []string{"a", "b"}) {
		t.Errorf("Run() = %d with states %v", got, states)
	}

	boom := errors.New("boom")
	if _, err := FromEvents(feed(StateEvent[string, int]("a"), ErrorEvent[string, int](boom))).Result(t.Context()); !errors.Is(err, boom) {
		t.Errorf("error event: got %v, want boom", err)
	}
}

func TestFromEvents_SingleShot(t *testing.T) {
	t.Parallel()

	p := FromEvents(feed(StateEvent[string, int]("a"), ResultEvent[string](7)))
	states, err := p.States(t.Context())
	if err != nil || !slices.Equal(states, []string{"a"}) {
		t.Fatalf("States() = %v, %v", states, err)
	}
	if _, err := p.Result(t.Context()); !errors.Is(err, ErrConsumed) {
		t.Errorf("second run error = %v, want ErrConsumed", err)
	}
}

func TestFromEvents_DrainsAfterViolation(t *testing.T) {
	t.Parallel()

	ch := make(chan Event[string, int])
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(ch)
		ch <- ResultEvent[string](1)
		ch <- ResultEvent[string](2)
		ch <- StateEvent[string, int]("late")
	}()

	if _, err := FromEvents(ch).Result(t.Context()); !errors.Is(err, ErrProtocol) {
		t.Fatalf("Result() error = %v, want ErrProtocol", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer still blocked after the stream was rejected")
	}
}

func TestEvents(t *testing.T) {
	t.Parallel()

	var (
		states []string
		result int
		gotRes bool
	)
	for ev := range Just(7, "x", "y").Events(t.Context()) {
		if s, ok := ev.State(); ok {
			if gotRes {
				t.Fatal("state after result")
			}
			states = append(states, s)
		}
		if r, ok := ev.Result(); ok {
			result, gotRes = r, true
		}
		if err := ev.Err(); err != nil {
			t.Fatalf("unexpected error event: %v", err)
		}
	}
	if !gotRes || result != 7 || !slices.Equal(states, []string{"x", "y"}) {
		t.Errorf("Events produced states %v result %d (%v)", states, result, gotRes)
	}

	// Events output feeds back into FromEvents unchanged.
	round, err := FromEvents(Just(9, "z").Events(t.Context())).Result(t.Context())
	if err != nil || round != 9 {
		t.Errorf("round trip = %d, %v", round, err)
	}
}

func TestChain(t *testing.T) {
	t.Parallel()

	called := false
	p := Chain(Just(2, "a"), func(n int) Process[string, string] {
		called = true
		return Just(strconv.Itoa(n*10), "b", "c")
	})

	var states []string
	got, err := p.Run(t.Context(), func(s string) { states = append(states, s) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !called || got != "20" || !slices.Equal(states, []string{"a", "b", "c"}) {
		t.Errorf("Chain result %q states %v", got, states)
	}
}

func TestChain_StopsOnError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	called := false
	p := Chain(Fail[string, int](boom), func(int) Process[string, int] {
		called = true
		return Just[string](1)
	})
	if _, err := p.Result(t.Context()); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if called {
		t.Error("downstream step must not run after a failure")
	}
}

func TestConcatMapAndMapStates(t *testing.T) {
	t.Parallel()

	p := MapStates(
		Map(Concat(Just(1, 1, 2), Just(3, 3)), func(n int) string { return strconv.Itoa(n) }),
		func(s int) string { return "s" + strconv.Itoa(s) },
	)
	var states []string
	got, err := p.Run(t.Context(), func(s string) { states = append(states, s) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "3" || !slices.Equal(states, []string{"s1", "s2", "s3"}) {
		t.Errorf("got %q with states %v", got, states)
	}
}

func TestAll_BoundedAndOrdered(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	worker := func(n int) Process[int, int] {
		return New(func(_ context.Context, emit func(int)) (int, error) {
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			emit(n)
			running.Add(-1)
			return n * n, nil
		})
	}

	ps := make([]Process[int, int], 8)
	for i := range ps {
		ps[i] = worker(i)
	}

	var inCallback atomic.Int32
	var seen []int
	got, err := All(2, ps...).Run(t.Context(), func(s int) {
		if inCallback.Add(1) != 1 {
			t.Error("onState called concurrently")
		}
		seen = append(seen, s)
		inCallback.Add(-1)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, v := range got {
		if v != i*i {
			t.Errorf("result[%d] = %d, want %d", i, v, i*i)
		}
	}
	if len(seen) != 8 {
		t.Errorf("saw %d states, want 8", len(seen))
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d exceeds limit 2", peak.Load())
	}
}

func TestAll_FailureShortCircuits(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	slow := New(func(ctx context.Context, _ func(int)) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	_, err := All(0, slow, Fail[int, int](boom)).Result(t.Context())
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
}

func TestRun_DropsLateEmits(t *testing.T) {
	t.Parallel()

	var leaked func(int)
	p := New(func(_ context.Context, emit func(int)) (int, error) {
		leaked = emit
		return 0, nil
	})
	calls := 0
	if _, err := p.Run(t.Context(), func(int) { calls++ }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	leaked(1)
	if calls != 0 {
		t.Error("emit after completion must be dropped")
	}
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	ran := false
	p := New(func(context.Context, func(int)) (int, error) {
		ran = true
		return 1, nil
	})
	if _, err := p.Result(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("producer should not start on a cancelled context")
	}
}
