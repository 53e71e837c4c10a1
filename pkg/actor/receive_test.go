// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package actor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/tiactor/pkg/clock"
	cerrors "github.com/pingcap/tiactor/pkg/errors"
	"github.com/pingcap/tiactor/pkg/fiber"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type result struct {
	v   any
	err error
}

func newTestSystem(t *testing.T) *System {
	sched := fiber.NewScheduler(&fiber.Config{Name: t.Name(), WorkerCount: 4})
	require.Nil(t, sched.Start())
	sys := NewSystem(sched, &SystemConfig{Name: t.Name()})
	t.Cleanup(func() {
		require.Nil(t, sys.Shutdown(context.Background()))
		require.Nil(t, sched.Stop())
	})
	return sys
}

func spawn(t *testing.T, sys *System, body Body, opts ...Option) *Ref {
	ref, err := sys.Spawn(context.Background(), body, opts...)
	require.Nil(t, err)
	return ref
}

func match(want any) Handler {
	return func(msg any) (any, error) {
		if msg == want {
			return msg, nil
		}
		return nil, Defer()
	}
}

func acceptAll(msg any) (any, error) {
	return msg, nil
}

func TestReceiveRoundTrip(t *testing.T) {
	sys := newTestSystem(t)

	done := make(chan result, 1)
	ref := spawn(t, sys, func(c *Context) error {
		v, err := c.Receive(match("m"))
		if err == nil && c.Mailbox().Len() != 0 {
			err = errors.New("residual messages")
		}
		done <- result{v, err}
		return nil
	})
	require.Nil(t, ref.Send("m"))

	res := <-done
	require.Nil(t, res.err)
	require.Equal(t, "m", res.v)
	require.Nil(t, ref.Join(context.Background()))
	require.False(t, ref.Alive())
}

func TestReceiveDefersUnmatched(t *testing.T) {
	sys := newTestSystem(t)

	type report struct {
		first, second any
		left          []any
		elapsed       time.Duration
		err           error
	}
	done := make(chan report, 1)
	ref := spawn(t, sys, func(c *Context) error {
		var r report
		start := time.Now()
		r.first, r.err = c.ReceiveTimeout(time.Second, func(msg any) (any, error) {
			if msg == "x" {
				return msg, nil
			}
			return nil, Defer()
		})
		r.elapsed = time.Since(start)
		r.left = c.Mailbox().Messages()
		if r.err == nil {
			r.second, r.err = c.ReceiveTimeout(time.Second, acceptAll)
		}
		done <- r
		return nil
	})
	require.Nil(t, ref.Send("y"))
	time.Sleep(5 * time.Millisecond)
	require.Nil(t, ref.Send("x"))

	r := <-done
	require.Nil(t, r.err)
	require.Equal(t, "x", r.first)
	require.Less(t, r.elapsed, time.Second)
	require.Equal(t, []any{"y"}, r.left)
	require.Equal(t, "y", r.second)
}

func TestReceiveAlwaysDeferTimesOutOnce(t *testing.T) {
	sys := newTestSystem(t)

	const timeout = 50 * time.Millisecond
	type report struct {
		v        any
		err      error
		timeouts int
		elapsed  time.Duration
		left     []any
	}
	done := make(chan report, 1)
	ref := spawn(t, sys, func(c *Context) error {
		if _, err := c.Receive(match("start")); err != nil {
			return err
		}
		var r report
		start := time.Now()
		r.v, r.err = c.ReceiveTimeout(timeout, func(msg any) (any, error) {
			if msg == Timeout {
				r.timeouts++
				return "timed out", nil
			}
			return nil, Defer()
		})
		r.elapsed = time.Since(start)
		r.left = c.Mailbox().Messages()
		done <- r
		return nil
	})
	require.Nil(t, ref.Send("a"))
	require.Nil(t, ref.Send("b"))
	require.Nil(t, ref.Send("start"))

	r := <-done
	require.Nil(t, r.err)
	require.Equal(t, "timed out", r.v)
	require.Equal(t, 1, r.timeouts)
	require.GreaterOrEqual(t, r.elapsed, timeout)
	require.Less(t, r.elapsed, timeout+time.Second)
	require.Equal(t, []any{"a", "b"}, r.left)
	require.Equal(t, float64(1), testutil.ToFloat64(receiveTimeouts.WithLabelValues(sys.Name())))
}

func TestReceiveTimeoutHandlerResult(t *testing.T) {
	sys := newTestSystem(t)

	done := make(chan []result, 1)
	spawn(t, sys, func(c *Context) error {
		var rs []result
		// A deferred or nil timeout result ends the receive.
		v, err := c.ReceiveTimeout(time.Millisecond, func(msg any) (any, error) {
			return nil, Defer()
		})
		rs = append(rs, result{v, err})
		v, err = c.ReceiveTimeout(time.Millisecond, func(msg any) (any, error) {
			return nil, nil
		})
		rs = append(rs, result{v, err})
		v, err = c.ReceiveTimeout(time.Millisecond, func(msg any) (any, error) {
			return nil, errors.New("no reply")
		})
		rs = append(rs, result{v, err})
		done <- rs
		return nil
	})

	rs := <-done
	require.Equal(t, result{}, rs[0])
	require.Equal(t, result{}, rs[1])
	require.EqualError(t, rs[2].err, "no reply")
}

func TestReceiveTimeoutOnMockClock(t *testing.T) {
	clk := clock.NewMock()
	sched := fiber.NewScheduler(&fiber.Config{Name: t.Name(), WorkerCount: 2, Clock: clk})
	require.Nil(t, sched.Start())
	sys := NewSystem(sched, &SystemConfig{Name: t.Name()})
	t.Cleanup(func() {
		require.Nil(t, sys.Shutdown(context.Background()))
		require.Nil(t, sched.Stop())
	})

	done := make(chan result, 1)
	ref := spawn(t, sys, func(c *Context) error {
		v, err := c.ReceiveTimeout(10*time.Second, func(msg any) (any, error) {
			if msg == Timeout {
				return "timed out", nil
			}
			return nil, Defer()
		})
		done <- result{v, err}
		return err
	})
	require.Nil(t, ref.Send("ignored"))
	f := ref.fiber.Load()
	require.Eventually(t, func() bool {
		return f.State() == fiber.StateBlocked
	}, time.Second, time.Millisecond)

	clk.Add(5 * time.Second)
	require.Len(t, done, 0)
	clk.Add(5 * time.Second)
	res := <-done
	require.Nil(t, res.err)
	require.Equal(t, "timed out", res.v)
	require.Nil(t, ref.Join(context.Background()))
}

func TestReceivePoll(t *testing.T) {
	sys := newTestSystem(t)

	done := make(chan []any, 1)
	ref := spawn(t, sys, func(c *Context) error {
		if _, err := c.Receive(match("go")); err != nil {
			return err
		}
		var got []any
		for i := 0; i < 3; i++ {
			v, err := c.ReceiveTimeout(0, func(msg any) (any, error) {
				return msg, nil
			})
			if err != nil {
				return err
			}
			got = append(got, v)
		}
		done <- got
		return nil
	})
	require.Nil(t, ref.Send(1))
	require.Nil(t, ref.Send(2))
	require.Nil(t, ref.Send("go"))

	require.Equal(t, []any{1, 2, Timeout}, <-done)
}

func TestReceiveDiscardsNil(t *testing.T) {
	sys := newTestSystem(t)

	done := make(chan result, 1)
	ref := spawn(t, sys, func(c *Context) error {
		var seen []any
		v, err := c.Receive(func(msg any) (any, error) {
			seen = append(seen, msg)
			if msg == "ok" {
				return msg, nil
			}
			return nil, nil
		})
		if err == nil && c.Mailbox().Len() != 0 {
			err = errors.New("discarded messages are still queued")
		}
		done <- result{[]any{v, seen}, err}
		return nil
	})
	require.Nil(t, ref.Send("junk1"))
	require.Nil(t, ref.Send("junk2"))
	require.Nil(t, ref.Send("ok"))

	res := <-done
	require.Nil(t, res.err)
	require.Equal(t, []any{"ok", []any{"junk1", "junk2", "ok"}}, res.v)
}

func TestReceiveHandlerErrorConsumesMessage(t *testing.T) {
	sys := newTestSystem(t)

	errBad := errors.New("bad message")
	done := make(chan result, 1)
	ref := spawn(t, sys, func(c *Context) error {
		_, err := c.Receive(func(msg any) (any, error) {
			if msg == "bad" {
				return nil, errBad
			}
			return nil, Defer()
		})
		done <- result{c.Mailbox().Messages(), err}
		return nil
	})
	require.Nil(t, ref.Send("keep"))
	require.Nil(t, ref.Send("bad"))

	res := <-done
	require.Equal(t, errBad, res.err)
	require.Equal(t, []any{"keep"}, res.v)
}

func TestReceiveHandlerPanicConsumesMessage(t *testing.T) {
	sys := newTestSystem(t)

	done := make(chan result, 1)
	ref := spawn(t, sys, func(c *Context) error {
		func() {
			defer func() {
				r := recover()
				done <- result{c.Mailbox().Messages(), fmt.Errorf("%v", r)}
			}()
			_, _ = c.Receive(func(msg any) (any, error) {
				if msg == "boom" {
					panic("boom")
				}
				return nil, Defer()
			})
		}()
		return nil
	})
	require.Nil(t, ref.Send("keep"))
	require.Nil(t, ref.Send("boom"))

	res := <-done
	require.EqualError(t, res.err, "boom")
	require.Equal(t, []any{"keep"}, res.v)
}

func TestNestedReceiveSkipsClaimedMessage(t *testing.T) {
	sys := newTestSystem(t)

	done := make(chan result, 1)
	ref := spawn(t, sys, func(c *Context) error {
		v, err := c.Receive(func(msg any) (any, error) {
			if msg != "outer" {
				return nil, Defer()
			}
			// The inner receive accepts anything but must not see the
			// message the outer frame is handling.
			inner, err := c.Receive(acceptAll)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("%v+%v", msg, inner), nil
		})
		if err == nil && c.Mailbox().Len() != 0 {
			err = errors.Errorf("residual messages %v", c.Mailbox().Messages())
		}
		done <- result{v, err}
		return nil
	})
	require.Nil(t, ref.Send("outer"))
	require.Nil(t, ref.Send("inner"))

	res := <-done
	require.Nil(t, res.err)
	require.Equal(t, "outer+inner", res.v)
}

func TestNestedReceiveAfterOuterDefer(t *testing.T) {
	sys := newTestSystem(t)

	done := make(chan result, 1)
	ref := spawn(t, sys, func(c *Context) error {
		v, err := c.Receive(func(msg any) (any, error) {
			if msg != "trigger" {
				return nil, Defer()
			}
			// Messages deferred by the outer frame are still available.
			return c.Receive(match("early"))
		})
		done <- result{v, err}
		return nil
	})
	require.Nil(t, ref.Send("early"))
	require.Nil(t, ref.Send("trigger"))

	res := <-done
	require.Nil(t, res.err)
	require.Equal(t, "early", res.v)
}

func TestReceiveNoLossNoDuplication(t *testing.T) {
	sys := newTestSystem(t)

	const senders, perSender = 4, 250
	type report struct {
		matched []int
		left    []any
		err     error
	}
	done := make(chan report, 1)
	ref := spawn(t, sys, func(c *Context) error {
		var r report
		evens := func(msg any) (any, error) {
			if v, ok := msg.(int); ok && v%2 == 0 {
				return v, nil
			}
			return nil, Defer()
		}
		for len(r.matched) < senders*perSender/2 {
			v, err := c.Receive(evens)
			if err != nil {
				r.err = err
				done <- r
				return err
			}
			r.matched = append(r.matched, v.(int))
		}
		_, r.err = c.Receive(match("check"))
		r.left = c.Mailbox().Messages()
		done <- r
		return nil
	})

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_ = ref.Send(s*perSender + i)
			}
		}(s)
	}
	wg.Wait()
	require.Nil(t, ref.Send("check"))

	r := <-done
	require.Nil(t, r.err)
	var wantEven, wantOdd, gotOdd []int
	for v := 0; v < senders*perSender; v++ {
		if v%2 == 0 {
			wantEven = append(wantEven, v)
		} else {
			wantOdd = append(wantOdd, v)
		}
	}
	for _, v := range r.left {
		gotOdd = append(gotOdd, v.(int))
	}
	sort.Ints(r.matched)
	sort.Ints(gotOdd)
	require.Equal(t, wantEven, r.matched)
	require.Equal(t, wantOdd, gotOdd)
}

func TestReceivePerSenderOrdering(t *testing.T) {
	sys := newTestSystem(t)

	const senders, perSender = 4, 200
	done := make(chan error, 1)
	ref := spawn(t, sys, func(c *Context) error {
		next := make([]int, senders)
		for i := 0; i < senders*perSender; i++ {
			v, err := c.Receive(acceptAll)
			if err != nil {
				done <- err
				return err
			}
			m := v.([2]int)
			if m[1] != next[m[0]] {
				done <- errors.Errorf("sender %d: got %d, want %d", m[0], m[1], next[m[0]])
				return nil
			}
			next[m[0]]++
		}
		done <- nil
		return nil
	})

	// The senders are fibers too.
	for s := 0; s < senders; s++ {
		s := s
		_, err := sys.sched.Go(context.Background(), func(ctx context.Context) (any, error) {
			for i := 0; i < perSender; i++ {
				_ = ref.Send([2]int{s, i})
				if i%50 == 0 {
					fiber.Yield(ctx)
				}
			}
			return nil, nil
		})
		require.Nil(t, err)
	}
	require.Nil(t, <-done)
}

func TestReceiveCanceledByShutdown(t *testing.T) {
	sched := fiber.NewScheduler(&fiber.Config{Name: t.Name(), WorkerCount: 2})
	require.Nil(t, sched.Start())
	defer func() {
		require.Nil(t, sched.Stop())
	}()
	sys := NewSystem(sched, &SystemConfig{Name: t.Name()})

	started := make(chan struct{})
	ref := spawn(t, sys, func(c *Context) error {
		close(started)
		_, err := c.Receive(match("never"))
		return err
	})
	<-started
	require.Nil(t, sys.Shutdown(context.Background()))

	reason := ref.Join(context.Background())
	require.True(t, cerrors.IsContextCanceledError(reason), "%v", reason)
	require.Equal(t, reason, ref.ExitReason())
}

func TestDeferIsNotAnError(t *testing.T) {
	t.Parallel()

	require.True(t, cerrors.IsDeferError(Defer()))
	require.False(t, cerrors.IsDeferError(errors.New("defer")))
	require.Equal(t, "timeout", fmt.Sprint(Timeout))
}
