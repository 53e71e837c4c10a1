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

package fiber

import (
	"context"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/tiactor/pkg/clock"
)

// NoTimeout disables the timeout of a blocking operation.
const NoTimeout time.Duration = -1

// Strand is the suspend/resume capability of a unit of execution.
//
// Park suspends the caller until Unpark is called. An Unpark that happens
// before Park leaves a permit, so the next Park returns immediately. Park
// may also return spuriously; callers must re-check their wait condition
// in a loop.
type Strand interface {
	Park()
	Unpark()
}

type strandKey struct{}

// WithStrand returns a copy of ctx carrying s as the current strand.
func WithStrand(ctx context.Context, s Strand) context.Context {
	return context.WithValue(ctx, strandKey{}, s)
}

// CurrentStrand returns the strand carried by ctx. Outside a fiber it
// returns a fresh strand that parks the calling goroutine.
//
// The strand carried by a fiber context must only be used by the fiber
// itself. Goroutines started from a fiber need a context of their own.
func CurrentStrand(ctx context.Context) Strand {
	if s, ok := ctx.Value(strandKey{}).(Strand); ok {
		return s
	}
	return newGoroutineStrand()
}

// FromContext returns the fiber running with ctx, if any.
func FromContext(ctx context.Context) (*Fiber, bool) {
	f, ok := ctx.Value(strandKey{}).(*Fiber)
	return f, ok
}

// ClockFromContext returns the clock of the scheduler running the current
// fiber, or the system clock.
func ClockFromContext(ctx context.Context) clock.Clock {
	if f, ok := FromContext(ctx); ok {
		return f.sched.clk
	}
	return defaultClock
}

var defaultClock = clock.New()

// goroutineStrand parks a plain goroutine on a channel.
type goroutineStrand struct {
	permit chan struct{}
}

func newGoroutineStrand() *goroutineStrand {
	return &goroutineStrand{permit: make(chan struct{}, 1)}
}

func (s *goroutineStrand) Park() {
	<-s.permit
}

func (s *goroutineStrand) Unpark() {
	select {
	case s.permit <- struct{}{}:
	default:
	}
}

// ParkTimeout parks s for at most d, measured on clk. A negative d parks
// without a timer. It arms ctx cancellation as a wake-up source as well.
func ParkTimeout(ctx context.Context, s Strand, clk clock.Clock, d time.Duration) {
	if d == 0 {
		return
	}
	if d > 0 {
		timer := clk.AfterFunc(d, s.Unpark)
		defer timer.Stop()
	}
	stop := context.AfterFunc(ctx, s.Unpark)
	defer stop()
	s.Park()
}

// Sleep suspends the current strand for d. It returns early with the
// context error when ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	clk := ClockFromContext(ctx)
	deadline := clock.DeadlineAfter(clk, d)
	s := CurrentStrand(ctx)
	for !deadline.Expired(clk) {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		ParkTimeout(ctx, s, clk, deadline.Remaining(clk))
	}
	return nil
}

// Yield gives up the worker of the current fiber and puts the fiber at the
// tail of the run-queue. Outside a fiber it is a no-op.
func Yield(ctx context.Context) {
	if f, ok := FromContext(ctx); ok {
		f.yield()
	}
}
