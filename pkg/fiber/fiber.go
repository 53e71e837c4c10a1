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
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/tiactor/pkg/errors"
	"go.uber.org/zap"
)

// ID identifies a fiber within its scheduler.
type ID uint64

// State is the scheduling state of a fiber.
type State int32

// Fiber states.
const (
	StateRunnable State = iota
	StateRunning
	StateBlocked
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunnable:
		return "runnable"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Func is the body of a fiber. The ctx carries the fiber as its strand, so
// blocking operations of this module called with ctx suspend the fiber
// instead of its worker.
type Func func(ctx context.Context) (any, error)

// Option configures a fiber at spawn time.
type Option func(f *Fiber)

// WithName names the fiber in logs.
func WithName(name string) Option {
	return func(f *Fiber) {
		f.name = name
	}
}

// WithExitHook registers a function that runs on the fiber, after its body
// returns and before it is reported as terminated.
func WithExitHook(hook func(f *Fiber)) Option {
	return func(f *Fiber) {
		f.hooks = append(f.hooks, hook)
	}
}

// Fiber is a lightweight thread multiplexed by a Scheduler onto its
// workers. A fiber only executes while it holds a worker and gives it
// back whenever it parks, yields or terminates.
type Fiber struct {
	id     ID
	name   string
	sched  *Scheduler
	fn     Func
	ctx    context.Context
	cancel context.CancelFunc
	hooks  []func(f *Fiber)
	resume chan struct{}

	mu      sync.Mutex
	state   State
	permit  bool
	worker  *worker
	joiners []Strand
	result  any
	err     error
}

var _ Strand = (*Fiber)(nil)

// ID returns the fiber ID.
func (f *Fiber) ID() ID {
	return f.id
}

// Name returns the fiber name.
func (f *Fiber) Name() string {
	return f.name
}

// State returns the current state of the fiber.
func (f *Fiber) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Park suspends the fiber and hands its worker back to the scheduler.
// It must only be called from the fiber itself.
func (f *Fiber) Park() {
	f.mu.Lock()
	if f.permit {
		f.permit = false
		f.mu.Unlock()
		return
	}
	if f.state != StateRunning {
		state := f.state
		f.mu.Unlock()
		log.Panic("park a fiber that is not running",
			zap.Uint64("fiber", uint64(f.id)), zap.Stringer("state", state))
	}
	w := f.worker
	f.state = StateBlocked
	f.worker = nil
	f.mu.Unlock()

	w.release()
	<-f.resume
}

// Unpark makes a blocked fiber runnable. Unparking a fiber that is not
// blocked leaves a permit for its next Park.
func (f *Fiber) Unpark() {
	f.mu.Lock()
	switch f.state {
	case StateBlocked:
		f.state = StateRunnable
		f.mu.Unlock()
		f.sched.enqueue(f)
	case StateTerminated:
		f.mu.Unlock()
	default:
		f.permit = true
		f.mu.Unlock()
	}
}

func (f *Fiber) yield() {
	f.mu.Lock()
	w := f.worker
	f.state = StateRunnable
	f.worker = nil
	f.mu.Unlock()

	f.sched.enqueue(f)
	w.release()
	<-f.resume
}

// Join waits for the fiber to terminate and returns the result of its body.
func (f *Fiber) Join(ctx context.Context) (any, error) {
	s := CurrentStrand(ctx)
	if s == Strand(f) {
		log.Panic("a fiber cannot join itself", zap.Uint64("fiber", uint64(f.id)))
	}
	stop := context.AfterFunc(ctx, s.Unpark)
	defer stop()

	registered := false
	for {
		f.mu.Lock()
		if f.state == StateTerminated {
			res, err := f.result, f.err
			f.mu.Unlock()
			return res, err
		}
		if err := ctx.Err(); err != nil {
			f.mu.Unlock()
			return nil, errors.Trace(err)
		}
		if !registered {
			f.joiners = append(f.joiners, s)
			registered = true
		}
		f.mu.Unlock()
		s.Park()
	}
}

// Done reports whether the fiber has terminated.
func (f *Fiber) Done() bool {
	return f.State() == StateTerminated
}

// Result returns the result of the fiber body. It is only meaningful once
// Done reports true.
func (f *Fiber) Result() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

func (f *Fiber) run() {
	<-f.resume
	res, err := f.call()
	f.finish(res, err)
}

func (f *Fiber) call() (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("fiber panicked",
				zap.Uint64("fiber", uint64(f.id)),
				zap.String("name", f.name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = cerrors.ErrFiberPanic.GenWithStackByArgs(f.id, r)
		}
	}()
	return f.fn(WithStrand(f.ctx, f))
}

func (f *Fiber) finish(res any, err error) {
	f.cancel()

	f.mu.Lock()
	f.result, f.err = res, err
	f.mu.Unlock()
	for _, hook := range f.hooks {
		hook(f)
	}

	f.mu.Lock()
	f.state = StateTerminated
	w := f.worker
	f.worker = nil
	joiners := f.joiners
	f.joiners = nil
	f.mu.Unlock()

	for _, j := range joiners {
		j.Unpark()
	}
	f.sched.forget(f)
	w.release()
}
