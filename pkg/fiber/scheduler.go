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
	"runtime"
	"sync"

	"github.com/edwingeng/deque"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/tiactor/pkg/clock"
	cerrors "github.com/pingcap/tiactor/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultSchedulerName = "default"

// Config is the configuration of a Scheduler.
type Config struct {
	// Name labels logs and metrics.
	Name string
	// WorkerCount is the number of fibers that may execute at once.
	// Zero means GOMAXPROCS.
	WorkerCount int
	// Clock drives timeouts of fibers in this scheduler. Nil means the
	// system clock.
	Clock clock.Clock
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:        defaultSchedulerName,
		WorkerCount: runtime.GOMAXPROCS(0),
	}
}

type worker struct {
	id    int
	yield chan struct{}
}

// release hands the worker back once the fiber it runs stops executing.
func (w *worker) release() {
	w.yield <- struct{}{}
}

// Scheduler multiplexes fibers onto a fixed pool of worker goroutines.
//
// Runnable fibers wait in a FIFO run-queue. A worker takes the head of the
// queue, resumes the fiber and waits until the fiber parks, yields or
// terminates; only then does it take the next one. At most WorkerCount
// fibers execute at any time, and a parked fiber holds no worker.
type Scheduler struct {
	name    string
	clk     clock.Clock
	workers []*worker

	mu       sync.Mutex
	cond     *sync.Cond
	runq     deque.Deque
	fibers   map[ID]*Fiber
	started  bool
	closed   bool
	draining bool

	nextID  atomic.Uint64
	fiberWg sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	errg    *errgroup.Group

	metricWorkingWorkers  prometheus.Gauge
	metricWorkingDuration prometheus.Counter
	metricRunQueue        prometheus.Gauge
	metricLiveFibers      prometheus.Gauge
	metricSpawnedFibers   prometheus.Counter
}

// NewScheduler returns a scheduler. Fibers may be spawned right away; they
// run once Start is called.
func NewScheduler(cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	name := cfg.Name
	if name == "" {
		name = defaultSchedulerName
	}
	n := cfg.WorkerCount
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		name:    name,
		clk:     clk,
		workers: make([]*worker, n),
		runq:    deque.NewDeque(),
		fibers:  make(map[ID]*Fiber),
		ctx:     ctx,
		cancel:  cancel,

		metricWorkingWorkers:  workingWorkers.WithLabelValues(name),
		metricWorkingDuration: workingDuration.WithLabelValues(name),
		metricRunQueue:        runQueueLength.WithLabelValues(name),
		metricLiveFibers:      liveFibers.WithLabelValues(name),
		metricSpawnedFibers:   spawnedFibers.WithLabelValues(name),
	}
	s.cond = sync.NewCond(&s.mu)
	for i := range s.workers {
		s.workers[i] = &worker{id: i, yield: make(chan struct{})}
	}
	return s
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string {
	return s.name
}

// Clock returns the clock of the scheduler.
func (s *Scheduler) Clock() clock.Clock {
	return s.clk
}

// Start starts the workers.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cerrors.ErrSchedulerClosed.GenWithStackByArgs(s.name)
	}
	if s.started {
		return cerrors.ErrSchedulerAlreadyStarted.GenWithStackByArgs(s.name)
	}
	s.startWorkersLocked()
	log.Info("scheduler started",
		zap.String("name", s.name), zap.Int("workers", len(s.workers)))
	return nil
}

func (s *Scheduler) startWorkersLocked() {
	s.started = true
	s.errg = &errgroup.Group{}
	for _, w := range s.workers {
		w := w
		s.errg.Go(func() error {
			return s.runWorker(w)
		})
	}
	totalWorkers.WithLabelValues(s.name).Set(float64(len(s.workers)))
}

// Stop cancels the context of every fiber, waits for all fibers to
// terminate and then stops the workers. Fiber bodies must return once
// their context is done for Stop to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if !s.started {
		// Queued fibers still need workers to observe the cancellation.
		s.startWorkersLocked()
	}
	s.mu.Unlock()

	s.cancel()
	s.fiberWg.Wait()

	s.mu.Lock()
	s.draining = true
	s.cond.Broadcast()
	s.mu.Unlock()

	err := s.errg.Wait()
	totalWorkers.DeleteLabelValues(s.name)
	log.Info("scheduler stopped", zap.String("name", s.name))
	return errors.Trace(err)
}

// Go spawns a fiber running fn. The fiber context is derived from ctx and
// is also canceled when the scheduler stops.
func (s *Scheduler) Go(ctx context.Context, fn Func, opts ...Option) (*Fiber, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, cerrors.ErrSchedulerClosed.GenWithStackByArgs(s.name)
	}
	fctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	f := &Fiber{
		id:    ID(s.nextID.Inc()),
		sched: s,
		fn:    fn,
		ctx:   fctx,
		cancel: func() {
			stop()
			cancel()
		},
		resume: make(chan struct{}, 1),
		state:  StateRunnable,
	}
	for _, opt := range opts {
		opt(f)
	}
	s.fibers[f.id] = f
	s.fiberWg.Add(1)
	s.runq.PushBack(f)
	s.metricRunQueue.Set(float64(s.runq.Len()))
	s.cond.Signal()
	s.mu.Unlock()

	s.metricSpawnedFibers.Inc()
	s.metricLiveFibers.Inc()
	go f.run()
	return f, nil
}

// Lookup returns a live fiber by ID.
func (s *Scheduler) Lookup(id ID) (*Fiber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fibers[id]
	return f, ok
}

// NumFibers returns the number of live fibers.
func (s *Scheduler) NumFibers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fibers)
}

func (s *Scheduler) enqueue(f *Fiber) {
	s.mu.Lock()
	s.runq.PushBack(f)
	s.metricRunQueue.Set(float64(s.runq.Len()))
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *Scheduler) forget(f *Fiber) {
	s.mu.Lock()
	delete(s.fibers, f.id)
	s.mu.Unlock()
	s.metricLiveFibers.Dec()
	s.fiberWg.Done()
}

// next blocks until a fiber is runnable. It returns false once the
// scheduler is draining and the run-queue is empty.
func (s *Scheduler) next() (*Fiber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.runq.Len() == 0 {
		if s.draining {
			return nil, false
		}
		s.cond.Wait()
	}
	f := s.runq.PopFront().(*Fiber)
	s.metricRunQueue.Set(float64(s.runq.Len()))
	return f, true
}

func (s *Scheduler) runWorker(w *worker) error {
	for {
		f, ok := s.next()
		if !ok {
			return nil
		}

		f.mu.Lock()
		f.state = StateRunning
		f.worker = w
		f.mu.Unlock()

		start := clock.MonoNow()
		s.metricWorkingWorkers.Inc()
		f.resume <- struct{}{}
		<-w.yield
		s.metricWorkingWorkers.Dec()
		s.metricWorkingDuration.Add(clock.MonoNow().Sub(start).Seconds())
	}
}
