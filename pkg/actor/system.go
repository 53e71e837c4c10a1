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
	"sync"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/tiactor/pkg/clock"
	cerrors "github.com/pingcap/tiactor/pkg/errors"
	"github.com/pingcap/tiactor/pkg/fiber"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const defaultSystemName = "default"

// SystemConfig is the configuration of a System.
type SystemConfig struct {
	// Name labels logs and metrics.
	Name string
	// Mailbox is the mailbox configuration of spawned actors.
	Mailbox MailboxConfig
}

// DefaultSystemConfig returns the default system configuration.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{Name: defaultSystemName}
}

// System runs actors on the fibers of a scheduler. It owns the table of
// live actors and the name registry.
type System struct {
	id       uuid.UUID
	name     string
	sched    *fiber.Scheduler
	clk      clock.Clock
	mailbox  MailboxConfig
	registry *Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	cells   map[ID]*cell
	stopped bool

	nextID    atomic.Uint64
	nextWatch atomic.Uint64

	metricLiveActors  prometheus.Gauge
	metricDeadLetters prometheus.Counter
	metricReceived    prometheus.Counter
	metricSkipped     prometheus.Counter
	metricTimeouts    prometheus.Counter
}

// NewSystem returns a system that spawns actors on sched.
func NewSystem(sched *fiber.Scheduler, cfg *SystemConfig) *System {
	if cfg == nil {
		cfg = DefaultSystemConfig()
	}
	name := cfg.Name
	if name == "" {
		name = defaultSystemName
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &System{
		id:       uuid.New(),
		name:     name,
		sched:    sched,
		clk:      sched.Clock(),
		mailbox:  cfg.Mailbox,
		registry: NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
		cells:    make(map[ID]*cell),

		metricLiveActors:  liveActors.WithLabelValues(name),
		metricDeadLetters: deadLetters.WithLabelValues(name),
		metricReceived:    receivedMessages.WithLabelValues(name),
		metricSkipped:     skippedMessages.WithLabelValues(name),
		metricTimeouts:    receiveTimeouts.WithLabelValues(name),
	}
	log.Info("actor system created",
		zap.String("name", name), zap.Stringer("id", s.id),
		zap.String("scheduler", sched.Name()))
	return s
}

// ID returns the instance ID of the system.
func (s *System) ID() uuid.UUID {
	return s.id
}

// Name returns the system name.
func (s *System) Name() string {
	return s.name
}

// Registry returns the name registry of the system.
func (s *System) Registry() *Registry {
	return s.registry
}

// Spawn starts an actor running body on a new fiber. The actor context is
// derived from ctx and is canceled when the system shuts down.
func (s *System) Spawn(ctx context.Context, body Body, opts ...Option) (*Ref, error) {
	o := &spawnOptions{lifecycle: DefaultLifecycleHandler}
	for _, opt := range opts {
		opt(o)
	}
	mbCfg := s.mailbox
	if o.mailbox != nil {
		mbCfg = *o.mailbox
	}

	id := ID(s.nextID.Inc())
	ref := &Ref{id: id, sys: s}
	mb := NewMailbox(id, mbCfg)
	mb.metricDeadLetters = s.metricDeadLetters
	actx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	c := &cell{
		ref:       ref,
		mailbox:   mb,
		lifecycle: o.lifecycle,
		cancel: func() {
			stop()
			cancel()
		},
		watchers: make(map[WatchID]*Ref),
		links:    make(map[ID]*Ref),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		c.cancel()
		return nil, cerrors.ErrActorSystemStopped.GenWithStackByArgs(s.name)
	}
	if o.name != "" {
		if err := s.registry.Register(o.name, ref); err != nil {
			s.mu.Unlock()
			c.cancel()
			return nil, errors.Trace(err)
		}
	}
	s.cells[id] = c
	s.mu.Unlock()
	s.metricLiveActors.Inc()

	fopts := []fiber.Option{
		// Runs before the fiber is runnable, so Join always finds it.
		func(f *fiber.Fiber) { ref.fiber.Store(f) },
		fiber.WithExitHook(func(f *fiber.Fiber) {
			_, reason := f.Result()
			s.exit(c, reason)
		}),
	}
	if o.name != "" {
		fopts = append(fopts, fiber.WithName(o.name))
	}
	f, err := s.sched.Go(actx, func(fctx context.Context) (any, error) {
		return nil, s.run(fctx, c, body)
	}, fopts...)
	if err != nil {
		s.mu.Lock()
		delete(s.cells, id)
		s.registry.unregisterActor(id)
		s.mu.Unlock()
		s.metricLiveActors.Dec()
		c.cancel()
		return nil, errors.Trace(err)
	}
	log.Debug("actor spawned",
		zap.String("system", s.name), zap.Stringer("actor", ref),
		zap.Uint64("fiber", uint64(f.ID())))
	return ref, nil
}

func (s *System) run(ctx context.Context, c *cell, body Body) (err error) {
	actx := &Context{
		ctx:            ctx,
		sys:            s,
		cell:           c,
		metricReceived: s.metricReceived,
		metricSkipped:  s.metricSkipped,
		metricTimeouts: s.metricTimeouts,
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("actor panicked",
				zap.String("system", s.name),
				zap.Stringer("actor", c.ref),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = cerrors.ErrActorPanic.GenWithStackByArgs(c.ref, r)
		}
	}()
	return body(actx)
}

// exit runs on the fiber of a terminating actor.
func (s *System) exit(c *cell, reason error) {
	ref := c.ref
	watchers, links := c.markDead(reason)

	logFields := []zap.Field{
		zap.String("system", s.name), zap.String("actor", ref.String()), zap.Error(reason),
	}
	// Register binds names under s.mu, so no name is bound to ref after this.
	s.mu.Lock()
	delete(s.cells, ref.id)
	s.registry.unregisterActor(ref.id)
	s.mu.Unlock()
	dropped := c.mailbox.Close()
	c.cancel()

	for id, w := range watchers {
		_ = s.Send(w, &ExitMessage{From: ref, Reason: reason, Watch: id})
	}
	for peerID, peer := range links {
		if pc, ok := s.cell(peerID); ok {
			pc.removeLink(ref.id)
		}
		_ = s.Send(peer, &ExitMessage{From: ref, Reason: reason})
	}

	s.metricLiveActors.Dec()
	logFields = append(logFields, zap.Int("droppedMessages", dropped))
	switch {
	case reason == nil:
		actorExits.WithLabelValues(s.name, "normal").Inc()
		log.Debug("actor exited", logFields...)
	case !cerrors.IsAbnormalExit(reason):
		actorExits.WithLabelValues(s.name, "canceled").Inc()
		log.Debug("actor exited", logFields...)
	default:
		actorExits.WithLabelValues(s.name, "error").Inc()
		log.Warn("actor exited with error", logFields...)
	}
}

func (s *System) cell(id ID) (*cell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cells[id]
	return c, ok
}

func (s *System) deadReason(ref *Ref) error {
	if ref.exited.Load() {
		return ref.reason.Load()
	}
	return cerrors.ErrActorNotFound.GenWithStackByArgs(ref)
}

// Send enqueues msg into the mailbox of to. It never blocks. Messages to a
// terminated actor are absorbed and counted as dead letters. It only fails
// when a bounded mailbox with OverflowError is full.
func (s *System) Send(to *Ref, msg any) error {
	c, ok := s.cell(to.id)
	if !ok {
		s.metricDeadLetters.Inc()
		return nil
	}
	return c.mailbox.Enqueue(msg)
}

// Register binds name to a live actor. It fails with ErrActorNameTaken if
// the name is taken.
func (s *System) Register(name string, ref *Ref) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.cells[ref.id]; !ok {
		return cerrors.ErrActorNotFound.GenWithStackByArgs(ref)
	}
	return s.registry.Register(name, ref)
}

// Lookup returns the actor registered under name.
func (s *System) Lookup(name string) (*Ref, bool) {
	return s.registry.Lookup(name)
}

// Unregister removes the binding of name.
func (s *System) Unregister(name string) bool {
	return s.registry.Unregister(name)
}

// NumActors returns the number of live actors.
func (s *System) NumActors() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}

// Shutdown cancels every actor and waits for them to terminate. It returns
// the abnormal exit reasons combined, plus the context error if ctx is
// done before all actors terminate.
func (s *System) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	refs := make([]*Ref, 0, len(s.cells))
	for _, c := range s.cells {
		refs = append(refs, c.ref)
	}
	s.mu.Unlock()

	s.cancel()
	var errs error
	for _, ref := range refs {
		reason := ref.Join(ctx)
		if ctx.Err() != nil {
			return multierr.Append(errs, errors.Trace(ctx.Err()))
		}
		if cerrors.IsAbnormalExit(reason) {
			errs = multierr.Append(errs, reason)
		}
	}
	log.Info("actor system stopped",
		zap.String("name", s.name), zap.Stringer("id", s.id),
		zap.Int("actors", len(refs)), zap.Error(errs))
	return errs
}
