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
	"sync"
	"time"

	cerrors "github.com/pingcap/tiactor/pkg/errors"
	"github.com/pingcap/tiactor/pkg/fiber"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// ID is ID for actors.
type ID uint64

// Body is the code an actor runs. The actor terminates when it returns;
// the returned error is the exit reason reported to watchers and links.
type Body func(c *Context) error

// LifecycleHandler handles exit messages of linked actors. A non-nil error
// is returned from the receive that encountered the message.
type LifecycleHandler func(c *Context, msg *ExitMessage) error

// DefaultLifecycleHandler fails the receive when a linked actor exits with
// an abnormal reason, and ignores normal exits.
func DefaultLifecycleHandler(c *Context, msg *ExitMessage) error {
	if cerrors.IsAbnormalExit(msg.Reason) {
		return cerrors.ErrLinkedActorDied.GenWithStackByArgs(msg.From, msg.Reason)
	}
	return nil
}

// Option configures an actor at spawn time.
type Option func(o *spawnOptions)

type spawnOptions struct {
	name      string
	mailbox   *MailboxConfig
	lifecycle LifecycleHandler
}

// WithName registers the actor under name before it starts.
func WithName(name string) Option {
	return func(o *spawnOptions) {
		o.name = name
	}
}

// WithMailbox overrides the mailbox configuration of the system.
func WithMailbox(cfg MailboxConfig) Option {
	return func(o *spawnOptions) {
		o.mailbox = &cfg
	}
}

// WithLifecycleHandler replaces DefaultLifecycleHandler.
func WithLifecycleHandler(h LifecycleHandler) Option {
	return func(o *spawnOptions) {
		o.lifecycle = h
	}
}

// Ref is an opaque reference to an actor. It stays valid after the actor
// terminates; sends to a terminated actor are absorbed.
type Ref struct {
	id    ID
	sys   *System
	fiber atomic.Pointer[fiber.Fiber]

	exited atomic.Bool
	reason atomic.Error
}

// ID returns the actor ID.
func (r *Ref) ID() ID {
	return r.id
}

func (r *Ref) String() string {
	if name, ok := r.sys.registry.NameOf(r.id); ok {
		return name
	}
	return fmt.Sprintf("actor-%d", r.id)
}

// Send enqueues msg into the mailbox of the actor. It never blocks.
func (r *Ref) Send(msg any) error {
	return r.sys.Send(r, msg)
}

// Alive reports whether the actor has not terminated.
func (r *Ref) Alive() bool {
	return !r.exited.Load()
}

// ExitReason returns the exit reason of a terminated actor. It returns nil
// while the actor is alive.
func (r *Ref) ExitReason() error {
	if !r.exited.Load() {
		return nil
	}
	return r.reason.Load()
}

// Join waits for the actor to terminate and returns its exit reason. It
// returns the context error if ctx is done first.
func (r *Ref) Join(ctx context.Context) error {
	f := r.fiber.Load()
	if f == nil {
		return nil
	}
	_, err := f.Join(ctx)
	return err
}

// cell is the system-side record of an actor.
type cell struct {
	ref       *Ref
	mailbox   *Mailbox
	lifecycle LifecycleHandler
	cancel    context.CancelFunc

	mu       sync.Mutex
	watchers map[WatchID]*Ref
	links    map[ID]*Ref
	dead     bool
}

// markDead records the exit reason and detaches the watchers and links.
// The reason is visible before any addWatcher or addLink can fail.
func (c *cell) markDead(reason error) (map[WatchID]*Ref, map[ID]*Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ref.reason.Store(reason)
	c.ref.exited.Store(true)
	c.dead = true
	watchers, links := c.watchers, c.links
	c.watchers, c.links = nil, nil
	return watchers, links
}

// addWatcher returns false if the actor is already dead.
func (c *cell) addWatcher(id WatchID, watcher *Ref) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return false
	}
	c.watchers[id] = watcher
	return true
}

func (c *cell) removeWatcher(id WatchID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.watchers, id)
}

func (c *cell) addLink(peer *Ref) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return false
	}
	c.links[peer.id] = peer
	return true
}

func (c *cell) removeLink(peer ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.links, peer)
}

// Context is handed to the body of an actor. It must only be used by the
// actor itself.
type Context struct {
	ctx  context.Context
	sys  *System
	cell *cell

	// claims holds the messages being handled by the enclosing receives,
	// innermost last.
	claims []*envelope

	metricReceived prometheus.Counter
	metricSkipped  prometheus.Counter
	metricTimeouts prometheus.Counter
}

// Ctx returns the context of the actor. It is canceled when the actor
// terminates, when its parent terminates or when the system shuts down.
func (c *Context) Ctx() context.Context {
	return c.ctx
}

// Self returns the reference of the actor.
func (c *Context) Self() *Ref {
	return c.cell.ref
}

// System returns the system running the actor.
func (c *Context) System() *System {
	return c.sys
}

// Mailbox returns the mailbox of the actor.
func (c *Context) Mailbox() *Mailbox {
	return c.cell.mailbox
}

// Spawn starts a child actor. The child is canceled when this actor
// terminates.
func (c *Context) Spawn(body Body, opts ...Option) (*Ref, error) {
	return c.sys.Spawn(c.ctx, body, opts...)
}

// Send sends msg to another actor.
func (c *Context) Send(to *Ref, msg any) error {
	return c.sys.Send(to, msg)
}

// Sleep suspends the actor for d without consuming messages.
func (c *Context) Sleep(d time.Duration) error {
	return fiber.Sleep(c.ctx, d)
}

// Watch asks for an ExitMessage carrying the returned WatchID when target
// terminates. Watching a terminated actor delivers the message right away.
func (c *Context) Watch(target *Ref) WatchID {
	id := WatchID(c.sys.nextWatch.Inc())
	if tc, ok := c.sys.cell(target.id); ok && tc.addWatcher(id, c.Self()) {
		return id
	}
	_ = c.cell.mailbox.Enqueue(&ExitMessage{
		From:   target,
		Reason: c.sys.deadReason(target),
		Watch:  id,
	})
	return id
}

// Unwatch removes a watch. An ExitMessage already delivered stays in the
// mailbox.
func (c *Context) Unwatch(target *Ref, id WatchID) {
	if tc, ok := c.sys.cell(target.id); ok {
		tc.removeWatcher(id)
	}
}

// Link links the actor with target in both directions. When either one
// terminates, the other receives a link ExitMessage, handled by its
// lifecycle handler. Linking a terminated actor delivers the message right
// away.
func (c *Context) Link(target *Ref) {
	if target.id == c.Self().id {
		return
	}
	if tc, ok := c.sys.cell(target.id); ok && tc.addLink(c.Self()) {
		c.cell.addLink(target)
		return
	}
	_ = c.cell.mailbox.Enqueue(&ExitMessage{
		From:   target,
		Reason: c.sys.deadReason(target),
	})
}

// Unlink removes a link in both directions.
func (c *Context) Unlink(target *Ref) {
	c.cell.removeLink(target.id)
	if tc, ok := c.sys.cell(target.id); ok {
		tc.removeLink(c.Self().id)
	}
}
