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

package channel

import (
	"context"
	"sort"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/tiactor/pkg/clock"
	cerrors "github.com/pingcap/tiactor/pkg/errors"
	"github.com/pingcap/tiactor/pkg/fiber"
	"go.uber.org/atomic"
)

const (
	stateWaiting  int32 = -1
	stateTimedOut int32 = -2
	stateCanceled int32 = -3
)

// selector is the commit point of one select. Its state moves once from
// waiting to the index of the fired operation, or to timed out or
// canceled. Whoever moves it owns the outcome.
type selector struct {
	state  atomic.Int32
	strand fiber.Strand
}

func newSelector(s fiber.Strand) *selector {
	sel := &selector{strand: s}
	sel.state.Store(stateWaiting)
	return sel
}

func (s *selector) fire(index int) bool {
	return s.state.CompareAndSwap(stateWaiting, int32(index))
}

type lockable interface {
	lockID() uint64
	lock()
	unlock()
}

// Op is a channel operation offered to a select: a *SendOp or a *RecvOp.
type Op interface {
	channel() lockable
	// tryLocked completes the operation if it needs no waiting.
	tryLocked() bool
	enqueueLocked(sel *selector, index int)
	dequeueLocked(sel *selector)
	// complete collects the result after the operation fired while
	// waiting.
	complete()
}

// SendOp sends a value to a channel.
type SendOp[T any] struct {
	ch  *Channel[T]
	v   T
	w   *waiter[T]
	err error
}

// Send returns an operation sending v to ch.
func Send[T any](ch *Channel[T], v T) *SendOp[T] {
	return &SendOp[T]{ch: ch, v: v}
}

// Channel returns the target channel.
func (op *SendOp[T]) Channel() *Channel[T] {
	return op.ch
}

// Err returns ErrChannelClosed if the send fired because the channel is
// closed.
func (op *SendOp[T]) Err() error {
	return op.err
}

func (op *SendOp[T]) channel() lockable {
	return op.ch
}

func (op *SendOp[T]) tryLocked() bool {
	done, err := op.ch.trySendLocked(op.v)
	op.err = err
	return done
}

func (op *SendOp[T]) enqueueLocked(sel *selector, index int) {
	op.w = &waiter[T]{sel: sel, index: index, value: op.v}
	op.ch.sendq.push(op.w)
}

func (op *SendOp[T]) dequeueLocked(sel *selector) {
	op.ch.removeLocked(sel)
}

func (op *SendOp[T]) complete() {
	if op.w.closed {
		op.err = cerrors.ErrChannelClosed.GenWithStackByArgs()
	}
}

// RecvOp receives a value from a channel.
type RecvOp[T any] struct {
	ch     *Channel[T]
	w      *waiter[T]
	value  T
	closed bool
}

// Recv returns an operation receiving from ch.
func Recv[T any](ch *Channel[T]) *RecvOp[T] {
	return &RecvOp[T]{ch: ch}
}

// Channel returns the source channel.
func (op *RecvOp[T]) Channel() *Channel[T] {
	return op.ch
}

// Value returns the received value. It is the zero value if the
// operation fired because the channel is closed.
func (op *RecvOp[T]) Value() T {
	return op.value
}

// Closed reports whether the operation fired because the channel is
// closed and drained.
func (op *RecvOp[T]) Closed() bool {
	return op.closed
}

func (op *RecvOp[T]) result() (T, error) {
	if op.closed {
		return op.value, cerrors.ErrChannelClosed.GenWithStackByArgs()
	}
	return op.value, nil
}

func (op *RecvOp[T]) channel() lockable {
	return op.ch
}

func (op *RecvOp[T]) tryLocked() bool {
	v, closed, done := op.ch.tryRecvLocked()
	if done {
		op.value, op.closed = v, closed
	}
	return done
}

func (op *RecvOp[T]) enqueueLocked(sel *selector, index int) {
	op.w = &waiter[T]{sel: sel, index: index}
	op.ch.recvq.push(op.w)
}

func (op *RecvOp[T]) dequeueLocked(sel *selector) {
	op.ch.removeLocked(sel)
}

func (op *RecvOp[T]) complete() {
	op.value, op.closed = op.w.value, op.w.closed
}

// Select waits until one of ops fires and returns it. Exactly one
// operation fires. When several are ready, the first offered wins.
func Select(ctx context.Context, ops ...Op) (Op, error) {
	return SelectTimeout(ctx, fiber.NoTimeout, ops...)
}

// SelectTimeout is like Select but gives up after d and returns a nil Op.
// A zero d only fires an operation that is ready. A negative d waits
// indefinitely.
func SelectTimeout(ctx context.Context, d time.Duration, ops ...Op) (Op, error) {
	fired, err := selectOps(ctx, d, ops)
	if err != nil || fired < 0 {
		return nil, err
	}
	return ops[fired], nil
}

// SelectFunc runs a select and passes the fired operation to handler, or
// nil on timeout. It returns what handler returns.
func SelectFunc(
	ctx context.Context, d time.Duration, handler func(op Op) (any, error), ops ...Op,
) (any, error) {
	op, err := SelectTimeout(ctx, d, ops...)
	if err != nil {
		return nil, err
	}
	return handler(op)
}

// channelSet holds the distinct channels of a select in lock order.
type channelSet []lockable

func newChannelSet(ops []Op) channelSet {
	set := make(channelSet, 0, len(ops))
	seen := make(map[uint64]struct{}, len(ops))
	for _, op := range ops {
		ch := op.channel()
		if _, ok := seen[ch.lockID()]; ok {
			continue
		}
		seen[ch.lockID()] = struct{}{}
		set = append(set, ch)
	}
	sort.Slice(set, func(i, j int) bool {
		return set[i].lockID() < set[j].lockID()
	})
	return set
}

func (s channelSet) lock() {
	for _, ch := range s {
		ch.lock()
	}
}

func (s channelSet) unlock() {
	for i := len(s) - 1; i >= 0; i-- {
		s[i].unlock()
	}
}

// selectOps returns the index of the fired operation, or -1 on timeout.
//
// All channels are locked in ID order while the operations are tried and
// while waiters are registered or removed, so two selects over
// overlapping channels never deadlock. A waiter is only completed by the
// party that wins the CAS on its selector.
func selectOps(ctx context.Context, d time.Duration, ops []Op) (int, error) {
	if len(ops) == 0 {
		return -1, cerrors.ErrSelectNoOps.GenWithStackByArgs()
	}
	set := newChannelSet(ops)

	set.lock()
	for i, op := range ops {
		if op.tryLocked() {
			set.unlock()
			selectFired.Inc()
			return i, nil
		}
	}
	if d == 0 {
		set.unlock()
		selectTimeouts.Inc()
		return -1, nil
	}
	if err := ctx.Err(); err != nil {
		set.unlock()
		return -1, errors.Trace(err)
	}
	sel := newSelector(fiber.CurrentStrand(ctx))
	for i, op := range ops {
		op.enqueueLocked(sel, i)
	}
	set.unlock()

	clk := fiber.ClockFromContext(ctx)
	deadline := clock.DeadlineAfter(clk, d)
	for sel.state.Load() == stateWaiting {
		if ctx.Err() != nil {
			sel.state.CompareAndSwap(stateWaiting, stateCanceled)
			continue
		}
		if deadline.Expired(clk) {
			sel.state.CompareAndSwap(stateWaiting, stateTimedOut)
			continue
		}
		fiber.ParkTimeout(ctx, sel.strand, clk, deadline.Remaining(clk))
	}

	set.lock()
	for _, op := range ops {
		op.dequeueLocked(sel)
	}
	set.unlock()

	switch st := sel.state.Load(); st {
	case stateCanceled:
		return -1, errors.Trace(ctx.Err())
	case stateTimedOut:
		selectTimeouts.Inc()
		return -1, nil
	default:
		ops[st].complete()
		selectFired.Inc()
		return int(st), nil
	}
}
