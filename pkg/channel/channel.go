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
	"sync"
	"time"

	cerrors "github.com/pingcap/tiactor/pkg/errors"
	"github.com/pingcap/tiactor/pkg/fiber"
	"go.uber.org/atomic"
)

var channelIDs atomic.Uint64

// waiter is a pending send or receive of a select on one channel.
type waiter[T any] struct {
	sel   *selector
	index int

	// value is the value to send, or the received value once fired.
	value T
	// closed is set when the channel closed under the waiter.
	closed bool
}

func (w *waiter[T]) claim() bool {
	return w.sel.fire(w.index)
}

// Channel is a FIFO channel usable from fibers and goroutines. Blocking
// operations suspend the strand carried by their context.
//
// A capacity of 0 makes a rendezvous channel, a positive capacity a
// buffered one, and a negative capacity an unbounded one.
type Channel[T any] struct {
	id       uint64
	capacity int

	mu     sync.Mutex
	buf    *queue[T]
	recvq  *queue[*waiter[T]]
	sendq  *queue[*waiter[T]]
	closed bool
}

// New creates a channel with the given capacity.
func New[T any](capacity int) *Channel[T] {
	if capacity < 0 {
		capacity = -1
	}
	return &Channel[T]{
		id:       channelIDs.Inc(),
		capacity: capacity,
		buf:      newQueue[T](),
		recvq:    newQueue[*waiter[T]](),
		sendq:    newQueue[*waiter[T]](),
	}
}

func (ch *Channel[T]) lockID() uint64 {
	return ch.id
}

func (ch *Channel[T]) lock() {
	ch.mu.Lock()
}

func (ch *Channel[T]) unlock() {
	ch.mu.Unlock()
}

// Cap returns the capacity of the channel, -1 for an unbounded one.
func (ch *Channel[T]) Cap() int {
	return ch.capacity
}

// Len returns the number of buffered values.
func (ch *Channel[T]) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.buf.len()
}

// Send sends v, waiting for a receiver or buffer space. It fails with
// ErrChannelClosed if the channel is closed.
func (ch *Channel[T]) Send(ctx context.Context, v T) error {
	op := Send(ch, v)
	if _, err := selectOps(ctx, fiber.NoTimeout, []Op{op}); err != nil {
		return err
	}
	return op.Err()
}

// SendTimeout is like Send but gives up after d. It reports whether the
// value was sent.
func (ch *Channel[T]) SendTimeout(ctx context.Context, v T, d time.Duration) (bool, error) {
	if d < 0 {
		d = 0
	}
	op := Send(ch, v)
	fired, err := selectOps(ctx, d, []Op{op})
	if err != nil || fired < 0 {
		return false, err
	}
	return true, op.Err()
}

// TrySend sends v only if that does not need to wait.
func (ch *Channel[T]) TrySend(v T) (bool, error) {
	return ch.SendTimeout(context.Background(), v, 0)
}

// Receive waits for a value. It fails with ErrChannelClosed once the
// channel is closed and drained.
func (ch *Channel[T]) Receive(ctx context.Context) (T, error) {
	op := Recv(ch)
	if _, err := selectOps(ctx, fiber.NoTimeout, []Op{op}); err != nil {
		var noVal T
		return noVal, err
	}
	return op.result()
}

// ReceiveTimeout is like Receive but gives up after d. It reports whether
// a value was received.
func (ch *Channel[T]) ReceiveTimeout(ctx context.Context, d time.Duration) (T, bool, error) {
	if d < 0 {
		d = 0
	}
	op := Recv(ch)
	fired, err := selectOps(ctx, d, []Op{op})
	if err != nil || fired < 0 {
		var noVal T
		return noVal, false, err
	}
	v, err := op.result()
	return v, err == nil, err
}

// TryReceive receives a value only if that does not need to wait.
func (ch *Channel[T]) TryReceive() (T, bool, error) {
	return ch.ReceiveTimeout(context.Background(), 0)
}

// Close closes the channel. Waiting senders fail with ErrChannelClosed;
// receivers drain the buffered values before they see the channel closed.
// Closing a closed channel is a no-op.
func (ch *Channel[T]) Close() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	ch.closed = true
	wake := func(q *queue[*waiter[T]]) {
		for {
			w, ok := q.pop()
			if !ok {
				return
			}
			if w.claim() {
				w.closed = true
				w.sel.strand.Unpark()
			}
		}
	}
	wake(ch.recvq)
	wake(ch.sendq)
}

// Closed reports whether the channel is closed.
func (ch *Channel[T]) Closed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

// claimLocked pops waiters until one can be claimed for this operation.
// Waiters of selects that fired elsewhere or gave up are dropped.
func claimLocked[T any](q *queue[*waiter[T]]) (*waiter[T], bool) {
	for {
		w, ok := q.pop()
		if !ok {
			return nil, false
		}
		if w.claim() {
			return w, true
		}
	}
}

// trySendLocked completes a send without waiting if possible.
func (ch *Channel[T]) trySendLocked(v T) (done bool, err error) {
	if ch.closed {
		return true, cerrors.ErrChannelClosed.GenWithStackByArgs()
	}
	if w, ok := claimLocked(ch.recvq); ok {
		w.value = v
		w.sel.strand.Unpark()
		return true, nil
	}
	if ch.capacity < 0 || ch.buf.len() < ch.capacity {
		ch.buf.push(v)
		return true, nil
	}
	return false, nil
}

// tryRecvLocked completes a receive without waiting if possible.
func (ch *Channel[T]) tryRecvLocked() (v T, closed bool, done bool) {
	if bv, ok := ch.buf.pop(); ok {
		// Buffer space freed: move one waiting sender in.
		if w, ok := claimLocked(ch.sendq); ok {
			ch.buf.push(w.value)
			w.sel.strand.Unpark()
		}
		return bv, false, true
	}
	if w, ok := claimLocked(ch.sendq); ok {
		v = w.value
		w.sel.strand.Unpark()
		return v, false, true
	}
	if ch.closed {
		return v, true, true
	}
	return v, false, false
}

func (ch *Channel[T]) removeLocked(sel *selector) {
	keep := func(w *waiter[T]) bool {
		return w.sel != sel
	}
	ch.recvq.filter(keep)
	ch.sendq.filter(keep)
}
