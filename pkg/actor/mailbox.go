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
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/pingcap/errors"
	"github.com/pingcap/tiactor/pkg/clock"
	cerrors "github.com/pingcap/tiactor/pkg/errors"
	"github.com/pingcap/tiactor/pkg/fiber"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const scanQueueDegree = 16

// OverflowPolicy decides what a bounded mailbox does with a message that
// does not fit.
type OverflowPolicy int

// Overflow policies.
const (
	// OverflowDrop absorbs the message and counts it as a dead letter.
	OverflowDrop OverflowPolicy = iota
	// OverflowError rejects the message with ErrMailboxFull.
	OverflowError
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDrop:
		return "drop"
	case OverflowError:
		return "error"
	}
	return "unknown"
}

// ParseOverflowPolicy parses "drop" or "error".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(s) {
	case "", "drop":
		return OverflowDrop, nil
	case "error":
		return OverflowError, nil
	}
	return OverflowDrop, cerrors.ErrInvalidConfig.GenWithStackByArgs(
		"unknown mailbox overflow policy " + s)
}

// MailboxConfig configures a mailbox.
type MailboxConfig struct {
	// Capacity bounds the number of queued messages. Zero or negative
	// means unbounded. The bound is checked without a lock, so concurrent
	// senders may overshoot it slightly.
	Capacity int
	Policy   OverflowPolicy
}

type waiter struct {
	strand fiber.Strand
}

// Mailbox is the message queue of an actor. Any goroutine or fiber may
// enqueue; only the owner consumes.
//
// Messages are pushed onto a lock-free intake, so Enqueue never waits for
// the owner. The owner moves them into an ordered scan queue while holding
// the scan lock, which is only held around cursor and queue manipulation.
type Mailbox struct {
	owner    ID
	capacity int
	policy   OverflowPolicy

	intake *intake
	size   atomic.Int64
	closed atomic.Bool
	waiter atomic.Pointer[waiter]

	scanMu  sync.Mutex
	queue   *btree.BTreeG[*envelope]
	nextSeq uint64

	metricDeadLetters prometheus.Counter
}

// NewMailbox creates a mailbox owned by the actor with the given ID.
func NewMailbox(owner ID, cfg MailboxConfig) *Mailbox {
	return &Mailbox{
		owner:             owner,
		capacity:          cfg.Capacity,
		policy:            cfg.Policy,
		intake:            newIntake(),
		queue:             btree.NewG(scanQueueDegree, envelopeLess),
		nextSeq:           1,
		metricDeadLetters: deadLetters.WithLabelValues(defaultSystemName),
	}
}

// Enqueue appends msg and wakes the owner if it waits for messages.
// It never blocks. Messages sent to a closed mailbox are absorbed.
func (m *Mailbox) Enqueue(msg any) error {
	if m.closed.Load() {
		m.metricDeadLetters.Inc()
		return nil
	}
	if m.capacity > 0 && m.size.Load() >= int64(m.capacity) {
		if m.policy == OverflowError {
			return cerrors.ErrMailboxFull.GenWithStackByArgs(m.owner)
		}
		m.metricDeadLetters.Inc()
		return nil
	}
	m.size.Inc()
	m.intake.push(msg)
	if m.closed.Load() {
		// Close may have drained the intake before the push landed.
		m.discardLate()
		return nil
	}
	if w := m.waiter.Load(); w != nil {
		w.strand.Unpark()
	}
	return nil
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	return int(m.size.Load())
}

// LockForScan acquires the scan lock. Enqueue does not need it.
func (m *Mailbox) LockForScan() {
	m.scanMu.Lock()
}

// Unlock releases the scan lock.
func (m *Mailbox) Unlock() {
	m.scanMu.Unlock()
}

// drainLocked moves arrived messages into the scan queue. The caller must
// hold the scan lock.
func (m *Mailbox) drainLocked() {
	for {
		msg, ok := m.intake.pop()
		if !ok {
			return
		}
		m.queue.ReplaceOrInsert(&envelope{seq: m.nextSeq, msg: msg})
		m.nextSeq++
	}
}

func (m *Mailbox) removeLocked(e *envelope) bool {
	if _, ok := m.queue.Delete(e); ok {
		m.size.Dec()
		return true
	}
	return false
}

// Iterator returns an iterator positioned before the first queued message.
func (m *Mailbox) Iterator() *Iterator {
	return &Iterator{m: m}
}

// Iterator walks the mailbox in arrival order. Its methods must be called
// with the scan lock held.
//
// The iterator remembers the arrival sequence of the last message it
// returned, so it survives removals done by anyone else between calls and
// continues with the first message that is still queued after that one.
// Messages arriving during the walk are visited too.
type Iterator struct {
	m      *Mailbox
	cursor uint64
	cur    *envelope
}

// Next advances to the next queued message.
func (it *Iterator) Next() bool {
	it.m.drainLocked()
	it.cur = nil
	it.m.queue.AscendGreaterOrEqual(&envelope{seq: it.cursor + 1}, func(e *envelope) bool {
		it.cur = e
		return false
	})
	if it.cur == nil {
		return false
	}
	it.cursor = it.cur.seq
	return true
}

// Value returns the message Next moved to.
func (it *Iterator) Value() any {
	if it.cur == nil {
		return nil
	}
	return it.cur.msg
}

// Remove removes the message Next moved to. It returns false if the
// message is already gone.
func (it *Iterator) Remove() bool {
	if it.cur == nil {
		return false
	}
	removed := it.m.removeLocked(it.cur)
	it.cur = nil
	return removed
}

func (it *Iterator) envelope() *envelope {
	return it.cur
}

// Await suspends the calling strand until a message arrives or timeout
// elapses. A negative timeout waits indefinitely. It reports whether a
// message arrived, and returns the context error if ctx is done first.
//
// Only messages that were not yet moved into the scan queue when Await
// was called count as new.
func (m *Mailbox) Await(ctx context.Context, timeout time.Duration) (bool, error) {
	s := fiber.CurrentStrand(ctx)
	clk := fiber.ClockFromContext(ctx)
	deadline := clock.DeadlineAfter(clk, timeout)

	m.scanMu.Lock()
	mark := m.nextSeq
	m.scanMu.Unlock()

	w := &waiter{strand: s}
	m.waiter.Store(w)
	defer m.waiter.CompareAndSwap(w, nil)
	for {
		if m.hasArrivals(mark) {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, errors.Trace(err)
		}
		if deadline.Expired(clk) {
			return false, nil
		}
		fiber.ParkTimeout(ctx, s, clk, deadline.Remaining(clk))
	}
}

// hasArrivals reports whether messages arrived after the scan queue held
// sequences below mark.
func (m *Mailbox) hasArrivals(mark uint64) bool {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	return m.nextSeq != mark || !m.intake.empty()
}

// Messages returns a snapshot of the queued messages in arrival order.
func (m *Mailbox) Messages() []any {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	m.drainLocked()
	msgs := make([]any, 0, m.queue.Len())
	m.queue.Ascend(func(e *envelope) bool {
		msgs = append(msgs, e.msg)
		return true
	})
	return msgs
}

// Close discards queued messages as dead letters and makes further
// enqueues absorb their message. It returns the number of discarded
// messages.
func (m *Mailbox) Close() int {
	if m.closed.Swap(true) {
		return 0
	}
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	m.drainLocked()
	n := m.queue.Len()
	m.queue.Clear(false)
	m.size.Sub(int64(n))
	m.metricDeadLetters.Add(float64(n))
	return n
}

// discardLate drops messages pushed after Close drained the intake.
func (m *Mailbox) discardLate() {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	for {
		if _, ok := m.intake.pop(); !ok {
			return
		}
		m.size.Dec()
		m.metricDeadLetters.Inc()
	}
}

// Closed reports whether the mailbox is closed.
func (m *Mailbox) Closed() bool {
	return m.closed.Load()
}
