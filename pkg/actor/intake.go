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
	"go.uber.org/atomic"
)

type intakeNode struct {
	next atomic.Pointer[intakeNode]
	msg  any
}

// intake is a lock-free multi-producer single-consumer queue.
//
// Producers swap the tail and then link the previous node, so a pushed
// message may be invisible to the consumer for a short moment. It is never
// lost: the consumer sees it once the producer finishes push.
type intake struct {
	// head is only accessed by the consumer.
	head *intakeNode
	tail atomic.Pointer[intakeNode]
}

func newIntake() *intake {
	stub := &intakeNode{}
	q := &intake{head: stub}
	q.tail.Store(stub)
	return q
}

// push is safe for concurrent use.
func (q *intake) push(msg any) {
	n := &intakeNode{msg: msg}
	prev := q.tail.Swap(n)
	prev.next.Store(n)
}

// pop must only be called by the consumer.
func (q *intake) pop() (any, bool) {
	next := q.head.next.Load()
	if next == nil {
		return nil, false
	}
	q.head = next
	msg := next.msg
	next.msg = nil
	return msg, true
}

// empty must only be called by the consumer.
func (q *intake) empty() bool {
	return q.head.next.Load() == nil
}
