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
	"github.com/edwingeng/deque"
)

// queue is a typed FIFO over edwingeng/deque. It is not thread-safe; the
// owning channel lock protects it.
type queue[T any] struct {
	deque deque.Deque
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{deque: deque.NewDeque()}
}

func (q *queue[T]) push(elem T) {
	q.deque.PushBack(elem)
}

func (q *queue[T]) pop() (T, bool) {
	if q.deque.Empty() {
		var noVal T
		return noVal, false
	}
	return cast[T](q.deque.PopFront()), true
}

func (q *queue[T]) len() int {
	return q.deque.Len()
}

// filter keeps the elements keep returns true for, in order.
func (q *queue[T]) filter(keep func(T) bool) {
	for n := q.deque.Len(); n > 0; n-- {
		elem := cast[T](q.deque.PopFront())
		if keep(elem) {
			q.deque.PushBack(elem)
		}
	}
}

// cast converts a stored element back. A nil interface value is stored for
// the zero value of an interface type T.
func cast[T any](elem any) T {
	if elem == nil {
		var noVal T
		return noVal
	}
	return elem.(T)
}
