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

// Package clock abstracts time for the scheduler, mailboxes and channels so
// that timeout-bounded operations can be driven by a mock clock in tests.
package clock

import (
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/gavv/monotime"
)

type (
	// Timer is a timer created by a Clock.
	Timer = bclock.Timer
	// MonotonicTime is a reading of the monotonic clock.
	MonotonicTime time.Duration
)

var unixEpoch = time.Unix(0, 0)

// Clock is the time source used by blocking operations.
type Clock interface {
	bclock.Clock
	Mono() MonotonicTime
}

type realClock struct {
	bclock.Clock
}

func (r realClock) Mono() MonotonicTime {
	return MonotonicTime(monotime.Now())
}

// Mock is a manually advanced Clock.
type Mock struct {
	*bclock.Mock
}

// Mono implements Clock.
func (m Mock) Mono() MonotonicTime {
	return MonotonicTime(m.Now().Sub(unixEpoch))
}

// New returns a Clock backed by the system clock.
func New() Clock {
	return realClock{bclock.New()}
}

// NewMock returns a mock Clock set to the Unix epoch.
func NewMock() *Mock {
	return &Mock{bclock.NewMock()}
}

// Sub returns the duration m-other.
func (m MonotonicTime) Sub(other MonotonicTime) time.Duration {
	return time.Duration(m - other)
}

// MonoNow reads the process monotonic clock.
func MonoNow() MonotonicTime {
	return MonotonicTime(monotime.Now())
}

// Deadline is an absolute point in time derived from a relative timeout.
// The zero Deadline never expires.
type Deadline struct {
	at  time.Time
	set bool
}

// DeadlineAfter returns a Deadline d from now on clk. A negative d yields
// a Deadline that never expires.
func DeadlineAfter(clk Clock, d time.Duration) Deadline {
	if d < 0 {
		return Deadline{}
	}
	return Deadline{at: clk.Now().Add(d), set: true}
}

// IsSet reports whether the deadline can expire.
func (d Deadline) IsSet() bool {
	return d.set
}

// Remaining returns the time left before the deadline, or a negative
// duration if the deadline is not set. An expired deadline returns 0.
func (d Deadline) Remaining(clk Clock) time.Duration {
	if !d.set {
		return -1
	}
	left := d.at.Sub(clk.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether the deadline has passed.
func (d Deadline) Expired(clk Clock) bool {
	return d.set && !clk.Now().Before(d.at)
}
