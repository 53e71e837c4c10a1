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
	"fmt"
)

// WatchID identifies a watch installed by Context.Watch.
type WatchID uint64

// ExitMessage notifies that an actor has terminated.
//
// Watchers receive it with the WatchID returned by Context.Watch, and see it
// through Receive like any other message. Linked actors receive it with a
// zero Watch; those are routed to the lifecycle handler of the receiver and
// never reach a receive handler.
type ExitMessage struct {
	From   *Ref
	Reason error
	Watch  WatchID
}

func (m *ExitMessage) String() string {
	if m.Reason == nil {
		return fmt.Sprintf("exit(%s, normal)", m.From)
	}
	return fmt.Sprintf("exit(%s, %s)", m.From, m.Reason)
}

// IsLink reports whether the message is caused by a link rather than a
// watch.
func (m *ExitMessage) IsLink() bool {
	return m.Watch == 0
}

type timeoutSignal struct{}

func (timeoutSignal) String() string {
	return "timeout"
}

// Timeout is passed to a receive handler once, when the receive times out
// without a match.
var Timeout any = timeoutSignal{}

// envelope wraps a message in a mailbox. seq is the arrival order and is
// assigned when the message moves from the intake to the scan queue.
type envelope struct {
	seq uint64
	msg any
}

func envelopeLess(a, b *envelope) bool {
	return a.seq < b.seq
}
