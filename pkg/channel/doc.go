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
/*
Package channel implements FIFO channels that suspend fibers instead of
goroutines, and a select over several channel operations.

A Channel has a capacity: 0 is a rendezvous, a positive value a buffer of
that size and a negative value an unbounded buffer.

	ch1 := channel.New[int](0)
	ch2 := channel.New[int](1)
	op, err := channel.SelectTimeout(ctx, 10*time.Millisecond,
		channel.Recv(ch1),
		channel.Send(ch2, 2),
	)

Exactly one operation of a select fires. When several are ready the first
offered one wins. A select that times out returns a nil Op and leaves all
channels untouched.
*/
package channel
