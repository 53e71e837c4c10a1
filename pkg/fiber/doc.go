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

// Package fiber provides cooperatively scheduled lightweight threads.
//
// A Scheduler owns a fixed set of workers and a FIFO run-queue. Fibers are
// suspended only at explicit points: Park (used by mailbox and channel
// waits), Yield and Sleep.
//
//	,---------.        ,-----.        ,------.        ,-----.
//	|Scheduler|        |runq |        |worker|        |Fiber|
//	`----+----'        `--+--'        `--+---'        `--+--'
//	     |  Go(fn)        |              |               |
//	     |--------------->|              |               |
//	     |                |   next()     |               |
//	     |                |<-------------|               |
//	     |                |   fiber      |               |
//	     |                |------------->|   resume      |
//	     |                |              |-------------->|
//	     |                |              |               |----.
//	     |                |              |               |    | run until
//	     |                |              |               |<---' Park/Yield
//	     |                |              |   release     |
//	     |                |              |<--------------|
//	     |                |   Unpark()   |               |
//	     |                |<-----------------------------|
//	,----+----.        ,--+--.        ,--+---.        ,--+--.
//	|Scheduler|        |runq |        |worker|        |Fiber|
//	`---------'        `-----'        `------'        `-----'
//
// Blocking operations find the fiber to suspend through the context passed
// to them; see CurrentStrand. Called from a plain goroutine they park that
// goroutine instead, so the same primitives work inside and outside the
// scheduler.
package fiber
