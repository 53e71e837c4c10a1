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
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/tiactor/pkg/clock"
	cerrors "github.com/pingcap/tiactor/pkg/errors"
	"github.com/pingcap/tiactor/pkg/fiber"
)

// Handler inspects a message during a receive.
//
//   - (v, nil) with a non-nil v matches: the message is removed and the
//     receive returns v.
//   - (nil, nil) discards: the message is removed and the scan goes on.
//   - (_, Defer()) leaves the message in the mailbox for a later receive.
//   - any other error removes the message and fails the receive with it.
//     So does a panic, which keeps unwinding afterwards.
//
// On timeout the handler is called once with Timeout.
type Handler func(msg any) (any, error)

var errDefer = cerrors.ErrDefer.FastGenByArgs()

// Defer is returned by a Handler to leave the message in the mailbox.
func Defer() error {
	return errDefer
}

// Receive waits for the first message the handler matches.
func (c *Context) Receive(h Handler) (any, error) {
	return c.receive(fiber.NoTimeout, h)
}

// ReceiveTimeout is like Receive but gives up after d. Then the handler is
// called with Timeout, and its result is returned; a nil or deferred result
// makes it return (nil, nil). A zero or negative d only scans the messages
// already queued.
func (c *Context) ReceiveTimeout(d time.Duration, h Handler) (any, error) {
	if d < 0 {
		d = 0
	}
	return c.receive(d, h)
}

func (c *Context) receive(d time.Duration, h Handler) (any, error) {
	mb := c.cell.mailbox
	clk := c.sys.clk
	deadline := clock.DeadlineAfter(clk, d)

	// One iterator per receive: messages deferred in this call are behind
	// the cursor, so only a later receive sees them again.
	it := mb.Iterator()
	for {
		mb.LockForScan()
		ok := it.Next()
		e := it.envelope()
		mb.Unlock()

		if !ok {
			arrived, err := mb.Await(c.ctx, deadline.Remaining(clk))
			if err != nil {
				return nil, errors.Trace(err)
			}
			if !arrived {
				return c.timeout(h)
			}
			continue
		}

		if c.claimed(e) {
			continue
		}
		if exit, isExit := e.msg.(*ExitMessage); isExit && exit.IsLink() {
			mb.LockForScan()
			it.Remove()
			mb.Unlock()
			if err := c.cell.lifecycle(c, exit); err != nil {
				return nil, errors.Trace(err)
			}
			continue
		}

		res, err := c.process(e, h)
		if cerrors.IsDeferError(err) {
			c.metricSkipped.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		if res != nil {
			c.metricReceived.Inc()
			return res, nil
		}
	}
}

// process runs the handler on a message claimed by this frame. The message
// is removed unless the handler defers it, including when it panics.
func (c *Context) process(e *envelope, h Handler) (res any, err error) {
	mb := c.cell.mailbox
	c.claims = append(c.claims, e)
	deferred := false
	defer func() {
		c.claims = c.claims[:len(c.claims)-1]
		if !deferred {
			mb.LockForScan()
			mb.removeLocked(e)
			mb.Unlock()
		}
	}()

	res, err = h(e.msg)
	if cerrors.IsDeferError(err) {
		deferred = true
		return nil, err
	}
	return res, err
}

// claimed reports whether an enclosing receive is handling e.
func (c *Context) claimed(e *envelope) bool {
	for _, claim := range c.claims {
		if claim == e {
			return true
		}
	}
	return false
}

func (c *Context) timeout(h Handler) (any, error) {
	c.metricTimeouts.Inc()
	res, err := h(Timeout)
	if cerrors.IsDeferError(err) {
		return nil, nil
	}
	return res, err
}
