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

package bench

import (
	"context"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/tiactor/pkg/actor"
	"github.com/pingcap/tiactor/pkg/fiber"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type ping struct {
	from *actor.Ref
	seq  int
}

type pong struct {
	seq int
}

// noise is never matched by the ponger. It stays deferred in the mailbox
// and every receive has to skip it.
type noise struct{}

type stop struct{}

type pingPongOptions struct {
	rounds     int
	noiseEvery int
	timeout    time.Duration
}

func newCmdPingPong(o *options) *cobra.Command {
	po := &pingPongOptions{}
	command := &cobra.Command{
		Use:   "pingpong",
		Short: "Two actors exchange messages through selective receive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, "pingpong", po.run)
		},
	}
	command.Flags().IntVar(&po.rounds, "rounds", 100000, "number of ping-pong round trips")
	command.Flags().IntVar(&po.noiseEvery, "noise-every", 0, "send an unmatched message every N pings, 0 disables it")
	command.Flags().DurationVar(&po.timeout, "timeout", 5*time.Second, "time to wait for a single pong")
	return command
}

func (po *pingPongOptions) run(ctx context.Context, _ *fiber.Scheduler, sys *actor.System) (int, error) {
	var deferred int
	ponger, err := sys.Spawn(ctx, func(c *actor.Context) error {
		for {
			msg, err := c.Receive(func(msg any) (any, error) {
				switch m := msg.(type) {
				case *ping:
					if err := c.Send(m.from, &pong{seq: m.seq}); err != nil {
						return nil, err
					}
					return m, nil
				case stop:
					return m, nil
				default:
					return nil, actor.Defer()
				}
			})
			if err != nil {
				return err
			}
			if _, ok := msg.(stop); ok {
				deferred = c.Mailbox().Len()
				return nil
			}
		}
	}, actor.WithName("ponger"))
	if err != nil {
		return 0, errors.Trace(err)
	}

	var exchanged int
	pinger, err := sys.Spawn(ctx, func(c *actor.Context) error {
		c.Link(ponger)
		for i := 0; i < po.rounds; i++ {
			if po.noiseEvery > 0 && i%po.noiseEvery == 0 {
				if err := c.Send(ponger, noise{}); err != nil {
					return err
				}
			}
			if err := c.Send(ponger, &ping{from: c.Self(), seq: i}); err != nil {
				return err
			}
			seq := i
			_, err := c.ReceiveTimeout(po.timeout, func(msg any) (any, error) {
				if msg == actor.Timeout {
					return nil, errors.Errorf("pong %d timed out after %s", seq, po.timeout)
				}
				if p, ok := msg.(*pong); ok && p.seq == seq {
					return p, nil
				}
				return nil, actor.Defer()
			})
			if err != nil {
				return err
			}
			exchanged += 2
		}
		c.Unlink(ponger)
		return c.Send(ponger, stop{})
	}, actor.WithName("pinger"))
	if err != nil {
		return 0, errors.Trace(err)
	}

	if err := pinger.Join(ctx); err != nil {
		return 0, err
	}
	if err := ponger.Join(ctx); err != nil {
		return 0, err
	}
	log.Info("pingpong finished",
		zap.Int("exchanged", exchanged),
		zap.Int("deferred", deferred))
	return exchanged, nil
}
