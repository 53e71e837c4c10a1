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

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/tiactor/pkg/actor"
	"github.com/pingcap/tiactor/pkg/channel"
	"github.com/pingcap/tiactor/pkg/fiber"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type selectOptions struct {
	producers   int
	perProducer int
	capacity    int
	rate        float64
}

func newCmdSelect(o *options) *cobra.Command {
	so := &selectOptions{}
	command := &cobra.Command{
		Use:   "select",
		Short: "Producers feed channels drained by a single select loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, "select", so.run)
		},
	}
	command.Flags().IntVar(&so.producers, "producers", 4, "number of producer fibers, one channel each")
	command.Flags().IntVar(&so.perProducer, "messages", 100000, "number of messages sent by each producer")
	command.Flags().IntVar(&so.capacity, "capacity", 0, "channel capacity, 0 for rendezvous, negative for unbounded")
	command.Flags().Float64Var(&so.rate, "rate", 0, "messages per second of each producer, 0 for no limit")
	return command
}

func (so *selectOptions) limiter() *rate.Limiter {
	if so.rate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(so.rate / 100)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(so.rate), burst)
}

func (so *selectOptions) run(ctx context.Context, sched *fiber.Scheduler, _ *actor.System) (int, error) {
	if so.producers <= 0 {
		return 0, errors.Errorf("producers must be positive, got %d", so.producers)
	}
	chans := make([]*channel.Channel[int], so.producers)
	for i := range chans {
		chans[i] = channel.New[int](so.capacity)
	}

	consumer, err := sched.Go(ctx, func(ctx context.Context) (any, error) {
		return drain(ctx, chans)
	}, fiber.WithName("select-consumer"))
	if err != nil {
		return 0, errors.Trace(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range chans {
		ch := ch
		limiter := so.limiter()
		g.Go(func() error {
			f, err := sched.Go(gctx, func(ctx context.Context) (any, error) {
				defer ch.Close()
				for i := 0; i < so.perProducer; i++ {
					if err := limiter.Wait(ctx); err != nil {
						return nil, errors.Trace(err)
					}
					if err := ch.Send(ctx, i); err != nil {
						return nil, err
					}
				}
				return nil, nil
			})
			if err != nil {
				return errors.Trace(err)
			}
			_, err = f.Join(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	res, err := consumer.Join(ctx)
	if err != nil {
		return 0, err
	}
	n := res.(int)
	if want := so.producers * so.perProducer; n != want {
		return n, errors.Errorf("received %d messages, want %d", n, want)
	}
	log.Info("select finished", zap.Int("received", n), zap.Int("producers", so.producers))
	return n, nil
}

// drain receives from all chans until every one of them is closed and
// returns the number of received values.
func drain(ctx context.Context, chans []*channel.Channel[int]) (int, error) {
	open := append([]*channel.Channel[int](nil), chans...)
	received := 0
	ops := make([]channel.Op, 0, len(open))
	for len(open) > 0 {
		ops = ops[:0]
		for _, ch := range open {
			ops = append(ops, channel.Recv(ch))
		}
		op, err := channel.Select(ctx, ops...)
		if err != nil {
			return received, err
		}
		recv := op.(*channel.RecvOp[int])
		if !recv.Closed() {
			received++
			continue
		}
		for i, ch := range open {
			if ch == recv.Channel() {
				open = append(open[:i], open[i+1:]...)
				break
			}
		}
	}
	return received, nil
}
