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

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/tiactor/pkg/actor"
	"github.com/pingcap/tiactor/pkg/cmd/util"
	"github.com/pingcap/tiactor/pkg/config"
	"github.com/pingcap/tiactor/pkg/fiber"
	"github.com/pingcap/tiactor/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// options defines flags shared by the `bench` subcommands.
type options struct {
	configFilePath string
	logLevel       string
	logFile        string
	workers        int
	dumpMetrics    bool

	cfg *config.Config
}

// newOptions creates new options for the `bench` command.
func newOptions() *options {
	return &options{}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to template printing to it.
func (o *options) addFlags(cmd *cobra.Command) {
	defaultCfg := config.GetDefaultConfig()
	cmd.PersistentFlags().StringVar(&o.configFilePath, "config", "", "Path of the configuration file")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", defaultCfg.Log.Level, "log level (etc: debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&o.logFile, "log-file", defaultCfg.Log.File, "log file path")
	cmd.PersistentFlags().IntVar(&o.workers, "workers", defaultCfg.Scheduler.WorkerCount, "number of fibers executing at once")
	cmd.PersistentFlags().BoolVar(&o.dumpMetrics, "metrics", false, "print the runtime metrics after the workload")
}

// loadConfig reads the configuration file and applies the flags the user
// set explicitly on top of it.
func (o *options) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.GetDefaultConfig()
	if len(o.configFilePath) > 0 {
		if err := util.StrictDecodeFile(o.configFilePath, "tiactor", cfg); err != nil {
			return nil, err
		}
	}
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "log-level":
			cfg.Log.Level = o.logLevel
		case "log-file":
			cfg.Log.File = o.logFile
		case "workers":
			cfg.Scheduler.WorkerCount = o.workers
		}
	})
	if err := cfg.ValidateAndAdjust(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

// NewCmdBench creates the `bench` command.
func NewCmdBench() *cobra.Command {
	o := newOptions()

	cmds := &cobra.Command{
		Use:   "bench",
		Short: "Run tiactor workloads",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			o.cfg = cfg
			return nil
		},
	}
	o.addFlags(cmds)

	cmds.AddCommand(newCmdPingPong(o))
	cmds.AddCommand(newCmdSelect(o))

	return cmds
}

// workload is a benchmark body. It returns the number of messages it
// moved.
type workload func(ctx context.Context, sched *fiber.Scheduler, sys *actor.System) (int, error)

// run sets up logging, a scheduler and an actor system, runs w and prints
// its throughput.
func (o *options) run(cmd *cobra.Command, name string, w workload) error {
	ctx, cancel := util.InitCmd(cmd, o.cfg.Log)
	defer cancel()
	version.LogVersionInfo("tiactor")
	log.Info("bench config", zap.String("workload", name), zap.Stringer("config", o.cfg))

	sched := fiber.NewScheduler(o.cfg.SchedulerConfig())
	if err := sched.Start(); err != nil {
		return errors.Trace(err)
	}
	sys := actor.NewSystem(sched, o.cfg.SystemConfig())

	done := make(chan struct{})
	util.InitSignalHandling(func() <-chan struct{} {
		cancel()
		return done
	}, cancel)

	start := time.Now()
	n, err := w(ctx, sched, sys)
	elapsed := time.Since(start)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if serr := sys.Shutdown(shutdownCtx); serr != nil {
		log.Warn("actor system shutdown", zap.Error(serr))
	}
	if serr := sched.Stop(); serr != nil {
		log.Warn("scheduler stop", zap.Error(serr))
	}
	close(done)
	if err != nil {
		return errors.Trace(err)
	}

	report(cmd, name, n, elapsed)
	if o.dumpMetrics {
		return dumpMetrics(cmd.OutOrStdout())
	}
	return nil
}

func report(cmd *cobra.Command, name string, n int, elapsed time.Duration) {
	rate := float64(n)
	if elapsed > 0 {
		rate = float64(n) / elapsed.Seconds()
	}
	cmd.Printf("%s %s messages in %s, %s msg/s\n",
		color.HiGreenString("[%s]", name),
		humanize.Comma(int64(n)),
		elapsed.Round(time.Microsecond),
		color.HiCyanString(humanize.CommafWithDigits(rate, 1)))
}
