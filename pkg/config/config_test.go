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

package config

import (
	"runtime"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/tiactor/pkg/actor"
	cerrors "github.com/pingcap/tiactor/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	require.Nil(t, cfg.ValidateAndAdjust())
	require.Equal(t, defaultSchedulerName, cfg.Scheduler.Name)
	require.Equal(t, runtime.GOMAXPROCS(0), cfg.Scheduler.WorkerCount)
	require.Equal(t, "drop", cfg.Actor.OverflowPolicy)
	require.Equal(t, "info", cfg.Log.Level)

	sys := cfg.SystemConfig()
	require.Equal(t, defaultSystemName, sys.Name)
	require.Equal(t, actor.MailboxConfig{Policy: actor.OverflowDrop}, sys.Mailbox)
}

func TestDecodeAndAdjust(t *testing.T) {
	cfg := GetDefaultConfig()
	_, err := toml.Decode(`
[scheduler]
worker-count = 3

[actor]
system-name = "bench"
mailbox-capacity = 128
overflow-policy = "Error"

[log]
level = "warning"
`, cfg)
	require.Nil(t, err)
	require.Nil(t, cfg.ValidateAndAdjust())

	sched := cfg.SchedulerConfig()
	require.Equal(t, defaultSchedulerName, sched.Name)
	require.Equal(t, 3, sched.WorkerCount)

	sys := cfg.SystemConfig()
	require.Equal(t, "bench", sys.Name)
	require.Equal(t, 128, sys.Mailbox.Capacity)
	require.Equal(t, actor.OverflowError, sys.Mailbox.Policy)
	require.Equal(t, "error", cfg.Actor.OverflowPolicy)
	require.Equal(t, "warn", cfg.Log.Level)
}

func TestValidateAndAdjustFillsSections(t *testing.T) {
	cfg := &Config{}
	require.Nil(t, cfg.ValidateAndAdjust())
	require.NotNil(t, cfg.Scheduler)
	require.NotNil(t, cfg.Actor)
	require.NotNil(t, cfg.Log)

	cfg = &Config{Scheduler: &SchedulerConfig{}}
	require.Nil(t, cfg.ValidateAndAdjust())
	require.Equal(t, defaultSchedulerName, cfg.Scheduler.Name)
	require.Equal(t, runtime.GOMAXPROCS(0), cfg.Scheduler.WorkerCount)
}

func TestValidateAndAdjustRejects(t *testing.T) {
	cases := []func(c *Config){
		func(c *Config) { c.Scheduler.WorkerCount = -1 },
		func(c *Config) { c.Actor.MailboxCapacity = -1 },
		func(c *Config) { c.Actor.OverflowPolicy = "block" },
	}
	for i, mutate := range cases {
		cfg := GetDefaultConfig()
		mutate(cfg)
		err := cfg.ValidateAndAdjust()
		require.True(t, cerrors.ErrInvalidConfig.Equal(err), "case %d: %v", i, err)
	}
}

func TestClone(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Actor.MailboxCapacity = 16
	cloned := cfg.Clone()
	require.Equal(t, cfg, cloned)

	cloned.Actor.MailboxCapacity = 32
	require.Equal(t, 16, cfg.Actor.MailboxCapacity)
	require.Contains(t, cfg.String(), "mailbox-capacity = 16")
}
