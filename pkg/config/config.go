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
	"encoding/json"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/pingcap/tiactor/pkg/actor"
	cerrors "github.com/pingcap/tiactor/pkg/errors"
	"github.com/pingcap/tiactor/pkg/fiber"
	"github.com/pingcap/tiactor/pkg/logutil"
)

const (
	defaultSchedulerName = "tiactor"
	defaultSystemName    = "tiactor"
)

// Config is the configuration of a tiactor process.
type Config struct {
	Scheduler *SchedulerConfig `toml:"scheduler" json:"scheduler"`
	Actor     *ActorConfig     `toml:"actor" json:"actor"`
	Log       *logutil.Config  `toml:"log" json:"log"`
}

// SchedulerConfig is the configuration of the fiber scheduler.
type SchedulerConfig struct {
	Name string `toml:"name" json:"name"`
	// WorkerCount is the number of fibers executing at once. 0 means
	// GOMAXPROCS.
	WorkerCount int `toml:"worker-count" json:"worker-count"`
}

// ActorConfig is the configuration of the actor system.
type ActorConfig struct {
	SystemName string `toml:"system-name" json:"system-name"`
	// MailboxCapacity bounds every mailbox. 0 means unbounded.
	MailboxCapacity int `toml:"mailbox-capacity" json:"mailbox-capacity"`
	// OverflowPolicy is "drop" or "error".
	OverflowPolicy string `toml:"overflow-policy" json:"overflow-policy"`
}

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() *Config {
	return &Config{
		Scheduler: &SchedulerConfig{
			Name:        defaultSchedulerName,
			WorkerCount: runtime.GOMAXPROCS(0),
		},
		Actor: &ActorConfig{
			SystemName:     defaultSystemName,
			OverflowPolicy: actor.OverflowDrop.String(),
		},
		Log: logutil.DefaultConfig(),
	}
}

// Clone clones the configuration.
func (c *Config) Clone() *Config {
	str, err := c.Marshal()
	if err != nil {
		panic(err)
	}
	cloned := new(Config)
	if err := cloned.Unmarshal([]byte(str)); err != nil {
		panic(err)
	}
	return cloned
}

// Marshal returns the json marshal format of the configuration.
func (c *Config) Marshal() (string, error) {
	cfg, err := json.Marshal(c)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(cfg), nil
}

// Unmarshal unmarshals into *Config from json marshal byte slice.
func (c *Config) Unmarshal(data []byte) error {
	return errors.Trace(json.Unmarshal(data, c))
}

// String implements fmt.Stringer.
func (c *Config) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return "<invalid config>"
	}
	return b.String()
}

// ValidateAndAdjust validates and adjusts the configuration.
func (c *Config) ValidateAndAdjust() error {
	defaultCfg := GetDefaultConfig()
	if c.Scheduler == nil {
		c.Scheduler = defaultCfg.Scheduler
	}
	if c.Actor == nil {
		c.Actor = defaultCfg.Actor
	}
	if c.Log == nil {
		c.Log = defaultCfg.Log
	}

	if c.Scheduler.Name == "" {
		c.Scheduler.Name = defaultSchedulerName
	}
	if c.Scheduler.WorkerCount < 0 {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs(
			"scheduler.worker-count must not be negative")
	}
	if c.Scheduler.WorkerCount == 0 {
		c.Scheduler.WorkerCount = runtime.GOMAXPROCS(0)
	}

	if c.Actor.SystemName == "" {
		c.Actor.SystemName = defaultSystemName
	}
	if c.Actor.MailboxCapacity < 0 {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs(
			"actor.mailbox-capacity must not be negative")
	}
	policy, err := actor.ParseOverflowPolicy(c.Actor.OverflowPolicy)
	if err != nil {
		return err
	}
	c.Actor.OverflowPolicy = policy.String()

	c.Log.Adjust()
	return nil
}

// SchedulerConfig returns the fiber scheduler configuration. It must be
// called after ValidateAndAdjust.
func (c *Config) SchedulerConfig() *fiber.Config {
	return &fiber.Config{
		Name:        c.Scheduler.Name,
		WorkerCount: c.Scheduler.WorkerCount,
	}
}

// SystemConfig returns the actor system configuration. It must be called
// after ValidateAndAdjust.
func (c *Config) SystemConfig() *actor.SystemConfig {
	// The policy is validated by ValidateAndAdjust.
	policy, _ := actor.ParseOverflowPolicy(c.Actor.OverflowPolicy)
	return &actor.SystemConfig{
		Name: c.Actor.SystemName,
		Mailbox: actor.MailboxConfig{
			Capacity: c.Actor.MailboxCapacity,
			Policy:   policy,
		},
	}
}
