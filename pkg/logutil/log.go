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

package logutil

import (
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultLogLevel      = "info"
	defaultLogMaxDays    = 7
	defaultLogMaxSize    = 512 // MB
	defaultLogMaxBackups = 8
)

// Config serializes log related config in toml/json.
type Config struct {
	// Log level.
	Level string `toml:"level" json:"level"`
	// Log filename, leave empty to disable file log.
	File string `toml:"file" json:"file"`
	// Max size for a single file, in MB.
	FileMaxSize int `toml:"max-size" json:"max-size"`
	// Max log keep days, default is never deleting.
	FileMaxDays int `toml:"max-days" json:"max-days"`
	// Maximum number of old log files to retain.
	FileMaxBackups int `toml:"max-backups" json:"max-backups"`
	// ZapInternalErrOutput specifies where Zap internal errors are written to.
	// Only accepts "stdout", "stderr" or a file path.
	ZapInternalErrOutput string `toml:"error-output" json:"error-output"`

	// SamplingInitial and SamplingThereafter enable zap sampling when both
	// are positive: per second, the first SamplingInitial entries with the
	// same level and message are logged, then every SamplingThereafter-th.
	SamplingInitial    int `toml:"-" json:"-"`
	SamplingThereafter int `toml:"-" json:"-"`
}

// DefaultConfig returns the default log config.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Adjust()
	return cfg
}

// Adjust adjusts config
func (cfg *Config) Adjust() {
	if len(cfg.Level) == 0 {
		cfg.Level = defaultLogLevel
	}
	if cfg.Level == "warning" {
		cfg.Level = "warn"
	}
	if cfg.FileMaxSize == 0 {
		cfg.FileMaxSize = defaultLogMaxSize
	}
	if cfg.FileMaxDays == 0 {
		cfg.FileMaxDays = defaultLogMaxDays
	}
	if cfg.FileMaxBackups == 0 {
		cfg.FileMaxBackups = defaultLogMaxBackups
	}
}

// InitLogger initializes logger
func InitLogger(cfg *Config, opts ...zap.Option) error {
	pclogConfig := &log.Config{
		Level: cfg.Level,
		File: log.FileLogConfig{
			Filename:   cfg.File,
			MaxSize:    cfg.FileMaxSize,
			MaxDays:    cfg.FileMaxDays,
			MaxBackups: cfg.FileMaxBackups,
		},
		ErrorOutputPath: cfg.ZapInternalErrOutput,
	}
	if cfg.SamplingInitial > 0 && cfg.SamplingThereafter > 0 {
		pclogConfig.Sampling = &zap.SamplingConfig{
			Initial:    cfg.SamplingInitial,
			Thereafter: cfg.SamplingThereafter,
		}
	}

	lg, props, err := log.InitLogger(pclogConfig, opts...)
	if err != nil {
		return errors.Trace(err)
	}
	log.ReplaceGlobals(lg, props)
	return nil
}

// ZapErrorFilter wraps zap.Error, if err is in given filters, it returns
// zap.Error(nil).
func ZapErrorFilter(err error, filters ...error) zap.Field {
	cause := errors.Cause(err)
	for _, ferr := range filters {
		if cause == ferr {
			return zap.Error(nil)
		}
	}
	return zap.Error(err)
}

// SetLogLevel changes the log level of the global logger.
func SetLogLevel(level string) error {
	var lv zapcore.Level
	err := lv.UnmarshalText([]byte(level))
	if err != nil {
		return errors.Trace(err)
	}
	if lv != log.GetLevel() {
		log.SetLevel(lv)
	}
	return nil
}
