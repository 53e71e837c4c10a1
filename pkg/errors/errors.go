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

package errors

import (
	"github.com/pingcap/errors"
)

// errors
var (
	// fiber and scheduler errors
	ErrSchedulerClosed = errors.Normalize(
		"scheduler %s is closed",
		errors.RFCCodeText("ACTOR:ErrSchedulerClosed"),
	)
	ErrSchedulerAlreadyStarted = errors.Normalize(
		"scheduler %s is already started",
		errors.RFCCodeText("ACTOR:ErrSchedulerAlreadyStarted"),
	)
	ErrFiberPanic = errors.Normalize(
		"fiber %d panicked: %v",
		errors.RFCCodeText("ACTOR:ErrFiberPanic"),
	)

	// actor errors
	ErrActorNameTaken = errors.Normalize(
		"actor name %s is already registered",
		errors.RFCCodeText("ACTOR:ErrActorNameTaken"),
	)
	ErrActorNotFound = errors.Normalize(
		"actor %s not found",
		errors.RFCCodeText("ACTOR:ErrActorNotFound"),
	)
	ErrActorPanic = errors.Normalize(
		"actor %s panicked: %v",
		errors.RFCCodeText("ACTOR:ErrActorPanic"),
	)
	ErrActorSystemStopped = errors.Normalize(
		"actor system %s is stopped",
		errors.RFCCodeText("ACTOR:ErrActorSystemStopped"),
	)
	ErrLinkedActorDied = errors.Normalize(
		"linked actor %s died: %v",
		errors.RFCCodeText("ACTOR:ErrLinkedActorDied"),
	)
	ErrMailboxFull = errors.Normalize(
		"mailbox of actor %d is full",
		errors.RFCCodeText("ACTOR:ErrMailboxFull"),
	)
	// ErrDefer is a control signal returned by receive handlers. It never
	// leaves the receive engine.
	ErrDefer = errors.Normalize(
		"message deferred",
		errors.RFCCodeText("ACTOR:ErrDefer"),
	)

	// channel errors
	ErrChannelClosed = errors.Normalize(
		"channel is closed",
		errors.RFCCodeText("ACTOR:ErrChannelClosed"),
	)
	ErrSelectNoOps = errors.Normalize(
		"select must be given at least one operation",
		errors.RFCCodeText("ACTOR:ErrSelectNoOps"),
	)

	// config errors
	ErrInvalidConfig = errors.Normalize(
		"invalid configuration: %s",
		errors.RFCCodeText("ACTOR:ErrInvalidConfig"),
	)
)
