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

// Package actor provides actors with selective receive. Every actor is a
// fiber owning one mailbox, and consumes messages by scanning the mailbox
// with a handler that matches, discards or defers each message.
// The following diagram shows how a receive consumes a message.
//
//	,------.          ,-------.          ,-------.          ,-------.
//	|Sender|          |Mailbox|          |Receive|          |Handler|
//	`--+---'          `---+---'          `---+---'          `---+---'
//	   |  Enqueue(msg)    |                  |                  |
//	   |----------------->|                  |                  |
//	   |                  |   Unpark owner   |                  |
//	   |                  |----------------->|                  |
//	   |                  |                  |                  |
//	   |                  |  LockForScan     |                  |
//	   |                  |  Iterator.Next   |                  |
//	   |                  |<-----------------|                  |
//	   |                  |  Unlock          |                  |
//	   |                  |                  |                  |
//	   |                  |                  |   h(msg)         |
//	   |                  |                  |----------------->|
//	   |                  |                  |                  |
//	   |                  |                  | v / nil / Defer  |
//	   |                  |                  |<-----------------|
//	   |                  |                  |                  |
//	   |                  | remove unless    |                  |
//	   |                  |   deferred       |                  |
//	   |                  |<-----------------|                  |
//	   |                  |                  |                  |
//	   |                  | Await when the   |                  |
//	   |                  |   scan is done   |                  |
//	   |                  |<-----------------|                  |
//	,--+---.          ,---+---.          ,---+---.          ,---+---.
//	|Sender|          |Mailbox|          |Receive|          |Handler|
//	`------'          `-------'          `-------'          `-------'
//
// Termination of an actor closes its mailbox and sends an ExitMessage to
// its watchers and linked actors.
package actor
