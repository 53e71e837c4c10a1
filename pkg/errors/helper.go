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
	"context"

	"github.com/pingcap/errors"
)

// IsContextCanceledError checks if an error is caused by context.Canceled
// or context.DeadlineExceeded.
func IsContextCanceledError(err error) bool {
	cause := errors.Cause(err)
	return cause == context.Canceled || cause == context.DeadlineExceeded
}

// IsDeferError reports whether err is the defer control signal.
func IsDeferError(err error) bool {
	return err != nil && ErrDefer.Equal(err)
}

// IsAbnormalExit reports whether an actor or fiber exit reason should be
// treated as a failure. A nil reason or a cancellation is a normal exit.
func IsAbnormalExit(err error) bool {
	return err != nil && !IsContextCanceledError(err)
}
