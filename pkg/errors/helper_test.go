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
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func TestIsContextCanceledError(t *testing.T) {
	t.Parallel()

	require.True(t, IsContextCanceledError(context.Canceled))
	require.True(t, IsContextCanceledError(errors.Trace(context.DeadlineExceeded)))
	require.False(t, IsContextCanceledError(ErrChannelClosed.GenWithStackByArgs()))
	require.False(t, IsContextCanceledError(nil))
}

func TestIsDeferError(t *testing.T) {
	t.Parallel()

	require.True(t, IsDeferError(ErrDefer.FastGenByArgs()))
	require.True(t, IsDeferError(errors.Trace(ErrDefer.FastGenByArgs())))
	require.False(t, IsDeferError(errors.New("defer")))
	require.False(t, IsDeferError(nil))
}

func TestIsAbnormalExit(t *testing.T) {
	t.Parallel()

	require.False(t, IsAbnormalExit(nil))
	require.False(t, IsAbnormalExit(errors.Annotate(context.Canceled, "stop")))
	require.True(t, IsAbnormalExit(ErrActorPanic.GenWithStackByArgs("actor-1", "boom")))
}
