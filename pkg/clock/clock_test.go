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

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeadline(t *testing.T) {
	t.Parallel()

	clk := NewMock()
	d := DeadlineAfter(clk, 10*time.Millisecond)
	require.True(t, d.IsSet())
	require.False(t, d.Expired(clk))
	require.Equal(t, 10*time.Millisecond, d.Remaining(clk))

	clk.Add(4 * time.Millisecond)
	require.Equal(t, 6*time.Millisecond, d.Remaining(clk))

	clk.Add(6 * time.Millisecond)
	require.True(t, d.Expired(clk))
	require.Equal(t, time.Duration(0), d.Remaining(clk))

	clk.Add(time.Second)
	require.Equal(t, time.Duration(0), d.Remaining(clk))
}

func TestDeadlineNeverExpires(t *testing.T) {
	t.Parallel()

	clk := NewMock()
	d := DeadlineAfter(clk, -1)
	require.False(t, d.IsSet())
	clk.Add(time.Hour)
	require.False(t, d.Expired(clk))
	require.Less(t, d.Remaining(clk), time.Duration(0))
}

func TestMono(t *testing.T) {
	t.Parallel()

	clk := NewMock()
	m1 := clk.Mono()
	clk.Add(time.Second)
	require.Equal(t, time.Second, clk.Mono().Sub(m1))

	rc := New()
	r1 := rc.Mono()
	require.GreaterOrEqual(t, MonoNow().Sub(r1), time.Duration(0))
}
