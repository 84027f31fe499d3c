// Copyright 2024 The Tektite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"testing"

	"github.com/spirit-labs/streamflow/testutils"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/stretchr/testify/require"
)

func TestMeterSamplesEveryTickMaskInvocations(t *testing.T) {
	id := NewPipelineReplicaID(1, 2, 3)
	require.Equal(t, "P[1][2][3]", id.String())
	m := NewMeter(id, "op0", 1, 1)
	op := "op0"

	m.TryTick()
	require.False(t, m.IsTicked())
	m.OnInvocationStart(&op)
	require.Equal(t, "", m.CurrentlyInvoked())

	m.TryTick()
	require.True(t, m.IsTicked())
	require.Equal(t, id.String(), m.CurrentlyInvoked())
	m.OnInvocationStart(&op)
	require.Equal(t, "op0", m.CurrentlyInvoked())
	m.OnInvocationComplete()
	require.Equal(t, id.String(), m.CurrentlyInvoked())

	m.TryTick()
	require.False(t, m.IsTicked())
	require.Equal(t, "", m.CurrentlyInvoked())
}

func TestMeterCountsHeadOperatorInput(t *testing.T) {
	m := NewMeter(NewPipelineReplicaID(1, 0, 0), "head", 2, 127)
	input := tuple.NewTuples(2)
	input.AddAll(0, testutils.CreateTuples(0, 3))
	input.AddAll(1, testutils.CreateTuples(0, 1))
	m.Count("head", input)
	m.Count("other", input)
	m.Count("head", input)
	require.Equal(t, []int64{6, 2}, m.InboundThroughput())
}

func TestUpstreamContext(t *testing.T) {
	u := NewUpstreamContext(2)
	require.False(t, u.AllClosed())
	require.Equal(t, []bool{true, true}, u.Statuses())

	u.Close(0)
	u.Close(0)
	require.Equal(t, int64(1), u.Version())
	require.False(t, u.IsOpen(0))
	require.Equal(t, []bool{false, true}, u.Statuses())

	c := u.Copy()
	u.Close(1)
	require.True(t, u.AllClosed())
	require.False(t, c.AllClosed())
	require.Equal(t, []bool{false, true}, c.Statuses())

	require.False(t, NewUpstreamContext(0).AllClosed())
}
