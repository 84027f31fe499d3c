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

package region

import (
	"testing"

	"github.com/spirit-labs/streamflow/flow"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/testutils"
	"github.com/stretchr/testify/require"
)

func regionSummary(defs []*RegionDef) [][]string {
	summary := make([][]string, len(defs))
	for i, def := range defs {
		summary[i] = def.OperatorIDs()
	}
	return summary
}

func TestFormRegionsByOperatorType(t *testing.T) {
	f := chain(t, sourceDef(t, "src"), statelessDef(t, "a"), statefulDef(t, "agg"), statelessDef(t, "b"),
		statelessDef(t, "c"))
	defs := FormRegions(f)
	require.Equal(t, [][]string{{"src"}, {"a"}, {"agg"}, {"b", "c"}}, regionSummary(defs))
	for i, def := range defs {
		require.Equal(t, i, def.ID())
	}
	require.Equal(t, operator.Stateful, defs[0].Type())
	require.Equal(t, operator.Stateless, defs[1].Type())
	require.Equal(t, operator.Stateful, defs[2].Type())
	require.Equal(t, operator.Stateless, defs[3].Type())
}

func TestFormRegionsSamePartitionFields(t *testing.T) {
	f := chain(t, sourceDef(t, "src"), partitionedDef(t, "p0", "key"), partitionedDef(t, "p1", "key"),
		statelessDef(t, "a"))
	defs := FormRegions(f)
	require.Equal(t, [][]string{{"src"}, {"p0", "p1", "a"}}, regionSummary(defs))
	require.True(t, defs[1].IsPartitioned())
	require.Equal(t, []string{"key"}, defs[1].PartitionFieldNames())
}

func TestFormRegionsDifferentPartitionFields(t *testing.T) {
	f := chain(t, sourceDef(t, "src"), partitionedDef(t, "p0", "key"), partitionedDef(t, "p1", "other"))
	defs := FormRegions(f)
	require.Equal(t, [][]string{{"src"}, {"p0"}, {"p1"}}, regionSummary(defs))
	require.Equal(t, []string{"other"}, defs[2].PartitionFieldNames())
}

func TestFormRegionsPullsPartitionableOperators(t *testing.T) {
	f := chain(t, sourceDef(t, "src"), statelessDef(t, "a"), statelessDef(t, "b", "key"),
		statelessDef(t, "c", "key", "other"), partitionedDef(t, "p0", "key"))
	defs := FormRegions(f)
	require.Equal(t, [][]string{{"src"}, {"a"}, {"b", "c", "p0"}}, regionSummary(defs))
	require.True(t, defs[2].IsPartitioned())
}

func TestFormRegionsPullsWholeStatelessRegion(t *testing.T) {
	f := chain(t, sourceDef(t, "src"), statelessDef(t, "a", "key"), partitionedDef(t, "p0", "key"))
	defs := FormRegions(f)
	require.Equal(t, [][]string{{"src"}, {"a", "p0"}}, regionSummary(defs))
}

func TestFormRegionsBranchAndJoin(t *testing.T) {
	src := sourceDef(t, "src")
	a := statelessDef(t, "a")
	b := statelessDef(t, "b")
	j := buildDef(t, flow.NewOperatorDefBuilder("j", operator.Stateless, testutils.RecordingFactory(nil, nil)).
		SetInputPortCount(2))
	out := statelessDef(t, "out")
	f, err := flow.NewFlowDefBuilder().Add(src).Add(a).Add(b).Add(j).Add(out).
		ConnectDefault("src", "a").
		ConnectDefault("src", "b").
		Connect("a", 0, "j", 0).
		Connect("b", 0, "j", 1).
		ConnectDefault("j", "out").
		Build()
	require.NoError(t, err)
	defs := FormRegions(f)
	require.Equal(t, [][]string{{"src"}, {"a"}, {"b"}, {"j", "out"}}, regionSummary(defs))
}

func TestNewRegionDefPanics(t *testing.T) {
	a := statelessDef(t, "a")
	b := statelessDef(t, "b")
	require.Panics(t, func() { NewRegionDef(0, operator.Stateless, nil, nil) })
	require.Panics(t, func() { NewRegionDef(0, operator.Stateful, nil, []*flow.OperatorDef{a, b}) })
	require.Panics(t, func() { NewRegionDef(0, operator.Stateless, []string{"key"}, []*flow.OperatorDef{a}) })
	require.Panics(t, func() { NewRegionDef(0, operator.PartitionedStateful, nil, []*flow.OperatorDef{a}) })
}
