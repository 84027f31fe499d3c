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

package command

import (
	"testing"

	"github.com/spirit-labs/streamflow/conf"
	"github.com/spirit-labs/streamflow/engine"
	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/flow"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/operators"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/stretchr/testify/require"
)

func buildDef(t *testing.T, b *flow.OperatorDefBuilder) *flow.OperatorDef {
	t.Helper()
	def, err := b.Build()
	require.NoError(t, err)
	return def
}

func runningEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := conf.NewTestConfig()
	cfg.PartitionCount = 8
	cfg.DefaultReplicaCount = 2
	e, err := engine.NewEngine(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, e.Shutdown())
	})
	identity := func(t *tuple.Tuple) *tuple.Tuple { return t }
	b := flow.NewFlowDefBuilder().
		Add(buildDef(t, flow.NewOperatorDefBuilder("beacon", operator.Stateful, operators.NewBeacon).
			SetInputPortCount(0))).
		Add(buildDef(t, flow.NewOperatorDefBuilder("first", operator.Stateless, operators.MapperFactory(identity)))).
		Add(buildDef(t, flow.NewOperatorDefBuilder("second", operator.Stateless, operators.MapperFactory(identity)))).
		Add(buildDef(t, flow.NewOperatorDefBuilder("window", operator.PartitionedStateful, operators.NewWindowReducer).
			SetPartitionFieldNames("key").SetConfig(operator.Config{operators.WindowSizeKey: 10}))).
		Add(buildDef(t, flow.NewOperatorDefBuilder("sink", operator.Stateful,
			operators.CollectorFactory(operators.NewCollection())).SetOutputPortCount(0))).
		ConnectDefault("beacon", "first").
		ConnectDefault("first", "second").
		ConnectDefault("second", "window").
		ConnectDefault("window", "sink")
	f, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, e.Run(f))
	return e
}

type noFlow struct{}

func (noFlow) Snapshot() *engine.Snapshot                { return nil }
func (noFlow) MergePipelines(int, []int) error           { return nil }
func (noFlow) SplitPipeline(int, []int) error            { return nil }
func (noFlow) RebalanceRegion(regionID int, n int) error { return nil }

func TestShowRegions(t *testing.T) {
	x := NewExecutor(runningEngine(t))
	out, err := x.Execute("show regions;")
	require.NoError(t, err)
	require.Contains(t, out, "flow version 0")
	require.Contains(t, out, "PARTITIONED_STATEFUL")
	require.Contains(t, out, "first,second")
	require.Contains(t, out, "operators")
}

func TestShowRegion(t *testing.T) {
	x := NewExecutor(runningEngine(t))
	out, err := x.Execute("show region 1;")
	require.NoError(t, err)
	require.Contains(t, out, "first,second")
	require.Contains(t, out, "overloaded")

	_, err = x.Execute("show region 9;")
	require.True(t, errors.HasCode(err, errors.InvalidStatement))
}

func TestExecuteTransformations(t *testing.T) {
	e := runningEngine(t)
	x := NewExecutor(e)

	out, err := x.Execute("split 1 0,1;")
	require.NoError(t, err)
	require.Contains(t, out, "flow version 1")
	r, _ := e.Snapshot().Region(1)
	require.Equal(t, 2, r.PipelineCount())

	out, err = x.Execute("merge 1 0,1;")
	require.NoError(t, err)
	require.Contains(t, out, "flow version 2")

	out, err = x.Execute("rebalance 2 4;")
	require.NoError(t, err)
	require.Contains(t, out, "flow version 3")
	r, _ = e.Snapshot().Region(2)
	require.Equal(t, 4, r.ReplicaCount())

	_, err = x.Execute("merge 1 0,1;")
	require.True(t, errors.HasCode(err, errors.InvalidTransformation))
	_, err = x.Execute("rebalance 1 2;")
	require.True(t, errors.HasCode(err, errors.InvalidTransformation))
	_, err = x.Execute("drop 1;")
	require.True(t, errors.HasCode(err, errors.InvalidStatement))
}

func TestExecuteWithoutFlow(t *testing.T) {
	x := NewExecutor(noFlow{})
	_, err := x.Execute("show regions;")
	require.True(t, errors.HasCode(err, errors.Unavailable))
	_, err = x.Execute("split 1 0,1;")
	require.True(t, errors.HasCode(err, errors.Unavailable))
}
