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

package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spirit-labs/streamflow/conf"
	"github.com/spirit-labs/streamflow/engine"
	"github.com/spirit-labs/streamflow/flow"
	"github.com/spirit-labs/streamflow/metrics"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/operators"
	"github.com/spirit-labs/streamflow/testutils"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/stretchr/testify/require"
)

func TestFlowMetricsOfRunningEngine(t *testing.T) {
	cfg := conf.NewTestConfig()
	cfg.PartitionCount = 4
	cfg.DefaultReplicaCount = 2
	cfg.LatencyTrackingEnabled = true
	cfg.MeterTickMask = 1
	m := metrics.NewMetrics()
	e, err := engine.NewEngine(cfg, m)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, e.Shutdown())
	}()

	collection := operators.NewCollection()
	b := flow.NewFlowDefBuilder()
	for _, def := range []*flow.OperatorDef{
		mustBuild(t, flow.NewOperatorDefBuilder("beacon", operator.Stateful, operators.NewBeacon).SetInputPortCount(0)),
		mustBuild(t, flow.NewOperatorDefBuilder("upper", operator.Stateless,
			operators.MapperFactory(func(t *tuple.Tuple) *tuple.Tuple { return t }))),
		mustBuild(t, flow.NewOperatorDefBuilder("window", operator.PartitionedStateful, operators.NewWindowReducer).
			SetPartitionFieldNames("key").SetConfig(operator.Config{operators.WindowSizeKey: 5})),
		mustBuild(t, flow.NewOperatorDefBuilder("collector", operator.Stateful, operators.CollectorFactory(collection)).
			SetOutputPortCount(0)),
	} {
		b.Add(def)
	}
	b.ConnectDefault("beacon", "upper").ConnectDefault("upper", "window").ConnectDefault("window", "collector")
	f, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, e.Run(f))

	testutils.WaitUntil(t, func() (bool, error) {
		return collection.Len() > 0, nil
	})
	count, err := testutil.GatherAndCount(m.Registry(), "streamflow_region_replicas")
	require.NoError(t, err)
	require.Equal(t, 4, count)
	count, err = testutil.GatherAndCount(m.Registry(), "streamflow_pipeline_overloaded")
	require.NoError(t, err)
	require.Equal(t, 5, count)
	testutils.WaitUntil(t, func() (bool, error) {
		count, err := testutil.GatherAndCount(m.Registry(), "streamflow_drainer_drained_tuples_total")
		return count > 0, err
	})
}

func mustBuild(t *testing.T, b *flow.OperatorDefBuilder) *flow.OperatorDef {
	t.Helper()
	def, err := b.Build()
	require.NoError(t, err)
	return def
}
