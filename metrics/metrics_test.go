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

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spirit-labs/streamflow/region"
	"github.com/stretchr/testify/require"
)

type emptyView struct {
	version int
}

func (e emptyView) Version() int {
	return e.version
}

func (e emptyView) Regions() []*region.Region {
	return nil
}

func TestRecordTransformation(t *testing.T) {
	m := NewMetrics()
	m.RecordTransformation("merge")
	m.RecordTransformation("merge")
	m.RecordTransformation("rebalance")
	require.Equal(t, 2.0, testutil.ToFloat64(m.transformations.WithLabelValues("merge")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transformations.WithLabelValues("rebalance")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.transformations.WithLabelValues("split")))
}

func TestRecordDrainLatency(t *testing.T) {
	m := NewMetrics()
	m.RecordDrainLatency("op1", 10, time.Millisecond)
	m.RecordDrainLatency("op1", 5, 2*time.Millisecond)
	require.Equal(t, 15.0, testutil.ToFloat64(m.drainedTuples.WithLabelValues("op1")))
	count, err := testutil.GatherAndCount(m.Registry(), "streamflow_drainer_latency_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestFlowCollectorWithoutFlow(t *testing.T) {
	m := NewMetrics()
	require.NoError(t, m.RegisterFlow(func() FlowView { return nil }))
	count, err := testutil.GatherAndCount(m.Registry(), "streamflow_flow_version")
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestFlowCollectorVersion(t *testing.T) {
	m := NewMetrics()
	require.NoError(t, m.RegisterFlow(func() FlowView { return emptyView{version: 3} }))
	count, err := testutil.GatherAndCount(m.Registry(), "streamflow_flow_version")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "streamflow_flow_version" {
			require.Equal(t, 3.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
}
