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

package drainer

import (
	"testing"

	"github.com/spirit-labs/streamflow/conf"
	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/stretchr/testify/require"
)

func TestPoolSelectsDrainerByStrategy(t *testing.T) {
	cfg := conf.NewTestConfig()
	single := NewNonBlockingPool("op1", 1, cfg, nil)
	require.False(t, single.IsBlocking())

	d := single.Acquire(operator.ScheduleWhenAvailable{})
	require.IsType(t, &GreedyDrainer{}, d)
	single.Release(d)

	d = single.Acquire(operator.ScheduleWhenTuplesAvailableOnDefaultPort(2))
	require.IsType(t, &SinglePortDrainer{}, d)
	single.Release(d)

	multi := NewBlockingPool("op2", 2, cfg, nil)
	require.True(t, multi.IsBlocking())
	d = multi.Acquire(operator.ScheduleWhenTuplesAvailableOnAll(operator.AtLeast, 2, 1))
	require.True(t, d.(*MultiPortDrainer).conjunctive)
	multi.Release(d)

	d = multi.Acquire(operator.ScheduleWhenTuplesAvailableOnAny(operator.AtLeast, 2, 1))
	require.False(t, d.(*MultiPortDrainer).conjunctive)
	multi.Release(d)
}

func TestPoolPanicsOnDoubleAcquire(t *testing.T) {
	p := NewNonBlockingPool("op1", 1, conf.NewTestConfig(), nil)
	p.Acquire(operator.ScheduleWhenAvailable{})
	require.Panics(t, func() {
		p.Acquire(operator.ScheduleWhenAvailable{})
	})
}

func TestPoolPanicsOnReleaseOfInactiveDrainer(t *testing.T) {
	p := NewNonBlockingPool("op1", 1, conf.NewTestConfig(), nil)
	require.Panics(t, func() {
		p.Release(NewGreedyDrainer(1, 10))
	})
	p.Acquire(operator.ScheduleWhenTuplesAvailableOnDefaultPort(1))
	require.Panics(t, func() {
		p.Release(NewGreedyDrainer(1, 10))
	})
}

func TestPoolReleaseResetsDrainer(t *testing.T) {
	p := NewNonBlockingPool("op1", 2, conf.NewTestConfig(), nil)
	d := p.Acquire(operator.ScheduleWhenTuplesAvailableOnAll(operator.Exact, 2, 3))
	md := d.(*MultiPortDrainer)
	require.Equal(t, []int{3, 3}, md.counts)
	p.Release(d)
	require.Equal(t, []int{0, 0}, md.counts)
	require.False(t, md.configured)
}

func TestPoolPanicsOnAcquireForNeverScheduledOperator(t *testing.T) {
	p := NewBlockingPool("op1", 1, conf.NewTestConfig(), nil)
	require.Panics(t, func() {
		p.Acquire(operator.ScheduleNever{})
	})
}

func TestPoolInitValidatesStrategy(t *testing.T) {
	cfg := conf.NewTestConfig()
	p := NewBlockingPool("op1", 2, cfg, nil)
	require.NoError(t, p.Init(operator.ScheduleWhenAvailable{}))
	require.NoError(t, p.Init(operator.ScheduleWhenTuplesAvailableOnAll(operator.AtLeastButSameOnAllPorts, 2, 1)))

	err := p.Init(operator.ScheduleWhenTuplesAvailableOnAny(operator.AtLeastButSameOnAllPorts, 2, 1))
	require.Error(t, err)
	require.True(t, errors.HasCode(err, errors.InvalidSchedulingStrategy))

	require.Error(t, p.Init(operator.ScheduleWhenTuplesAvailableOnDefaultPort(1)))
}

func TestPoolWrapsDrainersWhenLatencyTrackingEnabled(t *testing.T) {
	cfg := conf.NewTestConfig()
	cfg.LatencyTrackingEnabled = true
	recorder := &testLatencyRecorder{}
	p := NewNonBlockingPool("op1", 1, cfg, recorder)
	d := p.Acquire(operator.ScheduleWhenAvailable{})
	require.IsType(t, &LatencyRecordingDrainer{}, d)
	supplier := &testSupplier{portCount: 1}
	require.False(t, d.Drain(tuple.NoKey, createQueues(1, 2), supplier))
	p.Release(d)
	require.Equal(t, []int{2}, recorder.counts)
}
