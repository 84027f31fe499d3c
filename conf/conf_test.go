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

package conf

import (
	"testing"

	"github.com/spirit-labs/streamflow/errors"
	"github.com/stretchr/testify/require"
)

type configPair struct {
	errMsg string
	conf   Config
}

func validConf() Config {
	cnf := Config{}
	cnf.ApplyDefaults()
	return cnf
}

func invalidTupleQueueInitialCapacityConf() Config {
	cnf := validConf()
	cnf.TupleQueueInitialCapacity = -1
	return cnf
}

func invalidTupleQueueCapacityConf() Config {
	cnf := validConf()
	cnf.TupleQueueCapacity = 0
	return cnf
}

func tupleQueueCapacityLessThanInitialConf() Config {
	cnf := validConf()
	cnf.TupleQueueInitialCapacity = 100
	cnf.TupleQueueCapacity = 10
	cnf.MaxDrainBatchSize = 10
	return cnf
}

func invalidMaxDrainBatchSizeConf() Config {
	cnf := validConf()
	cnf.MaxDrainBatchSize = 0
	return cnf
}

func maxDrainBatchSizeTooLargeConf() Config {
	cnf := validConf()
	cnf.MaxDrainBatchSize = cnf.TupleQueueCapacity + 1
	return cnf
}

func invalidDrainTimeoutConf() Config {
	cnf := validConf()
	cnf.DrainTimeout = -1
	return cnf
}

func invalidPartitionCountConf() Config {
	cnf := validConf()
	cnf.PartitionCount = 0
	cnf.DefaultReplicaCount = 0
	return cnf
}

func invalidMeterTickMaskConf() Config {
	cnf := validConf()
	cnf.MeterTickMask = 100
	return cnf
}

func invalidDefaultReplicaCountConf() Config {
	cnf := validConf()
	cnf.DefaultReplicaCount = cnf.PartitionCount + 1
	return cnf
}

func invalidMetricsBindConf() Config {
	cnf := validConf()
	cnf.MetricsEnabled = true
	cnf.MetricsBind = ""
	return cnf
}

var invalidConfigs = []configPair{
	{"invalid configuration: tuple-queue-initial-capacity must be > 0", invalidTupleQueueInitialCapacityConf()},
	{"invalid configuration: tuple-queue-capacity must be > 0", invalidTupleQueueCapacityConf()},
	{"invalid configuration: tuple-queue-capacity must be >= tuple-queue-initial-capacity", tupleQueueCapacityLessThanInitialConf()},
	{"invalid configuration: max-drain-batch-size must be > 0", invalidMaxDrainBatchSizeConf()},
	{"invalid configuration: max-drain-batch-size must be <= tuple-queue-capacity", maxDrainBatchSizeTooLargeConf()},
	{"invalid configuration: drain-timeout must be >= 0", invalidDrainTimeoutConf()},
	{"invalid configuration: partition-count must be > 0", invalidPartitionCountConf()},
	{"invalid configuration: meter-tick-mask must be a positive power of 2 minus 1", invalidMeterTickMaskConf()},
	{"invalid configuration: default-replica-count must be <= partition-count", invalidDefaultReplicaCountConf()},
	{"invalid configuration: metrics-bind must be specified if metrics-enabled is true", invalidMetricsBindConf()},
}

func TestValidate(t *testing.T) {
	for _, cp := range invalidConfigs {
		err := cp.conf.Validate()
		require.Error(t, err)
		var serr errors.StreamflowError
		require.True(t, errors.As(err, &serr))
		require.Equal(t, errors.ErrorCode(errors.InvalidConfiguration), serr.Code)
		require.Equal(t, cp.errMsg, err.Error())
	}
}

func TestValidConf(t *testing.T) {
	cnf := validConf()
	require.NoError(t, cnf.Validate())
	require.True(t, *cnf.CapacityCheckEnabled)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	disabled := false
	cnf := Config{
		MaxDrainBatchSize:    7,
		PartitionCount:       16,
		CapacityCheckEnabled: &disabled,
	}
	cnf.ApplyDefaults()
	require.Equal(t, 7, cnf.MaxDrainBatchSize)
	require.Equal(t, 16, cnf.PartitionCount)
	require.False(t, *cnf.CapacityCheckEnabled)
	require.Equal(t, DefaultDrainTimeout, cnf.DrainTimeout)
	require.NoError(t, cnf.Validate())
}
