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
	"time"

	"github.com/spirit-labs/streamflow/errors"
)

const (
	DefaultTupleQueueInitialCapacity    = 16
	DefaultTupleQueueCapacity           = 8192
	DefaultMaxDrainBatchSize            = 1024
	DefaultDrainTimeout                 = 1 * time.Millisecond
	DefaultPartitionedQueueMaxDrainKeys = 64
	DefaultRunnerWaitTimeout            = 5 * time.Millisecond
	DefaultSenderOfferTimeout           = 10 * time.Millisecond
	DefaultPartitionCount               = 271
	DefaultPartitionKeyCacheSize        = 10000
	DefaultMeterTickMask                = 127
	DefaultReplicaCount                 = 1
	DefaultMetricsBind                  = "localhost:9102"
)

type Config struct {
	// Tuple queue config
	TupleQueueInitialCapacity int   `help:"Initial capacity of a tuple queue"`
	TupleQueueCapacity        int   `help:"Number of buffered tuples above which a capacity checked queue reports overload"`
	CapacityCheckEnabled      *bool `help:"Whether queues crossing a pipeline boundary apply back-pressure"`

	// Drainer config
	MaxDrainBatchSize            int           `help:"Maximum number of tuples drained from a port in one invocation"`
	DrainTimeout                 time.Duration `help:"Maximum time a blocking drainer waits for tuples"`
	PartitionedQueueMaxDrainKeys int           `help:"Maximum number of partition keys drained from a partitioned queue in one invocation"`
	LatencyTrackingEnabled       bool          `help:"Record drain latencies of pipeline head operators"`

	// Pipeline replica runner config
	RunnerWaitTimeout  time.Duration `help:"Time a pipeline replica runner waits for input when nothing was drained"`
	SenderOfferTimeout time.Duration `help:"Timeout of a single offer attempt to a queue on another pipeline"`

	// Partition service config
	PartitionCount        int `help:"Number of partitions of partitioned stateful regions"`
	PartitionKeyCacheSize int `help:"Size of the partition key hash cache"`

	// Metering config
	MeterTickMask int64 `help:"Pipeline replica meters sample the invoked operator every tick-mask + 1 invocations, must be 2^n - 1"`

	// Flow deployment config
	DefaultReplicaCount    int   `help:"Replica count of partitioned stateful regions"`
	TransformationsEnabled *bool `help:"Whether pipelines of a running flow can be merged, split and rebalanced"`

	// Metrics config
	MetricsEnabled bool   `help:"Expose metrics over HTTP"`
	MetricsBind    string `help:"Address of the metrics HTTP server"`
}

func (c *Config) ApplyDefaults() {
	if c.TupleQueueInitialCapacity == 0 {
		c.TupleQueueInitialCapacity = DefaultTupleQueueInitialCapacity
	}
	if c.TupleQueueCapacity == 0 {
		c.TupleQueueCapacity = DefaultTupleQueueCapacity
	}
	if c.CapacityCheckEnabled == nil {
		enabled := true
		c.CapacityCheckEnabled = &enabled
	}
	if c.MaxDrainBatchSize == 0 {
		c.MaxDrainBatchSize = DefaultMaxDrainBatchSize
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.PartitionedQueueMaxDrainKeys == 0 {
		c.PartitionedQueueMaxDrainKeys = DefaultPartitionedQueueMaxDrainKeys
	}
	if c.RunnerWaitTimeout == 0 {
		c.RunnerWaitTimeout = DefaultRunnerWaitTimeout
	}
	if c.SenderOfferTimeout == 0 {
		c.SenderOfferTimeout = DefaultSenderOfferTimeout
	}
	if c.PartitionCount == 0 {
		c.PartitionCount = DefaultPartitionCount
	}
	if c.PartitionKeyCacheSize == 0 {
		c.PartitionKeyCacheSize = DefaultPartitionKeyCacheSize
	}
	if c.MeterTickMask == 0 {
		c.MeterTickMask = DefaultMeterTickMask
	}
	if c.DefaultReplicaCount == 0 {
		c.DefaultReplicaCount = DefaultReplicaCount
	}
	if c.TransformationsEnabled == nil {
		enabled := true
		c.TransformationsEnabled = &enabled
	}
	if c.MetricsBind == "" {
		c.MetricsBind = DefaultMetricsBind
	}
}

func (c *Config) Validate() error { //nolint:gocyclo
	if c.TupleQueueInitialCapacity < 1 {
		return errors.NewInvalidConfigurationError("tuple-queue-initial-capacity must be > 0")
	}
	if c.TupleQueueCapacity < 1 {
		return errors.NewInvalidConfigurationError("tuple-queue-capacity must be > 0")
	}
	if c.TupleQueueCapacity < c.TupleQueueInitialCapacity {
		return errors.NewInvalidConfigurationError("tuple-queue-capacity must be >= tuple-queue-initial-capacity")
	}
	if c.MaxDrainBatchSize < 1 {
		return errors.NewInvalidConfigurationError("max-drain-batch-size must be > 0")
	}
	if c.MaxDrainBatchSize > c.TupleQueueCapacity {
		return errors.NewInvalidConfigurationError("max-drain-batch-size must be <= tuple-queue-capacity")
	}
	if c.DrainTimeout < 0 {
		return errors.NewInvalidConfigurationError("drain-timeout must be >= 0")
	}
	if c.PartitionedQueueMaxDrainKeys < 1 {
		return errors.NewInvalidConfigurationError("partitioned-queue-max-drain-keys must be > 0")
	}
	if c.RunnerWaitTimeout < 1 {
		return errors.NewInvalidConfigurationError("runner-wait-timeout must be > 0")
	}
	if c.SenderOfferTimeout < 1 {
		return errors.NewInvalidConfigurationError("sender-offer-timeout must be > 0")
	}
	if c.PartitionCount < 1 {
		return errors.NewInvalidConfigurationError("partition-count must be > 0")
	}
	if c.PartitionKeyCacheSize < 1 {
		return errors.NewInvalidConfigurationError("partition-key-cache-size must be > 0")
	}
	if c.MeterTickMask < 1 || c.MeterTickMask&(c.MeterTickMask+1) != 0 {
		return errors.NewInvalidConfigurationError("meter-tick-mask must be a positive power of 2 minus 1")
	}
	if c.DefaultReplicaCount < 1 {
		return errors.NewInvalidConfigurationError("default-replica-count must be > 0")
	}
	if c.DefaultReplicaCount > c.PartitionCount {
		return errors.NewInvalidConfigurationError("default-replica-count must be <= partition-count")
	}
	if c.MetricsEnabled && c.MetricsBind == "" {
		return errors.NewInvalidConfigurationError("metrics-bind must be specified if metrics-enabled is true")
	}
	return nil
}

// NewTestConfig returns a config with defaults applied, suitable for tests.
func NewTestConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}
