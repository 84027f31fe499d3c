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

package tuplequeue

import (
	"github.com/spirit-labs/streamflow/conf"
	"github.com/spirit-labs/streamflow/partition"
)

// Manager creates operator tuple queues sized by the engine config.
type Manager struct {
	cfg *conf.Config
}

func NewManager(cfg *conf.Config) *Manager {
	return &Manager{cfg: cfg}
}

// CreateDefaultQueue creates a default queue. Multi threaded queues sit on a pipeline boundary and get
// their capacity check enabled if configured.
func (m *Manager) CreateDefaultQueue(operatorID string, portCount int, threading ThreadingPreference) *DefaultOperatorTupleQueue {
	q := NewDefaultOperatorTupleQueue(operatorID, portCount, threading, m.cfg.TupleQueueInitialCapacity,
		m.cfg.TupleQueueCapacity)
	if threading == MultiThreaded && m.capacityCheckEnabled() {
		for i := 0; i < portCount; i++ {
			q.EnableCapacityCheck(i)
		}
	}
	return q
}

func (m *Manager) CreatePartitionedQueue(operatorID string, portCount int, replicaIndex int,
	distribution *partition.Distribution, extractor partition.KeyExtractor) *PartitionedOperatorTupleQueue {
	return NewPartitionedOperatorTupleQueue(operatorID, portCount, replicaIndex, distribution, extractor,
		m.cfg.TupleQueueInitialCapacity, m.cfg.TupleQueueCapacity, m.cfg.PartitionedQueueMaxDrainKeys)
}

func (m *Manager) CreateEmptyQueue(operatorID string, portCount int) *EmptyOperatorTupleQueue {
	return NewEmptyOperatorTupleQueue(operatorID, portCount)
}

func (m *Manager) capacityCheckEnabled() bool {
	return m.cfg.CapacityCheckEnabled == nil || *m.cfg.CapacityCheckEnabled
}

// MoveTuples force offers every tuple buffered in from to the same ports of to, leaving from empty.
func MoveTuples(from OperatorTupleQueue, to OperatorTupleQueue) {
	for portIndex, tuples := range from.RemoveAll() {
		if len(tuples) > 0 {
			to.ForceOffer(portIndex, tuples)
		}
	}
}
