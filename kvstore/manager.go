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

package kvstore

import (
	"fmt"
	"sync"

	log "github.com/spirit-labs/streamflow/logger"
	"github.com/spirit-labs/streamflow/partition"
)

// Manager creates the KV store contexts of region operators and migrates partitions between replicas when a
// region is rebalanced.
type Manager struct {
	lock                sync.Mutex
	partitionCount      int
	defaultContexts     map[string]*DefaultContext
	partitionedContexts map[string][]*PartitionedContext
}

func NewManager(partitionCount int) *Manager {
	return &Manager{
		partitionCount:      partitionCount,
		defaultContexts:     map[string]*DefaultContext{},
		partitionedContexts: map[string][]*PartitionedContext{},
	}
}

func (m *Manager) CreateDefaultContext(operatorID string) *DefaultContext {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.defaultContexts[operatorID]; ok {
		panic(fmt.Sprintf("kv store context of operator %s already exists", operatorID))
	}
	ctx := NewDefaultContext(operatorID)
	m.defaultContexts[operatorID] = ctx
	return ctx
}

// CreatePartitionedContexts creates one context per replica, each owning the partitions assigned to its
// replica by the distribution.
func (m *Manager) CreatePartitionedContexts(operatorID string, distribution *partition.Distribution) []*PartitionedContext {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.partitionedContexts[operatorID]; ok {
		panic(fmt.Sprintf("partitioned kv store contexts of operator %s already exist", operatorID))
	}
	m.checkDistribution(distribution)
	contexts := make([]*PartitionedContext, distribution.ReplicaCount())
	for i := range contexts {
		contexts[i] = newPartitionedContext(operatorID, i, m.partitionCount)
	}
	for partitionID := 0; partitionID < m.partitionCount; partitionID++ {
		contexts[distribution.ReplicaIndex(partitionID)].adoptPartition(partitionID, NewInMemoryKVStore())
	}
	m.partitionedContexts[operatorID] = contexts
	return contexts
}

// RebalancePartitionedContexts replaces the contexts of an operator with contexts matching the new
// distribution. A partition whose owner changes is copied into a new store of its new owner. Partitions which
// keep their owner keep their store. The old contexts are left as they are, so the region they belong to can
// still be used if the rebalance is abandoned.
func (m *Manager) RebalancePartitionedContexts(operatorID string, current *partition.Distribution,
	next *partition.Distribution) []*PartitionedContext {
	m.lock.Lock()
	defer m.lock.Unlock()
	old, ok := m.partitionedContexts[operatorID]
	if !ok {
		panic(fmt.Sprintf("no partitioned kv store contexts for operator %s", operatorID))
	}
	m.checkDistribution(next)
	contexts := make([]*PartitionedContext, next.ReplicaCount())
	for i := range contexts {
		contexts[i] = newPartitionedContext(operatorID, i, m.partitionCount)
	}
	migrated := 0
	for partitionID := 0; partitionID < m.partitionCount; partitionID++ {
		oldOwner := current.ReplicaIndex(partitionID)
		newOwner := next.ReplicaIndex(partitionID)
		source := old[oldOwner]
		store, ok := source.PartitionStore(partitionID)
		if !ok {
			panic(fmt.Sprintf("replica %d of operator %s does not own partition %d", oldOwner, operatorID, partitionID))
		}
		if oldOwner == newOwner {
			contexts[newOwner].adoptPartition(partitionID, store)
			continue
		}
		target := NewInMemoryKVStore()
		store.CopyTo(target)
		contexts[newOwner].adoptPartition(partitionID, target)
		migrated++
	}
	m.partitionedContexts[operatorID] = contexts
	log.Debugf("migrated %d partitions of operator %s from %d to %d replicas", migrated, operatorID,
		current.ReplicaCount(), next.ReplicaCount())
	return contexts
}

func (m *Manager) DefaultContext(operatorID string) (*DefaultContext, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	ctx, ok := m.defaultContexts[operatorID]
	return ctx, ok
}

func (m *Manager) PartitionedContexts(operatorID string) ([]*PartitionedContext, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	contexts, ok := m.partitionedContexts[operatorID]
	return contexts, ok
}

// ReleaseContexts drops all contexts of an operator.
func (m *Manager) ReleaseContexts(operatorID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.defaultContexts, operatorID)
	delete(m.partitionedContexts, operatorID)
}

func (m *Manager) checkDistribution(distribution *partition.Distribution) {
	if distribution.PartitionCount() != m.partitionCount {
		panic(fmt.Sprintf("distribution has %d partitions but kv stores have %d", distribution.PartitionCount(),
			m.partitionCount))
	}
}
