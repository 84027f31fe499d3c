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
	"sort"

	"github.com/spirit-labs/streamflow/partition"
	"github.com/spirit-labs/streamflow/tuple"
)

// Context gives an operator replica access to its KV store.
type Context interface {
	OperatorID() string
	KVStore(key tuple.PartitionKey) KVStore
}

// DefaultContext holds the single store of a stateful operator.
type DefaultContext struct {
	operatorID string
	store      *InMemoryKVStore
}

func NewDefaultContext(operatorID string) *DefaultContext {
	return &DefaultContext{operatorID: operatorID, store: NewInMemoryKVStore()}
}

func (d *DefaultContext) OperatorID() string {
	return d.operatorID
}

func (d *DefaultContext) KVStore(tuple.PartitionKey) KVStore {
	return d.store
}

// PartitionedContext holds the partition stores a replica of a partitioned stateful operator owns.
type PartitionedContext struct {
	operatorID     string
	replicaIndex   int
	partitionCount int
	stores         map[int]*InMemoryKVStore
}

func newPartitionedContext(operatorID string, replicaIndex int, partitionCount int) *PartitionedContext {
	return &PartitionedContext{
		operatorID:     operatorID,
		replicaIndex:   replicaIndex,
		partitionCount: partitionCount,
		stores:         map[int]*InMemoryKVStore{},
	}
}

func (p *PartitionedContext) OperatorID() string {
	return p.operatorID
}

func (p *PartitionedContext) ReplicaIndex() int {
	return p.replicaIndex
}

// KVStore returns the store of the key's partition. Asking for a partition which is not owned by this
// replica means tuples were routed against a stale distribution and panics.
func (p *PartitionedContext) KVStore(key tuple.PartitionKey) KVStore {
	if key.IsZero() {
		panic(fmt.Sprintf("no partition key given for partitioned kv store of operator %s", p.operatorID))
	}
	partitionID := partition.ID(key.Hash(), p.partitionCount)
	store, ok := p.stores[partitionID]
	if !ok {
		panic(fmt.Sprintf("partition %d of key %s is not owned by replica %d of operator %s", partitionID, key,
			p.replicaIndex, p.operatorID))
	}
	return newKeyDecoratedKVStore(store, key.Key())
}

func (p *PartitionedContext) OwnedPartitionIDs() []int {
	ids := make([]int, 0, len(p.stores))
	for id := range p.stores {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (p *PartitionedContext) Owns(partitionID int) bool {
	_, ok := p.stores[partitionID]
	return ok
}

// PartitionStore returns the store of an owned partition.
func (p *PartitionedContext) PartitionStore(partitionID int) (*InMemoryKVStore, bool) {
	s, ok := p.stores[partitionID]
	return s, ok
}

func (p *PartitionedContext) adoptPartition(partitionID int, store *InMemoryKVStore) {
	if _, ok := p.stores[partitionID]; ok {
		panic(fmt.Sprintf("replica %d of operator %s already owns partition %d", p.replicaIndex, p.operatorID, partitionID))
	}
	p.stores[partitionID] = store
}
