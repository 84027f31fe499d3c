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
	"testing"

	"github.com/spirit-labs/streamflow/partition"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/stretchr/testify/require"
)

const testPartitionCount = 4

func keyInPartition(t *testing.T, partitionID int) tuple.PartitionKey {
	t.Helper()
	cache, err := partition.NewHashCache(0)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		key := tuple.NewPartitionKey(string(rune('a'+i%26))+string(rune('a'+i/26)), 0)
		hash := cache.Hash(key.Key())
		if partition.ID(hash, testPartitionCount) == partitionID {
			return tuple.NewPartitionKey(key.Key(), hash)
		}
	}
	require.Fail(t, "no key found")
	return tuple.NoKey
}

func TestInMemoryKVStore(t *testing.T) {
	store := NewInMemoryKVStore()
	store.Set("b", 2)
	store.Set("a", 1)
	require.Equal(t, 2, store.Size())
	v, ok := store.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.Equal(t, "x", store.GetOrDefault("c", "x"))

	var keys []string
	store.ForEach(func(key string, _ any) bool {
		keys = append(keys, key)
		return true
	})
	require.Equal(t, []string{"a", "b"}, keys)

	require.True(t, store.Remove("a"))
	require.False(t, store.Remove("a"))
	require.False(t, store.Contains("a"))
	store.Clear()
	require.Equal(t, 0, store.Size())
}

func TestKeyDecoratedStoresAreIsolated(t *testing.T) {
	store := NewInMemoryKVStore()
	k1 := newKeyDecoratedKVStore(store, "k1")
	k2 := newKeyDecoratedKVStore(store, "k2")
	k1.Set("count", 1)
	k1.Set("sum", 10)
	k2.Set("count", 5)
	require.Equal(t, 1, k1.GetOrDefault("count", 0))
	require.Equal(t, 5, k2.GetOrDefault("count", 0))
	require.Equal(t, 2, k1.Size())
	require.Equal(t, 1, k2.Size())
	require.Equal(t, 3, store.Size())

	k1.Clear()
	require.Equal(t, 0, k1.Size())
	require.True(t, k2.Contains("count"))
}

func TestDefaultContext(t *testing.T) {
	m := NewManager(testPartitionCount)
	ctx := m.CreateDefaultContext("op1")
	ctx.KVStore(tuple.NoKey).Set("a", 1)
	require.Equal(t, 1, ctx.KVStore(tuple.NewPartitionKey("x", 1)).GetOrDefault("a", 0))
	got, ok := m.DefaultContext("op1")
	require.True(t, ok)
	require.Same(t, ctx, got)
	require.Panics(t, func() {
		m.CreateDefaultContext("op1")
	})
}

func TestPartitionedContextOwnership(t *testing.T) {
	service := partition.NewInMemoryService(testPartitionCount)
	dist, err := service.GetOrCreatePartitionDistribution(1, 2)
	require.NoError(t, err)
	m := NewManager(testPartitionCount)
	contexts := m.CreatePartitionedContexts("op1", dist)
	require.Len(t, contexts, 2)
	require.Equal(t, []int{0, 2}, contexts[0].OwnedPartitionIDs())
	require.Equal(t, []int{1, 3}, contexts[1].OwnedPartitionIDs())

	key0 := keyInPartition(t, 0)
	contexts[0].KVStore(key0).Set("count", 3)
	require.Equal(t, 3, contexts[0].KVStore(key0).GetOrDefault("count", 0))
	require.Panics(t, func() {
		contexts[1].KVStore(key0)
	})
	require.Panics(t, func() {
		contexts[0].KVStore(tuple.NoKey)
	})
}

func TestRebalancePartitionedContextsMigratesState(t *testing.T) {
	service := partition.NewInMemoryService(testPartitionCount)
	before, err := service.GetOrCreatePartitionDistribution(1, 1)
	require.NoError(t, err)
	m := NewManager(testPartitionCount)
	contexts := m.CreatePartitionedContexts("op1", before)
	keys := make([]tuple.PartitionKey, testPartitionCount)
	for p := 0; p < testPartitionCount; p++ {
		keys[p] = keyInPartition(t, p)
		contexts[0].KVStore(keys[p]).Set("value", p)
	}
	store0, ok := contexts[0].PartitionStore(0)
	require.True(t, ok)

	after, err := service.RebalancePartitionDistribution(1, 2)
	require.NoError(t, err)
	rebalanced := m.RebalancePartitionedContexts("op1", before, after)
	require.Len(t, rebalanced, 2)
	for p := 0; p < testPartitionCount; p++ {
		owner := rebalanced[after.ReplicaIndex(p)]
		require.Equal(t, p, owner.KVStore(keys[p]).GetOrDefault("value", -1))
	}
	// a partition which kept its owner keeps its store
	kept, ok := rebalanced[0].PartitionStore(0)
	require.True(t, ok)
	require.Same(t, store0, kept)
	// the old context is left intact
	require.Len(t, contexts[0].OwnedPartitionIDs(), testPartitionCount)
	for p := 0; p < testPartitionCount; p++ {
		require.Equal(t, p, contexts[0].KVStore(keys[p]).GetOrDefault("value", -1))
	}

	current, ok := m.PartitionedContexts("op1")
	require.True(t, ok)
	require.Equal(t, rebalanced, current)
}
