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
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
)

// KVStore is the keyed state an operator reads and writes during an invocation.
type KVStore interface {
	Get(key string) (any, bool)
	GetOrDefault(key string, def any) any
	Set(key string, value any)
	Remove(key string) bool
	Contains(key string) bool
	Size() int
	Clear()
}

// InMemoryKVStore is an ordered in-memory store. It is only ever accessed by the worker of the pipeline
// replica which owns the operator so it does no locking.
type InMemoryKVStore struct {
	data *treemap.Map
}

func NewInMemoryKVStore() *InMemoryKVStore {
	return &InMemoryKVStore{data: treemap.NewWithStringComparator()}
}

func (s *InMemoryKVStore) Get(key string) (any, bool) {
	return s.data.Get(key)
}

func (s *InMemoryKVStore) GetOrDefault(key string, def any) any {
	v, ok := s.data.Get(key)
	if !ok {
		return def
	}
	return v
}

func (s *InMemoryKVStore) Set(key string, value any) {
	s.data.Put(key, value)
}

func (s *InMemoryKVStore) Remove(key string) bool {
	_, ok := s.data.Get(key)
	if ok {
		s.data.Remove(key)
	}
	return ok
}

func (s *InMemoryKVStore) Contains(key string) bool {
	_, ok := s.data.Get(key)
	return ok
}

func (s *InMemoryKVStore) Size() int {
	return s.data.Size()
}

func (s *InMemoryKVStore) Clear() {
	s.data.Clear()
}

// ForEach calls f for each entry in key order until f returns false.
func (s *InMemoryKVStore) ForEach(f func(key string, value any) bool) {
	iter := s.data.Iterator()
	for iter.Next() {
		if !f(iter.Key().(string), iter.Value()) {
			return
		}
	}
}

// CopyTo puts every entry of this store into other.
func (s *InMemoryKVStore) CopyTo(other *InMemoryKVStore) {
	s.ForEach(func(key string, value any) bool {
		other.Set(key, value)
		return true
	})
}

const keySeparator = "\x00"

// keyDecoratedKVStore is the view of a partition store seen by one partition key. Keys are prefixed with
// the encoded partition key so all keys of a partition live in the same store and move together.
type keyDecoratedKVStore struct {
	store  *InMemoryKVStore
	prefix string
}

func newKeyDecoratedKVStore(store *InMemoryKVStore, partitionKey string) *keyDecoratedKVStore {
	return &keyDecoratedKVStore{store: store, prefix: partitionKey + keySeparator}
}

func (k *keyDecoratedKVStore) Get(key string) (any, bool) {
	return k.store.Get(k.prefix + key)
}

func (k *keyDecoratedKVStore) GetOrDefault(key string, def any) any {
	return k.store.GetOrDefault(k.prefix+key, def)
}

func (k *keyDecoratedKVStore) Set(key string, value any) {
	k.store.Set(k.prefix+key, value)
}

func (k *keyDecoratedKVStore) Remove(key string) bool {
	return k.store.Remove(k.prefix + key)
}

func (k *keyDecoratedKVStore) Contains(key string) bool {
	return k.store.Contains(k.prefix + key)
}

func (k *keyDecoratedKVStore) Size() int {
	size := 0
	k.store.ForEach(func(key string, _ any) bool {
		if strings.HasPrefix(key, k.prefix) {
			size++
		}
		return true
	})
	return size
}

func (k *keyDecoratedKVStore) Clear() {
	var keys []string
	k.store.ForEach(func(key string, _ any) bool {
		if strings.HasPrefix(key, k.prefix) {
			keys = append(keys, key)
		}
		return true
	})
	for _, key := range keys {
		k.store.Remove(key)
	}
}
