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

package partition

import (
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru"
)

const (
	murmurM    = 0x5bd1e995
	murmurR    = 24
	murmurSeed = uint32(0x9747b28c)
)

// Murmur2 is the 32 bit murmur2 hash. Partition ids are derived from it so it must never change.
func Murmur2(data []byte) uint32 {
	h := murmurSeed ^ uint32(len(data))
	for len(data) >= 4 {
		k := binary.LittleEndian.Uint32(data)
		k *= murmurM
		k ^= k >> murmurR
		k *= murmurM
		h *= murmurM
		h ^= k
		data = data[4:]
	}
	switch len(data) {
	case 3:
		h ^= uint32(data[2]) << 16
		fallthrough
	case 2:
		h ^= uint32(data[1]) << 8
		fallthrough
	case 1:
		h ^= uint32(data[0])
		h *= murmurM
	}
	h ^= h >> 13
	h *= murmurM
	h ^= h >> 15
	return h
}

// HashCache caches the hashes of encoded partition keys. Keys of a stream are usually drawn from a small hot
// set, so an LRU saves re-hashing them on every offer.
type HashCache struct {
	cache *lru.Cache
}

func NewHashCache(size int) (*HashCache, error) {
	var cache *lru.Cache
	if size > 0 {
		var err error
		cache, err = lru.New(size)
		if err != nil {
			return nil, err
		}
	}
	return &HashCache{cache: cache}, nil
}

func (h *HashCache) Hash(encodedKey string) uint32 {
	if h.cache != nil {
		v, ok := h.cache.Get(encodedKey)
		if ok {
			return v.(uint32)
		}
	}
	hash := Murmur2([]byte(encodedKey))
	if h.cache != nil {
		h.cache.Add(encodedKey, hash)
	}
	return hash
}

// ID returns the partition id of a key hash.
func ID(hash uint32, partitionCount int) int {
	return int(hash % uint32(partitionCount))
}
