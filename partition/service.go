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
	"sync"

	"github.com/spirit-labs/streamflow/errors"
	log "github.com/spirit-labs/streamflow/logger"
)

// Service assigns the partitions of partitioned stateful regions to region replicas. The partition count is
// fixed for the lifetime of the service, rebalancing only changes the owners.
type Service interface {
	PartitionCount() int
	GetOrCreatePartitionDistribution(regionID int, replicaCount int) (*Distribution, error)
	RebalancePartitionDistribution(regionID int, newReplicaCount int) (*Distribution, error)
}

// Distribution maps each partition id to the index of the replica owning it. It is immutable.
type Distribution struct {
	replicaCount int
	owners       []int
}

func NewDistribution(replicaCount int, owners []int) *Distribution {
	o := make([]int, len(owners))
	copy(o, owners)
	return &Distribution{replicaCount: replicaCount, owners: o}
}

func (d *Distribution) ReplicaCount() int {
	return d.replicaCount
}

func (d *Distribution) PartitionCount() int {
	return len(d.owners)
}

func (d *Distribution) ReplicaIndex(partitionID int) int {
	return d.owners[partitionID]
}

// Owners returns a copy of the partition id to replica index mapping.
func (d *Distribution) Owners() []int {
	o := make([]int, len(d.owners))
	copy(o, d.owners)
	return o
}

func (d *Distribution) OwnedPartitions(replicaIndex int) []int {
	var owned []int
	for partitionID, owner := range d.owners {
		if owner == replicaIndex {
			owned = append(owned, partitionID)
		}
	}
	return owned
}

type InMemoryService struct {
	lock           sync.Mutex
	partitionCount int
	distributions  map[int]*Distribution
}

func NewInMemoryService(partitionCount int) *InMemoryService {
	return &InMemoryService{
		partitionCount: partitionCount,
		distributions:  map[int]*Distribution{},
	}
}

func (s *InMemoryService) PartitionCount() int {
	return s.partitionCount
}

func (s *InMemoryService) GetOrCreatePartitionDistribution(regionID int, replicaCount int) (*Distribution, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if dist, ok := s.distributions[regionID]; ok {
		if dist.replicaCount != replicaCount {
			return nil, errors.NewInvalidConfigurationError("region already has a partition distribution with a different replica count")
		}
		return dist, nil
	}
	if err := s.checkReplicaCount(replicaCount); err != nil {
		return nil, err
	}
	owners := make([]int, s.partitionCount)
	for partitionID := 0; partitionID < s.partitionCount; partitionID++ {
		owners[partitionID] = partitionID % replicaCount
	}
	dist := &Distribution{replicaCount: replicaCount, owners: owners}
	s.distributions[regionID] = dist
	log.Debugf("created partition distribution for region %d with %d replicas", regionID, replicaCount)
	return dist, nil
}

// RebalancePartitionDistribution spreads the partitions over newReplicaCount replicas moving as few
// partitions as possible.
func (s *InMemoryService) RebalancePartitionDistribution(regionID int, newReplicaCount int) (*Distribution, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	current, ok := s.distributions[regionID]
	if !ok {
		return nil, errors.NewInvalidConfigurationError("region has no partition distribution to rebalance")
	}
	if err := s.checkReplicaCount(newReplicaCount); err != nil {
		return nil, err
	}
	targets := make([]int, newReplicaCount)
	for i := range targets {
		targets[i] = s.partitionCount / newReplicaCount
		if i < s.partitionCount%newReplicaCount {
			targets[i]++
		}
	}
	owners := current.Owners()
	counts := make([]int, newReplicaCount)
	var unassigned []int
	for partitionID, owner := range owners {
		if owner < newReplicaCount && counts[owner] < targets[owner] {
			counts[owner]++
		} else {
			unassigned = append(unassigned, partitionID)
		}
	}
	replicaIndex := 0
	for _, partitionID := range unassigned {
		for counts[replicaIndex] >= targets[replicaIndex] {
			replicaIndex++
		}
		owners[partitionID] = replicaIndex
		counts[replicaIndex]++
	}
	dist := &Distribution{replicaCount: newReplicaCount, owners: owners}
	s.distributions[regionID] = dist
	log.Infof("rebalanced partition distribution of region %d from %d to %d replicas, moved %d partitions",
		regionID, current.replicaCount, newReplicaCount, len(unassigned))
	return dist, nil
}

func (s *InMemoryService) checkReplicaCount(replicaCount int) error {
	if replicaCount < 1 {
		return errors.NewInvalidConfigurationError("replica count must be > 0")
	}
	if replicaCount > s.partitionCount {
		return errors.NewInvalidConfigurationError("replica count must be <= partition count")
	}
	return nil
}
