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

package pipeline

import "fmt"

// PipelineID identifies a pipeline of a region by the index of its first operator in the region.
type PipelineID struct {
	RegionID           int
	PipelineStartIndex int
}

func (p PipelineID) String() string {
	return fmt.Sprintf("P[%d][%d]", p.RegionID, p.PipelineStartIndex)
}

type PipelineReplicaID struct {
	PipelineID
	ReplicaIndex int
}

func NewPipelineReplicaID(regionID int, pipelineStartIndex int, replicaIndex int) PipelineReplicaID {
	return PipelineReplicaID{
		PipelineID:   PipelineID{RegionID: regionID, PipelineStartIndex: pipelineStartIndex},
		ReplicaIndex: replicaIndex,
	}
}

func (p PipelineReplicaID) String() string {
	return fmt.Sprintf("P[%d][%d][%d]", p.RegionID, p.PipelineStartIndex, p.ReplicaIndex)
}
