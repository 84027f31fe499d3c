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

package engine

import (
	"fmt"

	"github.com/spirit-labs/streamflow/pipeline"
	"github.com/spirit-labs/streamflow/region"
)

// Snapshot is an immutable view of the regions of a running flow. Every transformation publishes a new
// snapshot with the next version.
type Snapshot struct {
	version int
	regions []*region.Region
	entries []*pipeline.RegionEntry
}

func newSnapshot(version int, regions []*region.Region) *Snapshot {
	entries := make([]*pipeline.RegionEntry, len(regions))
	for i, r := range regions {
		entries[i] = r.Entry()
	}
	return &Snapshot{version: version, regions: regions, entries: entries}
}

func (s *Snapshot) Version() int {
	return s.version
}

// Regions returns the regions by region id.
func (s *Snapshot) Regions() []*region.Region {
	return s.regions
}

func (s *Snapshot) Region(regionID int) (*region.Region, bool) {
	if regionID < 0 || regionID >= len(s.regions) {
		return nil, false
	}
	return s.regions[regionID], true
}

func (s *Snapshot) Entry(regionID int) (*pipeline.RegionEntry, bool) {
	if regionID < 0 || regionID >= len(s.entries) {
		return nil, false
	}
	return s.entries[regionID], true
}

// with returns the next snapshot, with r replacing the region with the same id.
func (s *Snapshot) with(r *region.Region) *Snapshot {
	regions := make([]*region.Region, len(s.regions))
	copy(regions, s.regions)
	regions[r.ID()] = r
	return newSnapshot(s.version+1, regions)
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("Snapshot{version=%d, regions=%d}", s.version, len(s.regions))
}
