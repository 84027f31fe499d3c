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

package common

import (
	"fmt"
	"sync/atomic"

	"github.com/timandy/routine"
)

var runningGRs int64

// Go runs f on a new goroutine, keeping count of the goroutines started this way which are still running.
func Go(f func()) {
	atomic.AddInt64(&runningGRs, 1)
	go func() {
		defer atomic.AddInt64(&runningGRs, -1)
		f()
	}()
}

func RunningGRCount() int64 {
	return atomic.LoadInt64(&runningGRs)
}

// GoroutineOwner records the goroutine which owns some single-writer structure so that the ownership can be
// asserted on the hot path.
type GoroutineOwner struct {
	name string
	goid atomic.Int64
}

func NewGoroutineOwner(name string) *GoroutineOwner {
	return &GoroutineOwner{name: name}
}

// Claim makes the calling goroutine the owner.
func (g *GoroutineOwner) Claim() {
	g.goid.Store(routine.Goid())
}

// Release clears the owner.
func (g *GoroutineOwner) Release() {
	g.goid.Store(0)
}

func (g *GoroutineOwner) IsOwner() bool {
	return g.goid.Load() == routine.Goid()
}

// CheckOwner panics if the calling goroutine is not the owner.
func (g *GoroutineOwner) CheckOwner() {
	if owner := g.goid.Load(); owner != routine.Goid() {
		panic(fmt.Sprintf("%s accessed from goroutine %d but is owned by goroutine %d", g.name, routine.Goid(), owner))
	}
}
