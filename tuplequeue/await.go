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
	"time"

	"github.com/spirit-labs/streamflow/operator"
)

// AwaitCounts waits up to timeout until the queues satisfy counts, where byPort decides whether every port
// with a positive count or any one of them must be satisfied. Multi threaded queues of one operator share a
// monitor and are waited on together, any other queues are checked once.
func AwaitCounts(queues []TupleQueue, counts []int, byPort operator.TupleAvailabilityByPort, timeout time.Duration) bool {
	mon := sharedMonitor(queues)
	if mon == nil {
		return countsAvailable(counts, byPort, func(portIndex int) int {
			return queues[portIndex].Size()
		})
	}
	return mon.await(func() bool {
		return countsAvailable(counts, byPort, func(portIndex int) int {
			return queues[portIndex].(*MultiThreadedTupleQueue).buf.size()
		})
	}, timeout)
}

func sharedMonitor(queues []TupleQueue) *monitor {
	var mon *monitor
	for _, q := range queues {
		mq, ok := q.(*MultiThreadedTupleQueue)
		if !ok {
			return nil
		}
		if mon == nil {
			mon = mq.mon
		} else if mon != mq.mon {
			return nil
		}
	}
	return mon
}
