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
	"fmt"
	"time"

	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/tuple"
)

// EmptyOperatorTupleQueue stands in where no tuples may ever arrive: the queue of a source operator, or the
// self queue of a pipeline whose head operator is fed directly. Offering tuples to it is a programming error.
type EmptyOperatorTupleQueue struct {
	operatorID string
	portCount  int
}

func NewEmptyOperatorTupleQueue(operatorID string, portCount int) *EmptyOperatorTupleQueue {
	return &EmptyOperatorTupleQueue{operatorID: operatorID, portCount: portCount}
}

func (e *EmptyOperatorTupleQueue) OperatorID() string {
	return e.operatorID
}

func (e *EmptyOperatorTupleQueue) PortCount() int {
	return e.portCount
}

func (e *EmptyOperatorTupleQueue) ThreadingPreference() ThreadingPreference {
	return SingleThreaded
}

func (e *EmptyOperatorTupleQueue) Offer(portIndex int, tuples []*tuple.Tuple) {
	e.checkEmpty(portIndex, tuples)
}

func (e *EmptyOperatorTupleQueue) TryOffer(portIndex int, tuples []*tuple.Tuple, _ time.Duration) int {
	e.checkEmpty(portIndex, tuples)
	return 0
}

func (e *EmptyOperatorTupleQueue) ForceOffer(portIndex int, tuples []*tuple.Tuple) {
	e.checkEmpty(portIndex, tuples)
}

func (e *EmptyOperatorTupleQueue) checkEmpty(portIndex int, tuples []*tuple.Tuple) {
	if len(tuples) > 0 {
		panic(fmt.Sprintf("unsupported operation: offer of %d tuples to port %d of empty queue of operator %s",
			len(tuples), portIndex, e.operatorID))
	}
}

func (e *EmptyOperatorTupleQueue) Drain(Drainer, TuplesSupplier) bool {
	return false
}

func (e *EmptyOperatorTupleQueue) SetTupleCounts([]int, operator.TupleAvailabilityByPort) {
}

func (e *EmptyOperatorTupleQueue) AwaitTuples(time.Duration) bool {
	return false
}

func (e *EmptyOperatorTupleQueue) EnableCapacityCheck(int) {
}

func (e *EmptyOperatorTupleQueue) DisableCapacityCheck(int) {
}

func (e *EmptyOperatorTupleQueue) IsCapacityCheckEnabled(int) bool {
	return false
}

func (e *EmptyOperatorTupleQueue) IsOverloaded() bool {
	return false
}

func (e *EmptyOperatorTupleQueue) Size(int) int {
	return 0
}

func (e *EmptyOperatorTupleQueue) IsEmpty() bool {
	return true
}

func (e *EmptyOperatorTupleQueue) RemoveAll() [][]*tuple.Tuple {
	return make([][]*tuple.Tuple, e.portCount)
}

func (e *EmptyOperatorTupleQueue) Clear() {
}
