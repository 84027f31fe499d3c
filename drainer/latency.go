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

package drainer

import (
	"time"

	"github.com/spirit-labs/streamflow/tuple"
	"github.com/spirit-labs/streamflow/tuplequeue"
)

// LatencyRecorder receives the time between a drainer being acquired and the tuples it drained being
// delivered to the operator.
type LatencyRecorder interface {
	RecordDrainLatency(operatorID string, tupleCount int, latency time.Duration)
}

// LatencyRecordingDrainer decorates a drainer and reports drain latencies without changing what is drained.
type LatencyRecordingDrainer struct {
	operatorID string
	drainer    tuplequeue.Drainer
	recorder   LatencyRecorder
	acquiredAt time.Time
	supplier   countingSupplier
}

func NewLatencyRecordingDrainer(operatorID string, drainer tuplequeue.Drainer, recorder LatencyRecorder) *LatencyRecordingDrainer {
	return &LatencyRecordingDrainer{operatorID: operatorID, drainer: drainer, recorder: recorder}
}

func (l *LatencyRecordingDrainer) Unwrap() tuplequeue.Drainer {
	return l.drainer
}

func (l *LatencyRecordingDrainer) acquired() {
	l.acquiredAt = time.Now()
}

func (l *LatencyRecordingDrainer) Drain(key tuple.PartitionKey, queues []tuplequeue.TupleQueue, supplier tuplequeue.TuplesSupplier) bool {
	if l.acquiredAt.IsZero() {
		l.acquiredAt = time.Now()
	}
	l.supplier.supplier = supplier
	l.supplier.supplied = l.supplier.supplied[:0]
	satisfied := l.drainer.Drain(key, queues, &l.supplier)
	if len(l.supplier.supplied) > 0 {
		count := 0
		for _, tuples := range l.supplier.supplied {
			count += tuples.TotalCount()
		}
		l.recorder.RecordDrainLatency(l.operatorID, count, time.Since(l.acquiredAt))
	}
	l.supplier.supplier = nil
	return satisfied
}

func (l *LatencyRecordingDrainer) Reset() {
	l.drainer.Reset()
	l.acquiredAt = time.Time{}
}

type countingSupplier struct {
	supplier tuplequeue.TuplesSupplier
	supplied []*tuple.Tuples
}

func (c *countingSupplier) Supply(key tuple.PartitionKey) *tuple.Tuples {
	tuples := c.supplier.Supply(key)
	c.supplied = append(c.supplied, tuples)
	return tuples
}
