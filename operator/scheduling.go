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

package operator

import (
	"fmt"

	"github.com/spirit-labs/streamflow/errors"
)

type TupleAvailabilityByCount int

const (
	Exact TupleAvailabilityByCount = iota
	AtLeast
	AtLeastButSameOnAllPorts
)

func (t TupleAvailabilityByCount) String() string {
	switch t {
	case Exact:
		return "EXACT"
	case AtLeast:
		return "AT_LEAST"
	case AtLeastButSameOnAllPorts:
		return "AT_LEAST_BUT_SAME_ON_ALL_PORTS"
	default:
		return fmt.Sprintf("TupleAvailabilityByCount(%d)", int(t))
	}
}

type TupleAvailabilityByPort int

const (
	AllPorts TupleAvailabilityByPort = iota
	AnyPort
)

func (t TupleAvailabilityByPort) String() string {
	switch t {
	case AllPorts:
		return "ALL_PORTS"
	case AnyPort:
		return "ANY_PORT"
	default:
		return fmt.Sprintf("TupleAvailabilityByPort(%d)", int(t))
	}
}

// SchedulingStrategy tells the engine when an operator is ready to be invoked. The set of strategies is
// closed: ScheduleWhenAvailable, ScheduleWhenTuplesAvailable and ScheduleNever.
type SchedulingStrategy interface {
	schedulingStrategy()
}

// ScheduleWhenAvailable invokes the operator with whatever is buffered. Operators without input ports are
// invoked on every cycle.
type ScheduleWhenAvailable struct{}

// ScheduleWhenTuplesAvailable invokes the operator once its input ports hold the given tuple counts.
type ScheduleWhenTuplesAvailable struct {
	ByCount    TupleAvailabilityByCount
	ByPort     TupleAvailabilityByPort
	PortCounts []int
}

// ScheduleNever is returned by an operator which will not be invoked again.
type ScheduleNever struct{}

func (ScheduleWhenAvailable) schedulingStrategy()       {}
func (ScheduleWhenTuplesAvailable) schedulingStrategy() {}
func (ScheduleNever) schedulingStrategy()               {}

func (s ScheduleWhenTuplesAvailable) String() string {
	return fmt.Sprintf("ScheduleWhenTuplesAvailable{%s, %s, %v}", s.ByCount, s.ByPort, s.PortCounts)
}

func ScheduleWhenTuplesAvailableOnDefaultPort(tupleCount int) ScheduleWhenTuplesAvailable {
	return ScheduleWhenTuplesAvailable{ByCount: AtLeast, ByPort: AllPorts, PortCounts: []int{tupleCount}}
}

func ExactlyOnDefaultPort(tupleCount int) ScheduleWhenTuplesAvailable {
	return ScheduleWhenTuplesAvailable{ByCount: Exact, ByPort: AllPorts, PortCounts: []int{tupleCount}}
}

// ScheduleWhenTuplesAvailableOnAll requires tupleCount tuples on each of the given ports.
func ScheduleWhenTuplesAvailableOnAll(byCount TupleAvailabilityByCount, portCount int, tupleCount int, ports ...int) ScheduleWhenTuplesAvailable {
	return ScheduleWhenTuplesAvailable{ByCount: byCount, ByPort: AllPorts, PortCounts: portCounts(portCount, tupleCount, ports)}
}

// ScheduleWhenTuplesAvailableOnAny requires tupleCount tuples on any of the given ports.
func ScheduleWhenTuplesAvailableOnAny(byCount TupleAvailabilityByCount, portCount int, tupleCount int, ports ...int) ScheduleWhenTuplesAvailable {
	return ScheduleWhenTuplesAvailable{ByCount: byCount, ByPort: AnyPort, PortCounts: portCounts(portCount, tupleCount, ports)}
}

func portCounts(portCount int, tupleCount int, ports []int) []int {
	counts := make([]int, portCount)
	if len(ports) == 0 {
		for i := range counts {
			counts[i] = tupleCount
		}
		return counts
	}
	for _, port := range ports {
		counts[port] = tupleCount
	}
	return counts
}

// ValidateSchedulingStrategy checks a strategy returned by an operator with the given input port count.
func ValidateSchedulingStrategy(strategy SchedulingStrategy, inputPortCount int) error {
	switch s := strategy.(type) {
	case ScheduleWhenAvailable, ScheduleNever:
		return nil
	case ScheduleWhenTuplesAvailable:
		if inputPortCount == 0 {
			return errors.NewInvalidSchedulingStrategyErrorf("operator without input ports cannot wait for tuples")
		}
		if len(s.PortCounts) != inputPortCount {
			return errors.NewInvalidSchedulingStrategyErrorf("%s has %d port counts but operator has %d input ports",
				s, len(s.PortCounts), inputPortCount)
		}
		positive := 0
		for _, count := range s.PortCounts {
			if count < 0 {
				return errors.NewInvalidSchedulingStrategyErrorf("%s has a negative tuple count", s)
			}
			if count > 0 {
				positive++
			}
		}
		if positive == 0 {
			return errors.NewInvalidSchedulingStrategyErrorf("%s has no port with a positive tuple count", s)
		}
		if s.ByPort == AnyPort && s.ByCount == AtLeastButSameOnAllPorts {
			return errors.NewInvalidSchedulingStrategyErrorf("%s cannot be combined with %s", AtLeastButSameOnAllPorts, AnyPort)
		}
		return nil
	case nil:
		return errors.NewInvalidSchedulingStrategyErrorf("no scheduling strategy")
	default:
		panic(fmt.Sprintf("unknown scheduling strategy %T", strategy))
	}
}
