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

package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spirit-labs/streamflow/engine"
	"github.com/spirit-labs/streamflow/errors"
	log "github.com/spirit-labs/streamflow/logger"
	"github.com/spirit-labs/streamflow/region"
)

// Engine is the part of the engine statements are executed against.
type Engine interface {
	Snapshot() *engine.Snapshot
	MergePipelines(regionID int, indices []int) error
	SplitPipeline(regionID int, indices []int) error
	RebalanceRegion(regionID int, replicaCount int) error
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Executor executes shell statements and renders their results.
type Executor struct {
	engine Engine
}

func NewExecutor(engine Engine) *Executor {
	return &Executor{engine: engine}
}

// Execute parses and executes a statement and returns the text to display.
func (e *Executor) Execute(input string) (string, error) {
	statement, err := Parse(input)
	if err != nil {
		return "", err
	}
	switch {
	case statement.ShowRegions != nil:
		return e.showRegions()
	case statement.ShowRegion != nil:
		return e.showRegion(statement.ShowRegion.RegionID)
	case statement.Merge != nil:
		s := statement.Merge
		return e.transformed(s.RegionID, e.engine.MergePipelines(s.RegionID, s.Indices))
	case statement.Split != nil:
		s := statement.Split
		return e.transformed(s.RegionID, e.engine.SplitPipeline(s.RegionID, s.Indices))
	case statement.Rebalance != nil:
		s := statement.Rebalance
		return e.transformed(s.RegionID, e.engine.RebalanceRegion(s.RegionID, s.ReplicaCount))
	default:
		panic("statement has no clause")
	}
}

func (e *Executor) snapshot() (*engine.Snapshot, error) {
	s := e.engine.Snapshot()
	if s == nil {
		return nil, errors.NewStreamflowErrorf(errors.Unavailable, "no flow is running")
	}
	return s, nil
}

func (e *Executor) transformed(regionID int, err error) (string, error) {
	if err != nil {
		return "", err
	}
	s, err := e.snapshot()
	if err != nil {
		return "", err
	}
	r, _ := s.Region(regionID)
	log.Debugf("executed statement on region %d, flow version is %d", regionID, s.Version())
	return fmt.Sprintf("OK, flow version %d: %s", s.Version(), describe(r)), nil
}

func (e *Executor) showRegions() (string, error) {
	s, err := e.snapshot()
	if err != nil {
		return "", err
	}
	rows := make([][]string, 0, len(s.Regions()))
	for _, r := range s.Regions() {
		rows = append(rows, []string{
			strconv.Itoa(r.ID()),
			r.Def().Type().String(),
			strings.Join(r.Def().OperatorIDs(), ","),
			strconv.Itoa(r.ReplicaCount()),
			intList(r.ExecPlan().PipelineStartIndices()),
			strconv.FormatBool(r.IsCompleted()),
		})
	}
	return fmt.Sprintf("flow version %d\n%s", s.Version(),
		render([]string{"region", "type", "operators", "replicas", "pipelines", "completed"}, rows)), nil
}

func (e *Executor) showRegion(regionID int) (string, error) {
	s, err := e.snapshot()
	if err != nil {
		return "", err
	}
	r, ok := s.Region(regionID)
	if !ok {
		return "", errors.NewInvalidStatementErrorf("no region %d", regionID)
	}
	var rows [][]string
	for pipelineIndex := 0; pipelineIndex < r.PipelineCount(); pipelineIndex++ {
		for _, p := range r.PipelineReplicas(pipelineIndex) {
			operators := make([]string, 0, p.OperatorCount())
			for _, op := range p.Operators() {
				operators = append(operators, op.OperatorID())
			}
			rows = append(rows, []string{
				p.ID().String(),
				strings.Join(operators, ","),
				intList(int64sToInts(p.Meter().InboundThroughput())),
				strconv.FormatBool(p.EntryQueue().IsOverloaded()),
				strconv.FormatBool(p.IsCompleted()),
			})
		}
	}
	return render([]string{"pipeline replica", "operators", "inbound", "overloaded", "completed"}, rows), nil
}

// describe returns a one line summary of a region.
func describe(r *region.Region) string {
	return fmt.Sprintf("region %d %s", r.ID(), r.ExecPlan())
}

func render(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func intList(values []int) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, ",")
}

func int64sToInts(values []int64) []int {
	ints := make([]int, len(values))
	for i, v := range values {
		ints[i] = int(v)
	}
	return ints
}
