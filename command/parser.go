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
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/spirit-labs/streamflow/errors"
)

var lex = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Integer", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[,;]`},
	{Name: "Whitespace", Pattern: `[ \t\n\r]+`},
})

var parser = participle.MustBuild[Statement](
	participle.Lexer(lex),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(2),
)

// Statement is one shell statement, optionally terminated by a semicolon.
type Statement struct {
	ShowRegions *ShowRegions `(  @@`
	ShowRegion  *ShowRegion  ` | @@`
	Merge       *Merge       ` | @@`
	Split       *Split       ` | @@`
	Rebalance   *Rebalance   ` | @@ ) ";"?`
}

// ShowRegions lists the regions of the running flow.
type ShowRegions struct {
	Regions bool `"show" @"regions"`
}

// ShowRegion lists the pipeline replicas of a region.
type ShowRegion struct {
	RegionID int `"show" "region" @Integer`
}

type Merge struct {
	RegionID int   `"merge" @Integer`
	Indices  []int `@Integer ("," @Integer)*`
}

type Split struct {
	RegionID int   `"split" @Integer`
	Indices  []int `@Integer ("," @Integer)*`
}

type Rebalance struct {
	RegionID     int `"rebalance" @Integer`
	ReplicaCount int `@Integer`
}

// Parse parses a single statement.
func Parse(input string) (*Statement, error) {
	if strings.TrimSpace(input) == "" {
		return nil, errors.NewInvalidStatementErrorf("statement is empty")
	}
	statement, err := parser.ParseString("", input)
	if err != nil {
		return nil, errors.NewInvalidStatementErrorf("%v", err)
	}
	return statement, nil
}
