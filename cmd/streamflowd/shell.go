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

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spirit-labs/streamflow/command"
	"github.com/spirit-labs/streamflow/errors"
)

// runShell reads statements terminated by a ; and executes them against the engine until EOF or CTRL-C.
func runShell(engine command.Engine, vi bool) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return errors.WithStack(err)
	}
	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:            filepath.Join(home, ".streamflow.history"),
		DisableAutoSaveHistory: true,
		VimMode:                vi,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	defer rl.Close()
	executor := command.NewExecutor(engine)
	for {
		rl.SetPrompt("streamflow> ")
		var lines []string
		for {
			line, err := rl.Readline()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) {
					return nil
				}
				return errors.WithStack(err)
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			lines = append(lines, line)
			if strings.HasSuffix(line, ";") {
				break
			}
			rl.SetPrompt("            ")
		}
		statement := strings.Join(lines, " ")
		_ = rl.SaveHistory(statement)
		out, err := executor.Execute(statement)
		if err != nil {
			fmt.Println(err.Error())
			continue
		}
		fmt.Println(out)
	}
}
