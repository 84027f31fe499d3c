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
	"runtime"
	"runtime/debug"

	log "github.com/spirit-labs/streamflow/logger"
)

// GetCurrentStack returns the stack of the calling goroutine.
func GetCurrentStack() string {
	return string(debug.Stack())
}

// DumpStacks logs the stacks of all goroutines.
func DumpStacks() {
	buf := make([]byte, 1<<16)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			log.Warnf("goroutine stacks:\n%s", buf[:n])
			return
		}
		buf = make([]byte, 2*len(buf))
	}
}
