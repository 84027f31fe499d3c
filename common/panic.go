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
	"os"
	"runtime/debug"
)

// PanicHandler is deferred at binary entry points. Broken invariants panic, and we never try to carry on
// after one.
func PanicHandler() {
	if r := recover(); r != nil {
		fmt.Printf("Panic caught in streamflow: %v\n", r)
		debug.PrintStack()
		os.Exit(1)
	}
}
