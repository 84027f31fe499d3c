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

import "fmt"

// Config holds the user supplied parameters of an operator.
type Config map[string]any

func (c Config) Get(key string) (any, bool) {
	v, ok := c[key]
	return v, ok
}

func (c Config) GetOrDefault(key string, def any) any {
	if v, ok := c[key]; ok {
		return v
	}
	return def
}

func (c Config) GetOrFail(key string) any {
	v, ok := c[key]
	if !ok {
		panic(fmt.Sprintf("operator config has no %s", key))
	}
	return v
}

func (c Config) GetInt(key string, def int) int {
	v, ok := c[key]
	if !ok {
		return def
	}
	return v.(int)
}

func (c Config) Copy() Config {
	cp := make(Config, len(c))
	for k, v := range c {
		cp[k] = v
	}
	return cp
}
