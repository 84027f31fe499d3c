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

package tuple

import (
	"fmt"
	"strings"
)

// PartitionKey identifies the partition key of a tuple, the values of its partition fields. The zero value
// means no key.
type PartitionKey struct {
	key  string
	hash uint32
}

var NoKey = PartitionKey{}

func NewPartitionKey(key string, hash uint32) PartitionKey {
	return PartitionKey{key: key, hash: hash}
}

func (p PartitionKey) Key() string {
	return p.key
}

func (p PartitionKey) Hash() uint32 {
	return p.hash
}

func (p PartitionKey) IsZero() bool {
	return p == NoKey
}

func (p PartitionKey) String() string {
	return fmt.Sprintf("[%s]", p.key)
}

// Tuple is an ordered mapping of field name to value. Once offered to a queue a tuple must not be modified
// by its producer.
type Tuple struct {
	fields       []string
	values       map[string]any
	partitionKey PartitionKey
}

func NewTuple() *Tuple {
	return &Tuple{values: map[string]any{}}
}

// Of creates a tuple from alternating field names and values.
func Of(keyValues ...any) *Tuple {
	if len(keyValues)%2 != 0 {
		panic("tuple.Of requires an even number of arguments")
	}
	t := NewTuple()
	for i := 0; i < len(keyValues); i += 2 {
		t.Set(keyValues[i].(string), keyValues[i+1])
	}
	return t
}

func (t *Tuple) Set(field string, value any) *Tuple {
	if _, exists := t.values[field]; !exists {
		t.fields = append(t.fields, field)
	}
	t.values[field] = value
	return t
}

func (t *Tuple) Get(field string) any {
	return t.values[field]
}

func (t *Tuple) GetOrDefault(field string, def any) any {
	if v, ok := t.values[field]; ok {
		return v
	}
	return def
}

func (t *Tuple) Contains(field string) bool {
	_, ok := t.values[field]
	return ok
}

func (t *Tuple) GetInt(field string) int {
	v, ok := t.values[field]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case int32:
		return int(n)
	default:
		panic(fmt.Sprintf("field %s is not an integer: %v", field, v))
	}
}

func (t *Tuple) GetString(field string) string {
	v, ok := t.values[field]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}

func (t *Tuple) Remove(field string) bool {
	if _, ok := t.values[field]; !ok {
		return false
	}
	delete(t.values, field)
	for i, f := range t.fields {
		if f == field {
			t.fields = append(t.fields[:i], t.fields[i+1:]...)
			break
		}
	}
	return true
}

// Fields returns the field names in insertion order.
func (t *Tuple) Fields() []string {
	return t.fields
}

func (t *Tuple) Len() int {
	return len(t.fields)
}

func (t *Tuple) AttachPartitionKey(key PartitionKey) {
	t.partitionKey = key
}

// PartitionKey returns the attached partition key, if any.
func (t *Tuple) PartitionKey() (PartitionKey, bool) {
	return t.partitionKey, !t.partitionKey.IsZero()
}

// CopyPartitionTo attaches this tuple's partition key to other.
func (t *Tuple) CopyPartitionTo(other *Tuple) {
	other.partitionKey = t.partitionKey
}

func (t *Tuple) Copy() *Tuple {
	c := &Tuple{
		fields:       make([]string, len(t.fields)),
		values:       make(map[string]any, len(t.values)),
		partitionKey: t.partitionKey,
	}
	copy(c.fields, t.fields)
	for k, v := range t.values {
		c.values[k] = v
	}
	return c
}

func (t *Tuple) String() string {
	sb := strings.Builder{}
	sb.WriteString("{")
	for i, f := range t.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s=%v", f, t.values[f]))
	}
	sb.WriteString("}")
	return sb.String()
}
