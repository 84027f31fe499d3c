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

package partition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spirit-labs/streamflow/tuple"
)

// KeyExtractor computes the partition key of a tuple.
type KeyExtractor interface {
	Extract(t *tuple.Tuple) tuple.PartitionKey
	PartitionFieldNames() []string
}

// FieldsKeyExtractor builds the partition key from the values of a fixed list of fields.
type FieldsKeyExtractor struct {
	fieldNames []string
	hashes     *HashCache
}

func NewFieldsKeyExtractor(fieldNames []string, hashes *HashCache) *FieldsKeyExtractor {
	if len(fieldNames) == 0 {
		panic("partition key extractor requires at least one field")
	}
	return &FieldsKeyExtractor{fieldNames: fieldNames, hashes: hashes}
}

func (f *FieldsKeyExtractor) PartitionFieldNames() []string {
	return f.fieldNames
}

func (f *FieldsKeyExtractor) Extract(t *tuple.Tuple) tuple.PartitionKey {
	var encoded string
	if len(f.fieldNames) == 1 {
		encoded = encodeValue(t, f.fieldNames[0])
	} else {
		sb := strings.Builder{}
		for i, field := range f.fieldNames {
			if i > 0 {
				sb.WriteByte(0x1f)
			}
			sb.WriteString(encodeValue(t, field))
		}
		encoded = sb.String()
	}
	return tuple.NewPartitionKey(encoded, f.hashes.Hash(encoded))
}

func encodeValue(t *tuple.Tuple, field string) string {
	v := t.Get(field)
	if v == nil {
		panic(fmt.Sprintf("tuple %s has no partition field %s", t, field))
	}
	// values are tagged with their type so that 1 and "1" are different keys
	switch tv := v.(type) {
	case string:
		return "s:" + tv
	case int:
		return "i:" + strconv.Itoa(tv)
	case int64:
		return "l:" + strconv.FormatInt(tv, 10)
	case bool:
		return "b:" + strconv.FormatBool(tv)
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// PartitionIDOf returns the partition id of a tuple inside a partitioned region. A tuple which already
// carries a partition key keeps it, otherwise the key is extracted from its fields.
func PartitionIDOf(t *tuple.Tuple, extractor KeyExtractor, partitionCount int) int {
	if key, ok := t.PartitionKey(); ok {
		return ID(key.Hash(), partitionCount)
	}
	return ID(extractor.Extract(t).Hash(), partitionCount)
}
