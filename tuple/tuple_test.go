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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTupleKeepsFieldOrder(t *testing.T) {
	tup := Of("b", 1, "a", "x")
	tup.Set("c", 3.5)
	tup.Set("b", 2)
	require.Equal(t, []string{"b", "a", "c"}, tup.Fields())
	require.Equal(t, 2, tup.GetInt("b"))
	require.Equal(t, "x", tup.GetString("a"))
	require.Equal(t, "{b=2, a=x, c=3.5}", tup.String())

	require.True(t, tup.Remove("a"))
	require.False(t, tup.Remove("a"))
	require.Equal(t, []string{"b", "c"}, tup.Fields())
	require.Equal(t, 0, tup.GetInt("a"))
	require.Equal(t, "dflt", tup.GetOrDefault("a", "dflt"))
}

func TestPartitionKeyAttachment(t *testing.T) {
	tup := Of("k", 1)
	_, ok := tup.PartitionKey()
	require.False(t, ok)

	key := NewPartitionKey("1", 123)
	tup.AttachPartitionKey(key)
	other := NewTuple()
	tup.CopyPartitionTo(other)
	attached, ok := other.PartitionKey()
	require.True(t, ok)
	require.Equal(t, key, attached)
	require.Equal(t, uint32(123), attached.Hash())

	cp := tup.Copy()
	cp.Set("k", 2)
	require.Equal(t, 1, tup.GetInt("k"))
	cpKey, _ := cp.PartitionKey()
	require.Equal(t, key, cpKey)
}

func TestTuplesClearKeepsPorts(t *testing.T) {
	tuples := NewTuples(2)
	tuples.Add(0, Of("a", 1), Of("a", 2))
	tuples.Add(1, Of("b", 1))
	require.Equal(t, 3, tuples.TotalCount())
	require.Equal(t, 2, tuples.NonEmptyPortCount())
	require.False(t, tuples.IsEmpty())

	tuples.Clear()
	require.True(t, tuples.IsEmpty())
	require.Equal(t, 2, tuples.PortCount())
}

func TestSuppliers(t *testing.T) {
	cached := NewCachedSupplier(1)
	t1 := cached.Get()
	t1.Add(0, Of("a", 1))
	t2 := cached.Get()
	require.Same(t, t1, t2)
	require.True(t, t2.IsEmpty())

	nonCached := NewNonCachedSupplier(1)
	n1 := nonCached.Get()
	n1.Add(0, Of("a", 1))
	n2 := nonCached.Get()
	require.NotSame(t, n1, n2)
	require.Equal(t, 1, n1.TupleCount(0))
}
