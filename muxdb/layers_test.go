// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package muxdb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-chain/helix/helix"
)

func b32(s string) helix.Bytes32 {
	return helix.BytesToBytes32([]byte(s))
}

func nodes(kvs ...string) map[string][]byte {
	m := make(map[string][]byte)
	for i := 0; i+1 < len(kvs); i += 2 {
		m[kvs[i]] = []byte(kvs[i+1])
	}
	return m
}

func TestLayerChainShadowing(t *testing.T) {
	lm := newLayerMap(128, 1<<30)

	require.NoError(t, lm.put(helix.Bytes32{}, b32("r1"), nodes("k1", "v1", "k2", "v2"), nil))
	require.NoError(t, lm.put(b32("r1"), b32("r2"), nodes("k1", "v1'"), nil))

	// newest layer shadows its parent
	blob, ok := lm.get(b32("r2"), []byte("k1"))
	require.True(t, ok)
	assert.Equal(t, []byte("v1'"), blob)

	// untouched key falls through to the parent
	blob, ok = lm.get(b32("r2"), []byte("k2"))
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), blob)

	// a handle at the old root is isolated from the child layer
	blob, ok = lm.get(b32("r1"), []byte("k1"))
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), blob)

	// unknown keys miss
	_, ok = lm.get(b32("r2"), []byte("nope"))
	assert.False(t, ok)
}

func TestLayerNoopAndDuplicate(t *testing.T) {
	lm := newLayerMap(128, 1<<30)

	// unchanged root is a no-op
	require.NoError(t, lm.put(b32("r"), b32("r"), nodes("k", "v"), nil))
	assert.Zero(t, lm.count())

	require.NoError(t, lm.put(helix.Bytes32{}, b32("r"), nodes("k", "v"), nil))
	assert.Error(t, lm.put(helix.Bytes32{}, b32("r"), nodes("k", "v"), nil))
	assert.Equal(t, 1, lm.count())
}

func TestLayerCommittable(t *testing.T) {
	lm := newLayerMap(4, 1<<30)

	parent := helix.Bytes32{}
	var roots []helix.Bytes32
	for i := 0; i < 5; i++ {
		root := b32(fmt.Sprintf("r%d", i))
		require.NoError(t, lm.put(parent, root, nodes(fmt.Sprintf("k%d", i), "v"), nil))
		roots = append(roots, root)
		parent = root
	}

	// 4 layers within threshold
	_, ok := lm.committable(roots[3])
	assert.False(t, ok)

	// 5 layers exceed it, the oldest is reported
	oldest, ok := lm.committable(roots[4])
	require.True(t, ok)
	assert.Equal(t, roots[0], oldest)

	// memory threshold triggers independently of count
	small := newLayerMap(128, 16)
	require.NoError(t, small.put(helix.Bytes32{}, b32("big"), nodes("key", "a value larger than sixteen bytes"), nil))
	oldest, ok = small.committable(b32("big"))
	require.True(t, ok)
	assert.Equal(t, b32("big"), oldest)
}

func TestLayerPrune(t *testing.T) {
	lm := newLayerMap(128, 1<<30)

	require.NoError(t, lm.put(helix.Bytes32{}, b32("r1"), nodes("k1", "v1"), nil))
	require.NoError(t, lm.put(b32("r1"), b32("r2"), nodes("k2", "v2"), nil))
	require.NoError(t, lm.put(b32("r2"), b32("r3"), nodes("k3", "v3"), nil))

	chain := lm.chain(b32("r2"))
	require.Len(t, chain, 2)
	assert.Equal(t, b32("r1"), chain[0].root) // oldest first
	lm.prune(chain[len(chain)-1].id)

	assert.Equal(t, 1, lm.count())
	_, ok := lm.get(b32("r3"), []byte("k3"))
	assert.True(t, ok)
	// pruned layers are gone, the rebuilt bloom rejects their keys
	_, ok = lm.get(b32("r3"), []byte("k1"))
	assert.False(t, ok)
	_, ok = lm.get(b32("r2"), []byte("k2"))
	assert.False(t, ok)
}
