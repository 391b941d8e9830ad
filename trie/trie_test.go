// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-chain/helix/helix"
)

// memdb is an in-memory node store for tests. Safe for concurrent use.
type memdb struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemdb() *memdb {
	return &memdb{m: make(map[string][]byte)}
}

func (d *memdb) Get(key []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.m[string(key)], nil
}

func (d *memdb) Put(key, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[string(key)] = append([]byte(nil), value...)
	return nil
}

func TestEmptyRoot(t *testing.T) {
	var trie Trie
	assert.Equal(t, helix.EmptyRootHash(), trie.Hash())
	assert.Equal(t,
		"0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421",
		trie.Hash().String())
}

func TestKnownRootVectors(t *testing.T) {
	// canonical vectors, reproducible with any Ethereum trie; they pin
	// the consensus node encoding
	var t1 Trie
	require.NoError(t, t1.Update([]byte("doe"), []byte("reindeer"), nil))
	require.NoError(t, t1.Update([]byte("dog"), []byte("puppy"), nil))
	require.NoError(t, t1.Update([]byte("dogglesworth"), []byte("cat"), nil))
	assert.Equal(t,
		"0x8aad789dff2f538bca5d8ea56e8abe10f4c7ba3a5dea95fea4cd6e7c3a1168d3",
		t1.Hash().String())

	var t2 Trie
	require.NoError(t, t2.Update([]byte("A"),
		[]byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), nil))
	assert.Equal(t,
		"0xd23786fb4a010da3ce639d66d5e904a11dbc02746d1ce25029e53290cabf28ab",
		t2.Hash().String())
}

func TestInsertOrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var kvs [][2][]byte
	for i := 0; i < 200; i++ {
		key := make([]byte, 32)
		val := make([]byte, 1+rng.Intn(60))
		rng.Read(key)
		rng.Read(val)
		kvs = append(kvs, [2][]byte{key, val})
	}

	var t1, t2 Trie
	for _, kv := range kvs {
		require.NoError(t, t1.Update(kv[0], kv[1], nil))
	}
	perm := rng.Perm(len(kvs))
	for _, i := range perm {
		require.NoError(t, t2.Update(kvs[i][0], kvs[i][1], nil))
	}
	assert.Equal(t, t1.Hash(), t2.Hash())
}

func TestDeleteRestoresRoot(t *testing.T) {
	var with, without Trie

	require.NoError(t, without.Update([]byte{0xAB}, []byte("b"), nil))

	require.NoError(t, with.Update([]byte{0xAA}, []byte("a"), nil))
	require.NoError(t, with.Update([]byte{0xAB}, []byte("b"), nil))
	require.NoError(t, with.Update([]byte{0xAA}, nil, nil)) // empty value deletes

	assert.Equal(t, without.Hash(), with.Hash())

	val, _, err := with.Get([]byte{0xAA})
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestCommitReload(t *testing.T) {
	db := newMemdb()
	trie, err := New(helix.Bytes32{}, db)
	require.NoError(t, err)

	kvs := map[string]string{
		"doe":          "reindeer",
		"dog":          "puppy",
		"dogglesworth": "cat",
		"horse":        "stallion",
	}
	for k, v := range kvs {
		require.NoError(t, trie.Update([]byte(k), []byte(v), []byte{0x1}))
	}
	root, err := trie.Commit(db)
	require.NoError(t, err)

	reloaded, err := New(root, db)
	require.NoError(t, err)
	for k, v := range kvs {
		val, meta, err := reloaded.Get([]byte(k))
		require.NoError(t, err)
		assert.Equal(t, []byte(v), val)
		assert.Equal(t, []byte{0x1}, meta)
	}
	assert.Equal(t, root, reloaded.Hash())
}

func TestMissingNode(t *testing.T) {
	db := newMemdb()
	bogus := helix.BytesToBytes32([]byte("no such root"))

	_, err := New(bogus, db)
	var missing *MissingNodeError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, bogus, missing.NodeHash)
}

func TestHashMemoization(t *testing.T) {
	var trie Trie
	for i := 0; i < 50; i++ {
		require.NoError(t, trie.Update([]byte(fmt.Sprintf("key%d", i)), []byte(fmt.Sprintf("val%d", i)), nil))
	}
	h1 := trie.Hash()
	hash, dirty := trie.root.cache()
	require.NotNil(t, hash)
	assert.True(t, dirty) // dirty until committed
	assert.Equal(t, h1.Bytes(), hash.hash)

	// rehash of an unchanged trie reuses the memoized hash
	assert.Equal(t, h1, trie.Hash())

	// mutation clears the memoization and changes the root
	require.NoError(t, trie.Update([]byte("key0"), []byte("changed"), nil))
	hash, _ = trie.root.cache()
	assert.Nil(t, hash)
	assert.NotEqual(t, h1, trie.Hash())
}

func TestNodeEncodingRoundTrip(t *testing.T) {
	db := newMemdb()
	trie, err := New(helix.Bytes32{}, db)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		key := make([]byte, 32)
		rng.Read(key)
		require.NoError(t, trie.Update(key, []byte(fmt.Sprintf("value-%d", i)), []byte{byte(i)}))
	}
	root, err := trie.Commit(db)
	require.NoError(t, err)

	for key, blob := range db.m {
		n, rest, err := decodeNode(&hashNode{hash: root.Bytes()}, blob)
		require.NoError(t, err, "decode node %x", key)
		require.Empty(t, rest)

		reencoded := encodeNode(nil, collapse(n))
		assert.Equal(t, blob, reencoded)
	}
}

// collapse converts hex keys back to compact form for re-encoding.
func collapse(n node) node {
	switch n := n.(type) {
	case *shortNode:
		c := n.copy()
		c.Key = hexToCompact(n.Key)
		c.Val = collapse(n.Val)
		return c
	case *fullNode:
		c := n.copy()
		for i, child := range c.Children {
			if child != nil {
				c.Children[i] = collapse(child)
			}
		}
		return c
	default:
		return n
	}
}

func TestBatchUpdateMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var updates []Update
	for i := 0; i < 500; i++ {
		key := make([]byte, 32)
		val := make([]byte, 1+rng.Intn(40))
		rng.Read(key)
		rng.Read(val)
		updates = append(updates, Update{Key: key, Value: val})
	}

	var seq, par Trie
	for _, u := range updates {
		require.NoError(t, seq.Update(u.Key, u.Value, u.Meta))
	}
	require.NoError(t, par.BatchUpdate(updates, 16))
	assert.Equal(t, seq.Hash(), par.Hash())

	// a second batch with deletes mixed in
	var second []Update
	for i := 0; i < 250; i++ {
		second = append(second, Update{Key: updates[i].Key}) // delete
	}
	for i := 0; i < 100; i++ {
		key := make([]byte, 32)
		rng.Read(key)
		second = append(second, Update{Key: key, Value: []byte("fresh")})
	}
	for _, u := range second {
		require.NoError(t, seq.Update(u.Key, u.Value, u.Meta))
	}
	require.NoError(t, par.BatchUpdate(second, 16))
	assert.Equal(t, seq.Hash(), par.Hash())
}

func TestCommitBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	seqdb, pardb := newMemdb(), newMemdb()

	var seq, par Trie
	for i := 0; i < 300; i++ {
		key := make([]byte, 32)
		val := make([]byte, 1+rng.Intn(40))
		rng.Read(key)
		rng.Read(val)
		require.NoError(t, seq.Update(key, val, nil))
		require.NoError(t, par.Update(key, val, nil))
	}
	seqRoot, err := seq.Commit(seqdb)
	require.NoError(t, err)
	parRoot, err := par.CommitBatch(pardb, 16)
	require.NoError(t, err)
	assert.Equal(t, seqRoot, parRoot)

	// both databases hold the same node set
	assert.Equal(t, len(seqdb.m), len(pardb.m))
	reloaded, err := New(parRoot, pardb)
	require.NoError(t, err)
	assert.Equal(t, parRoot, reloaded.Hash())
}

func TestDeriveRoot(t *testing.T) {
	assert.Equal(t, helix.EmptyRootHash(), DeriveRoot(rlpList{}))
	assert.NotEqual(t, helix.EmptyRootHash(), DeriveRoot(rlpList{[]byte{0x1}, []byte{0x2}}))
}

type rlpList [][]byte

func (l rlpList) Len() int            { return len(l) }
func (l rlpList) GetRlp(i int) []byte { return l[i] }
