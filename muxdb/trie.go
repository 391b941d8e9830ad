// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package muxdb

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/trie"
)

// nodeKey builds the engine key of a trie node: space, vp-coded trie name,
// packed nibble path. The root node sits at the empty path.
func nodeKey(name string, path []byte) []byte {
	buf := make([]byte, 0, 2+len(name)+len(path)/2+2)
	buf = append(buf, trieNodeSpace)
	buf = binary.AppendUvarint(buf, uint64(len(name)))
	buf = append(buf, name...)
	return appendPackedPath(buf, path)
}

// appendPackedPath packs nibbles two per byte with an unambiguous tail:
// an odd path ends with 0x10|nibble, an even one with 0x20.
func appendPackedPath(buf, path []byte) []byte {
	for i := 0; i+1 < len(path); i += 2 {
		buf = append(buf, path[i]<<4|path[i+1])
	}
	if len(path)%2 != 0 {
		return append(buf, 0x10|path[len(path)-1])
	}
	return append(buf, 0x20)
}

// leafKey builds the engine key of a leaf table entry.
func leafKey(name string, key []byte) []byte {
	buf := make([]byte, 0, 2+len(name)+len(key))
	buf = append(buf, trieLeafSpace)
	buf = binary.AppendUvarint(buf, uint64(len(name)))
	buf = append(buf, name...)
	return append(buf, key...)
}

func encodeLeaf(value, meta []byte) []byte {
	buf := binary.AppendUvarint(nil, uint64(len(value)))
	buf = append(buf, value...)
	buf = binary.AppendUvarint(buf, uint64(len(meta)))
	return append(buf, meta...)
}

func decodeLeaf(blob []byte) (value, meta []byte, ok bool) {
	n, i := binary.Uvarint(blob)
	if i <= 0 || uint64(len(blob)-i) < n {
		return nil, nil, false
	}
	value, blob = blob[i:i+int(n)], blob[i+int(n):]
	n, i = binary.Uvarint(blob)
	if i <= 0 || uint64(len(blob)-i) < n {
		return nil, nil, false
	}
	meta = blob[i : i+int(n)]
	if len(meta) == 0 {
		meta = nil
	}
	if len(value) == 0 {
		value = nil
	}
	return value, meta, true
}

// resolver reads trie nodes through the layer chain, the node cache and
// finally the durable engine. It also encodes node storage keys.
type resolver struct {
	db      *MuxDB
	name    string
	head    helix.Bytes32 // chain walk starts at the handle's root
	rootKey []byte        // engine key of the root node
}

func newResolver(db *MuxDB, name string, head helix.Bytes32) *resolver {
	return &resolver{db, name, head, nodeKey(name, nil)}
}

func (r *resolver) Encode(hash, path []byte) []byte {
	return nodeKey(r.name, path)
}

func (r *resolver) Get(key []byte) ([]byte, error) {
	if blob, ok := r.db.layers.get(r.head, key); ok {
		return blob, nil
	}
	if bytes.Equal(key, r.rootKey) {
		// root node, try the root blob cache
		if blob := r.db.cache.GetRootBlob(r.name, r.head); blob != nil {
			return blob, nil
		}
	}
	if blob := r.db.cache.GetNodeBlob(key); blob != nil {
		return blob, nil
	}
	blob, err := r.db.engine.Get(key)
	if err != nil {
		if r.db.engine.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	r.db.cache.AddNodeBlob(key, blob)
	return blob, nil
}

// LayerBuilder gathers the nodes and leaves written by trie commits into
// the maps of one pending layer. Several tries (the account trie and the
// storage tries touched by a batch) commit into the same builder, so the
// whole state transition lands in a single layer. Safe for the concurrent
// writes of sharded commits.
type LayerBuilder struct {
	db     *MuxDB
	mu     sync.Mutex
	nodes  map[string][]byte
	leaves map[string][]byte
}

// NewLayerBuilder creates an empty layer builder.
func (db *MuxDB) NewLayerBuilder() *LayerBuilder {
	return &LayerBuilder{
		db:     db,
		nodes:  make(map[string][]byte),
		leaves: make(map[string][]byte),
	}
}

// Seal publishes the collected writes as the diff layer of the transition
// parent -> root. The builder must not be reused afterwards.
func (b *LayerBuilder) Seal(parent, root helix.Bytes32) error {
	return b.db.layers.put(parent, root, b.nodes, b.leaves)
}

// collector adapts a LayerBuilder to the trie's writer interface for one
// named trie.
type collector struct {
	name string
	b    *LayerBuilder
}

func (c *collector) Encode(hash, path []byte) []byte {
	return nodeKey(c.name, path)
}

func (c *collector) Put(key, val []byte) error {
	c.b.mu.Lock()
	c.b.nodes[string(key)] = append([]byte(nil), val...)
	c.b.mu.Unlock()
	return nil
}

func (c *collector) PutLeaf(key, value, meta []byte) error {
	c.b.mu.Lock()
	c.b.leaves[string(leafKey(c.name, key))] = encodeLeaf(value, meta)
	c.b.mu.Unlock()
	return nil
}

// Trie is a managed trie handle bound to a name and a root. Reads resolve
// through the layer chain before touching the durable engine; Commit
// produces a new diff layer instead of writing through.
//
// The head is where the layer chain walk starts. For a standalone trie it
// equals the root; a storage trie passes the state root of the layer its
// nodes were committed under.
//
// Not safe for concurrent use.
type Trie struct {
	db    *MuxDB
	name  string
	root  helix.Bytes32
	head  helix.Bytes32
	dirty bool

	init func() (*trie.Trie, error)
}

func newTrie(db *MuxDB, name string, root, head helix.Bytes32) *Trie {
	var (
		tr  *trie.Trie
		err error
	)
	t := &Trie{
		db:   db,
		name: name,
		root: root,
		head: head,
	}
	t.init = func() (*trie.Trie, error) {
		if tr == nil && err == nil {
			tr, err = trie.New(root, newResolver(db, name, head))
		}
		return tr, err
	}
	return t
}

// Name returns the name of the trie.
func (t *Trie) Name() string { return t.name }

// Get returns the value and metadata for key stored in the trie.
//
// A clean handle opened at the engine's flushed head first consults the
// leaf table and skips the node walk on a hit.
func (t *Trie) Get(key []byte) (val, meta []byte, err error) {
	if !t.dirty && t.head == t.db.FlushedHead() {
		blob, err := t.db.engine.Get(leafKey(t.name, key))
		if err == nil && len(blob) > 0 {
			if value, meta, ok := decodeLeaf(blob); ok {
				return value, meta, nil
			}
		} else if err != nil && !t.db.engine.IsNotFound(err) {
			return nil, nil, err
		}
	}
	tr, err := t.init()
	if err != nil {
		return nil, nil, err
	}
	return tr.Get(key)
}

// Update associates key with value and metadata in the trie.
// An empty value deletes the key.
func (t *Trie) Update(key, value, meta []byte) error {
	tr, err := t.init()
	if err != nil {
		return err
	}
	t.dirty = true
	return tr.Update(key, value, meta)
}

// BatchUpdate applies updates with up to shards concurrent workers,
// partitioned by the first nibble of the key.
func (t *Trie) BatchUpdate(updates []trie.Update, shards int) error {
	tr, err := t.init()
	if err != nil {
		return err
	}
	t.dirty = true
	return tr.BatchUpdate(updates, shards)
}

// Hash returns the root hash of the trie.
func (t *Trie) Hash() helix.Bytes32 {
	tr, err := t.init()
	if err != nil {
		return t.root
	}
	return tr.Hash()
}

// Root returns the root the handle currently tracks. It reflects the last
// Commit or CommitTo, not uncommitted updates; use Hash for those.
func (t *Trie) Root() helix.Bytes32 { return t.root }

// CommitTo hashes all dirty nodes and writes them into the given layer
// builder. Several tries may commit into one builder so that a whole state
// transition lands in a single diff layer; the caller seals the builder
// once all of them are done. The handle then tracks the new root.
func (t *Trie) CommitTo(b *LayerBuilder, shards int) (helix.Bytes32, error) {
	tr, err := t.init()
	if err != nil {
		return helix.Bytes32{}, err
	}
	newRoot, err := tr.CommitBatch(&collector{t.name, b}, shards)
	if err != nil {
		return helix.Bytes32{}, err
	}
	b.mu.Lock()
	blob, has := b.nodes[string(nodeKey(t.name, nil))]
	b.mu.Unlock()
	if has {
		t.db.cache.AddRootBlob(t.name, newRoot, blob)
	}
	if t.head == t.root {
		t.head = newRoot
	}
	t.root = newRoot
	t.dirty = false
	return newRoot, nil
}

// Commit commits the trie into a diff layer of its own. Nothing hits the
// durable engine until the layer is flushed by CommitLayers.
func (t *Trie) Commit(shards int) (helix.Bytes32, error) {
	parent := t.root
	b := t.db.NewLayerBuilder()
	newRoot, err := t.CommitTo(b, shards)
	if err != nil {
		return helix.Bytes32{}, err
	}
	if err := b.Seal(parent, newRoot); err != nil {
		return helix.Bytes32{}, err
	}
	return newRoot, nil
}
