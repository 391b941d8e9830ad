// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package muxdb

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	bloomfilter "github.com/holiman/bloomfilter/v2"
	"github.com/pkg/errors"

	"github.com/helix-chain/helix/co"
	"github.com/helix-chain/helix/helix"
)

const (
	// bloom dimensioning for the layer set. False positives only cost a
	// chain walk, so a small filter is enough.
	bloomMaxEntries = 1_000_000
	bloomFPRate     = 0.02

	// accounting overhead per stored entry when estimating layer memory.
	entryOverhead = 32
)

// layer is one immutable state diff. It holds every trie node written by
// the transition from parent to root, keyed by the node's engine key.
type layer struct {
	id     uint64
	root   helix.Bytes32
	parent helix.Bytes32
	nodes  map[string][]byte
	leaves map[string][]byte
	size   uint64
}

func (l *layer) estimateSize() uint64 {
	var n uint64
	for k, v := range l.nodes {
		n += uint64(len(k)+len(v)) + entryOverhead
	}
	for k, v := range l.leaves {
		n += uint64(len(k)+len(v)) + entryOverhead
	}
	return n
}

// layerSet is an immutable snapshot of all live layers. Readers load the
// current set once and keep using it; the writer replaces the whole set
// atomically. The bloom filter spans the node keys of every layer and
// short-circuits definite misses before the chain walk.
type layerSet struct {
	byRoot map[helix.Bytes32]*layer
	bloom  *bloomfilter.Filter
	size   uint64
}

// layerMap manages the chain of diff layers on top of the durable engine.
// Mutations are serialized by mu and published with copy-then-swap, so
// readers never block.
type layerMap struct {
	cur      atomic.Pointer[layerSet]
	mu       sync.Mutex
	nextID   uint64
	maxCount int
	maxBytes uint64
}

func newLayerMap(maxCount int, maxBytes uint64) *layerMap {
	lm := &layerMap{
		maxCount: maxCount,
		maxBytes: maxBytes,
	}
	bloom, _ := bloomfilter.NewOptimal(bloomMaxEntries, bloomFPRate)
	lm.cur.Store(&layerSet{
		byRoot: make(map[helix.Bytes32]*layer),
		bloom:  bloom,
	})
	return lm
}

// bloomHash adapts a precomputed 64-bit key digest to the hash.Hash64
// interface the bloom filter consumes.
type bloomHash uint64

func (h bloomHash) Write(p []byte) (int, error) { panic("not implemented") }
func (h bloomHash) Sum(b []byte) []byte         { panic("not implemented") }
func (h bloomHash) Reset()                      { panic("not implemented") }
func (h bloomHash) BlockSize() int              { panic("not implemented") }
func (h bloomHash) Size() int                   { return 8 }
func (h bloomHash) Sum64() uint64               { return uint64(h) }

func bloomKey(key []byte) bloomHash {
	h := fnv.New64a()
	h.Write(key)
	return bloomHash(h.Sum64())
}

// put adds a new layer resulting from the transition parent -> root.
// A transition that does not change the root is a no-op. Adding a second
// layer with the same resulting root is a defect in the caller.
func (lm *layerMap) put(parent, root helix.Bytes32, nodes, leaves map[string][]byte) error {
	if parent == root {
		return nil
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()

	cur := lm.cur.Load()
	if _, dup := cur.byRoot[root]; dup {
		return errors.Errorf("layer %v already exists", root)
	}

	lm.nextID++
	l := &layer{
		id:     lm.nextID,
		root:   root,
		parent: parent,
		nodes:  nodes,
		leaves: leaves,
	}
	l.size = l.estimateSize()

	next := &layerSet{
		byRoot: make(map[helix.Bytes32]*layer, len(cur.byRoot)+1),
		bloom:  cur.bloom, // add-only, safe to share until rebuilt
		size:   cur.size + l.size,
	}
	for r, ol := range cur.byRoot {
		next.byRoot[r] = ol
	}
	next.byRoot[root] = l
	for k := range nodes {
		next.bloom.Add(bloomKey([]byte(k)))
	}
	lm.cur.Store(next)
	metricLayerCount().Set(int64(len(next.byRoot)))
	return nil
}

// get looks key up in the chain starting at head, newest first.
func (lm *layerMap) get(head helix.Bytes32, key []byte) ([]byte, bool) {
	cur := lm.cur.Load()
	if len(cur.byRoot) == 0 {
		return nil, false
	}
	if !cur.bloom.Contains(bloomKey(key)) {
		metricBloomMiss().Add(1)
		return nil, false
	}
	for {
		l, ok := cur.byRoot[head]
		if !ok {
			return nil, false
		}
		if blob, has := l.nodes[string(key)]; has {
			return blob, true
		}
		head = l.parent
	}
}

// chain returns the layers reachable from head, oldest first.
func (lm *layerMap) chain(head helix.Bytes32) []*layer {
	cur := lm.cur.Load()
	var rev []*layer
	for {
		l, ok := cur.byRoot[head]
		if !ok {
			break
		}
		rev = append(rev, l)
		head = l.parent
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// committable reports the root of the oldest layer of head's chain when the
// chain has outgrown the layer count or memory threshold.
func (lm *layerMap) committable(head helix.Bytes32) (helix.Bytes32, bool) {
	chain := lm.chain(head)
	if len(chain) == 0 {
		return helix.Bytes32{}, false
	}
	var size uint64
	for _, l := range chain {
		size += l.size
	}
	if len(chain) > lm.maxCount || size > lm.maxBytes {
		return chain[0].root, true
	}
	return helix.Bytes32{}, false
}

// prune removes every layer with id <= topID and rebuilds the bloom filter
// over the survivors. Called after the removed layers are durably written.
func (lm *layerMap) prune(topID uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	cur := lm.cur.Load()
	bloom, _ := bloomfilter.NewOptimal(bloomMaxEntries, bloomFPRate)
	next := &layerSet{
		byRoot: make(map[helix.Bytes32]*layer),
		bloom:  bloom,
	}
	for r, l := range cur.byRoot {
		if l.id > topID {
			next.byRoot[r] = l
			next.size += l.size
		}
	}
	// the filter is thread-safe, rebuild it with all cores
	var kept []*layer
	for _, l := range next.byRoot {
		kept = append(kept, l)
	}
	co.Parallel(0, func(enqueue co.Enqueue) {
		for _, l := range kept {
			l := l
			enqueue(func() {
				for k := range l.nodes {
					bloom.Add(bloomKey([]byte(k)))
				}
			})
		}
	})
	lm.cur.Store(next)
	metricLayerCount().Set(int64(len(next.byRoot)))
}

// count returns the number of live layers.
func (lm *layerMap) count() int {
	return len(lm.cur.Load().byRoot)
}
