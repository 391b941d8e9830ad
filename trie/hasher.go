// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"hash"
	"sync"

	"github.com/helix-chain/helix/helix"
)

type hasher struct {
	tmp []byte // consensus encoding scratch
	enc []byte // persisted encoding scratch
	sha hash.Hash
}

// hashers live in a global pool.
var hasherPool = sync.Pool{
	New: func() any {
		return &hasher{
			tmp: make([]byte, 0, 550), // cap is as large as a full fullNode.
			sha: helix.NewKeccak(),
		}
	},
}

func newHasher() *hasher {
	return hasherPool.Get().(*hasher)
}

func returnHasherToPool(h *hasher) {
	hasherPool.Put(h)
}

// hash collapses a node down into a hash node, also returning a copy of the
// original node initialized with the computed hash to replace the original one.
func (h *hasher) hash(n node, db DatabaseWriter, path []byte, force bool) (node, node, error) {
	// If we're not storing the node, just hashing, use available cached data
	if hash, dirty := n.cache(); hash != nil {
		if db == nil {
			return hash, n, nil
		}
		if !dirty {
			return hash, hash, nil
		}
	}
	// Trie not processed yet or needs storage, walk the children
	collapsed, cached, err := h.hashChildren(n, db, path)
	if err != nil {
		return nil, n, err
	}
	hashed, err := h.store(collapsed, db, path, force)
	if err != nil {
		return nil, n, err
	}
	// Cache the hash of the node for later reuse and remove
	// the dirty flag in commit mode. It's fine to assign these values directly
	// without copying the node first because hashChildren copies it.
	cachedHash, _ := hashed.(*hashNode)
	switch cn := cached.(type) {
	case *shortNode:
		cn.flags.hash = cachedHash
		if db != nil {
			cn.flags.dirty = false
		}
	case *fullNode:
		cn.flags.hash = cachedHash
		if db != nil {
			cn.flags.dirty = false
		}
	}
	return hashed, cached, nil
}

// hashChildren replaces the children of a node with their hashes if the encoded
// size of the child is larger than a hash, returning the collapsed node as well
// as a replacement for the original node with the child hashes cached in.
func (h *hasher) hashChildren(original node, db DatabaseWriter, path []byte) (node, node, error) {
	var err error

	switch n := original.(type) {
	case *shortNode:
		// Hash the short node's child, caching the newly hashed subtree
		collapsed, cached := n.copy(), n.copy()
		collapsed.Key = hexToCompact(n.Key)
		cached.Key = append([]byte(nil), n.Key...)

		if _, ok := n.Val.(*valueNode); !ok {
			collapsed.Val, cached.Val, err = h.hash(n.Val, db, append(path, n.Key...), false)
			if err != nil {
				return original, original, err
			}
		}
		return collapsed, cached, nil

	case *fullNode:
		// Hash the full node's children, caching the newly hashed subtrees
		collapsed, cached := n.copy(), n.copy()

		for i := 0; i < 16; i++ {
			if n.Children[i] != nil {
				collapsed.Children[i], cached.Children[i], err = h.hash(n.Children[i], db, append(path, byte(i)), false)
				if err != nil {
					return original, original, err
				}
			}
		}
		cached.Children[16] = n.Children[16]
		return collapsed, cached, nil

	default:
		// Value and hash nodes don't have children so they're left as were
		return n, original, nil
	}
}

// store writes the collapsed node to db when its consensus encoding reaches
// hash size, replacing it with its hash node. Smaller nodes embed in their
// parent. The root node (force) is always stored.
func (h *hasher) store(n node, db DatabaseWriter, path []byte, force bool) (node, error) {
	// Don't store hashes or empty nodes.
	if _, isHash := n.(*hashNode); n == nil || isHash {
		return n, nil
	}
	if db != nil {
		if lw, ok := db.(DatabaseLeafPutter); ok {
			if err := h.putLeaf(n, lw, path); err != nil {
				return nil, err
			}
		}
	}
	// Generate the consensus encoding of the node
	h.tmp = n.encodeConsensus(h.tmp[:0])

	if len(h.tmp) < 32 && !force {
		return n, nil // Nodes smaller than 32 bytes are stored inside their parent
	}
	// Larger nodes are replaced by their hash and stored in the database.
	hash, _ := n.cache()
	if hash == nil {
		h.sha.Reset()
		h.sha.Write(h.tmp)
		hash = &hashNode{hash: h.sha.Sum(nil)}
	}
	if db != nil {
		h.enc = encodeNode(h.enc[:0], n)
		key := hash.hash
		if ke, ok := db.(DatabaseKeyEncoder); ok {
			key = ke.Encode(hash.hash, path)
		}
		return hash, db.Put(key, h.enc)
	}
	return hash, nil
}

// putLeaf feeds the leaf under the collapsed node, if any, to the leaf table.
// It sees every dirty node on the store walk, including ones that will embed
// in their parent, so no changed leaf is missed.
func (h *hasher) putLeaf(n node, lw DatabaseLeafPutter, path []byte) error {
	switch n := n.(type) {
	case *shortNode:
		if vn, ok := n.Val.(*valueNode); ok {
			full := append(append([]byte(nil), path...), compactToHex(n.Key)...)
			return lw.PutLeaf(hexToKeybytes(full), vn.value, vn.meta)
		}
	case *fullNode:
		if vn, ok := n.Children[16].(*valueNode); ok {
			return lw.PutLeaf(hexToKeybytes(path), vn.value, vn.meta)
		}
	}
	return nil
}
