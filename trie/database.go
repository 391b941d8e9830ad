// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

// DatabaseReader wraps the Get method of a backing store for the trie.
type DatabaseReader interface {
	Get(key []byte) (value []byte, err error)
}

// DatabaseWriter wraps the Put method of a backing store for the trie.
type DatabaseWriter interface {
	// Put stores the mapping key->value in the store.
	// Implementations must not hold onto the value bytes, the trie
	// will reuse the slice across calls to Put.
	Put(key, value []byte) error
}

// Database must be implemented by backing stores for the trie.
type Database interface {
	DatabaseReader
}

// DatabaseKeyEncoder defines the method Encode to customize storage keys.
// Stores that key nodes by path instead of by hash implement it.
type DatabaseKeyEncoder interface {
	Encode(hash []byte, path []byte) []byte
}

// DatabaseLeafPutter is implemented by writers that maintain a leaf table
// next to the node store. The hasher feeds it every leaf it stores so that
// lookups can skip the node walk once the table is populated.
type DatabaseLeafPutter interface {
	PutLeaf(key, value, meta []byte) error
}
