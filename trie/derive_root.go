// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"github.com/qianbin/drlp"

	"github.com/helix-chain/helix/helix"
)

// DerivableList is the interface of a list whose root hash can be derived.
type DerivableList interface {
	Len() int
	GetRlp(i int) []byte
}

// DeriveRoot derives the root hash of a list, by building an in-memory
// trie keyed by the RLP-encoded list index.
func DeriveRoot(list DerivableList) helix.Bytes32 {
	var (
		t   Trie
		key []byte
	)
	for i := 0; i < list.Len(); i++ {
		key = drlp.AppendUint(key[:0], uint64(i))
		_ = t.Update(key, list.GetRlp(i), nil)
	}
	return t.Hash()
}
