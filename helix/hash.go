// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package helix

import (
	"hash"
	"io"
	"sync"

	"golang.org/x/crypto/sha3"
)

// NewKeccak returns a new keccak256 hash state.
func NewKeccak() hash.Hash {
	return sha3.NewLegacyKeccak256()
}

// Keccak256 computes keccak256 checksum for given data.
func Keccak256(data ...[]byte) Bytes32 {
	return Keccak256Fn(func(w io.Writer) {
		for _, b := range data {
			w.Write(b)
		}
	})
}

// Keccak256Fn computes keccak256 checksum for the provided writer.
func Keccak256Fn(fn func(w io.Writer)) (h Bytes32) {
	s := keccakStatePool.Get().(*keccakState)
	fn(s)
	s.Sum(s.b32[:0])
	h = s.b32 // to avoid 1 alloc
	s.Reset()
	keccakStatePool.Put(s)
	return
}

type keccakState struct {
	hash.Hash
	b32 Bytes32
}

var keccakStatePool = sync.Pool{
	New: func() any {
		return &keccakState{Hash: NewKeccak()}
	},
}

var (
	emptyRoot     Bytes32
	emptyCodeHash Bytes32
	initHashes    sync.Once
)

func computeWellKnownHashes() {
	// keccak256(rlp(""))
	emptyRoot = Keccak256([]byte{0x80})
	emptyCodeHash = Keccak256(nil)
}

// EmptyRootHash is the root of an empty trie, keccak256(rlp("")).
func EmptyRootHash() Bytes32 {
	initHashes.Do(computeWellKnownHashes)
	return emptyRoot
}

// EmptyCodeHash is keccak256 of empty code.
func EmptyCodeHash() Bytes32 {
	initHashes.Do(computeWellKnownHashes)
	return emptyCodeHash
}
