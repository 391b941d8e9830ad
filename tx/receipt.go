// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/trie"
)

// Receipt statuses.
const (
	StatusFailed    uint64 = 0
	StatusSucceeded uint64 = 1
)

// Log is an event emitted by executed code.
type Log struct {
	Address helix.Address
	Topics  []helix.Bytes32
	Data    []byte
}

// Receipt represents the result of a transaction.
type Receipt struct {
	// status of tx execution
	Status uint64
	// gas used by this tx
	GasUsed uint64
	// total gas used in the block up to and including this tx
	CumulativeGasUsed uint64
	// logs produced
	Logs []*Log
	// address of the created contract, if any
	ContractAddress *helix.Address `rlp:"nil"`
}

// Failed reports whether the tx was reverted or halted.
func (r *Receipt) Failed() bool { return r.Status == StatusFailed }

// Receipts is a slice of receipts.
type Receipts []*Receipt

// RootHash computes the merkle root hash of the receipts.
func (rs Receipts) RootHash() helix.Bytes32 {
	return trie.DeriveRoot(rs)
}

// Len implements trie.DerivableList.
func (rs Receipts) Len() int { return len(rs) }

// GetRlp implements trie.DerivableList.
func (rs Receipts) GetRlp(i int) []byte {
	data, err := rlp.EncodeToBytes(rs[i])
	if err != nil {
		panic(err)
	}
	return data
}
