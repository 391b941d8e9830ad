// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/muxdb"
)

// Account is the consensus representation of an account.
// RLP encoded objects are stored in the main account trie, keyed by the
// keccak hash of the address. StorageRoot and CodeHash are kept nil in
// memory when they hold the well-known empty hashes.
type Account struct {
	Nonce       uint64
	Balance     *big.Int
	StorageRoot []byte // merkle root of the storage trie
	CodeHash    []byte // hash of code
}

// IsEmpty returns if an account is empty.
// An empty account has zero nonce, zero balance and no code.
func (a *Account) IsEmpty() bool {
	return a.Nonce == 0 &&
		a.Balance.Sign() == 0 &&
		len(a.CodeHash) == 0
}

func emptyAccount() *Account {
	return &Account{Balance: &big.Int{}}
}

// loadAccount loads an account object by address from the trie.
// It returns an empty account if no account found at the address.
func loadAccount(trie *muxdb.Trie, addr helix.Address) (*Account, error) {
	data, _, err := trie.Get(helix.Keccak256(addr[:]).Bytes())
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return emptyAccount(), nil
	}
	var a Account
	if err := rlp.DecodeBytes(data, &a); err != nil {
		return nil, err
	}
	if helix.BytesToBytes32(a.StorageRoot) == helix.EmptyRootHash() {
		a.StorageRoot = nil
	}
	if helix.BytesToBytes32(a.CodeHash) == helix.EmptyCodeHash() {
		a.CodeHash = nil
	}
	return &a, nil
}

// saveAccount saves the account into the trie at the given address, with
// the address preimage as leaf metadata. An empty account is deleted.
func saveAccount(trie *muxdb.Trie, addr helix.Address, a *Account) error {
	key := helix.Keccak256(addr[:]).Bytes()
	if a.IsEmpty() {
		return trie.Update(key, nil, nil)
	}

	cpy := *a
	if len(cpy.StorageRoot) == 0 {
		cpy.StorageRoot = helix.EmptyRootHash().Bytes()
	}
	if len(cpy.CodeHash) == 0 {
		cpy.CodeHash = helix.EmptyCodeHash().Bytes()
	}
	data, err := rlp.EncodeToBytes(&cpy)
	if err != nil {
		return err
	}
	return trie.Update(key, data, addr[:])
}

// loadStorage loads the storage value for the given key.
func loadStorage(trie *muxdb.Trie, key helix.Bytes32) (rlp.RawValue, error) {
	v, _, err := trie.Get(helix.Keccak256(key[:]).Bytes())
	return v, err
}

// saveStorage saves the value for the given key, with the key preimage as
// leaf metadata. A zero-length value deletes the key.
func saveStorage(trie *muxdb.Trie, key helix.Bytes32, data rlp.RawValue) error {
	return trie.Update(
		helix.Keccak256(key[:]).Bytes(),
		data,
		key[:],
	)
}
