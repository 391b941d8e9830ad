// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package tx defines the transaction and receipt types of the execution
// core.
package tx

import (
	"errors"
	"io"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/trie"
)

var (
	errIntrinsicGasOverflow = errors.New("intrinsic gas overflow")
)

// Transaction is an immutable transaction.
type Transaction struct {
	body body

	cache struct {
		signingHash atomic.Value
		hash        atomic.Value
		sender      atomic.Value
	}
}

// body describes the details of a transaction.
type body struct {
	ChainID    uint64
	Nonce      uint64
	GasPrice   *big.Int
	Gas        uint64
	To         *helix.Address `rlp:"nil"`
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	Signature  []byte
}

// ChainID returns the chain id the tx is bound to.
func (t *Transaction) ChainID() uint64 { return t.body.ChainID }

// Nonce returns the sender nonce.
func (t *Transaction) Nonce() uint64 { return t.body.Nonce }

// GasPrice returns the gas price.
func (t *Transaction) GasPrice() *big.Int { return new(big.Int).Set(t.body.GasPrice) }

// Gas returns the gas provision for this tx.
func (t *Transaction) Gas() uint64 { return t.body.Gas }

// To returns the recipient, or nil for a contract creation.
func (t *Transaction) To() *helix.Address {
	if t.body.To == nil {
		return nil
	}
	cpy := *t.body.To
	return &cpy
}

// Value returns the amount transferred.
func (t *Transaction) Value() *big.Int { return new(big.Int).Set(t.body.Value) }

// Data returns the input data.
func (t *Transaction) Data() []byte { return append([]byte(nil), t.body.Data...) }

// AccessList returns the declared access list.
func (t *Transaction) AccessList() AccessList { return t.body.AccessList.Copy() }

// Signature returns the 65-byte signature.
func (t *Transaction) Signature() []byte {
	return append([]byte(nil), t.body.Signature...)
}

// Hash returns the transaction hash.
func (t *Transaction) Hash() (hash helix.Bytes32) {
	if cached := t.cache.hash.Load(); cached != nil {
		return cached.(helix.Bytes32)
	}
	defer func() { t.cache.hash.Store(hash) }()

	return helix.Keccak256Fn(func(w io.Writer) {
		_ = rlp.Encode(w, &t.body)
	})
}

// SigningHash returns the hash of the tx excluding the signature.
func (t *Transaction) SigningHash() (hash helix.Bytes32) {
	if cached := t.cache.signingHash.Load(); cached != nil {
		return cached.(helix.Bytes32)
	}
	defer func() { t.cache.signingHash.Store(hash) }()

	return helix.Keccak256Fn(func(w io.Writer) {
		_ = rlp.Encode(w, []any{
			t.body.ChainID,
			t.body.Nonce,
			t.body.GasPrice,
			t.body.Gas,
			t.body.To,
			t.body.Value,
			t.body.Data,
			t.body.AccessList,
		})
	})
}

// Sender recovers the sender address from the signature.
func (t *Transaction) Sender() (helix.Address, error) {
	if cached := t.cache.sender.Load(); cached != nil {
		return cached.(helix.Address), nil
	}
	if len(t.body.Signature) != 65 {
		return helix.Address{}, errors.New("invalid signature length")
	}
	signingHash := t.SigningHash()
	pub, err := crypto.SigToPub(signingHash[:], t.body.Signature)
	if err != nil {
		return helix.Address{}, err
	}
	sender := helix.Address(crypto.PubkeyToAddress(*pub))
	t.cache.sender.Store(sender)
	return sender, nil
}

// WithSignature creates a new tx with the signature set.
func (t *Transaction) WithSignature(sig []byte) *Transaction {
	newTx := Transaction{body: t.body}
	newTx.body.Signature = append([]byte(nil), sig...)
	return &newTx
}

// IntrinsicGas returns the gas charged before any bytecode runs.
func (t *Transaction) IntrinsicGas() (uint64, error) {
	return IntrinsicGas(t.body.Data, t.body.AccessList, t.body.To == nil)
}

// IntrinsicGas computes the intrinsic gas of a call with the given payload.
func IntrinsicGas(data []byte, accessList AccessList, isCreate bool) (uint64, error) {
	var gas uint64
	if isCreate {
		gas = helix.TxGasContractCreation
	} else {
		gas = helix.TxGas
	}

	if len(data) > 0 {
		var nz uint64
		for _, b := range data {
			if b != 0 {
				nz++
			}
		}
		if (gasMaxValue-gas)/helix.TxDataNonZeroGas < nz {
			return 0, errIntrinsicGasOverflow
		}
		gas += nz * helix.TxDataNonZeroGas

		z := uint64(len(data)) - nz
		if (gasMaxValue-gas)/helix.TxDataZeroGas < z {
			return 0, errIntrinsicGasOverflow
		}
		gas += z * helix.TxDataZeroGas
	}
	for _, tuple := range accessList {
		gas += helix.TxAccessListAddressGas
		gas += uint64(len(tuple.StorageKeys)) * helix.TxAccessListStorageKeyGas
	}
	return gas, nil
}

const gasMaxValue = uint64(1<<64 - 1)

// EncodeRLP implements rlp.Encoder.
func (t *Transaction) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &t.body)
}

// DecodeRLP implements rlp.Decoder.
func (t *Transaction) DecodeRLP(s *rlp.Stream) error {
	var body body
	if err := s.Decode(&body); err != nil {
		return err
	}
	*t = Transaction{body: body}
	return nil
}

// Transactions is a slice of transactions.
type Transactions []*Transaction

// RootHash computes the merkle root hash of the transactions.
func (txs Transactions) RootHash() helix.Bytes32 {
	return trie.DeriveRoot(txs)
}

// Len implements trie.DerivableList.
func (txs Transactions) Len() int { return len(txs) }

// GetRlp implements trie.DerivableList.
func (txs Transactions) GetRlp(i int) []byte {
	data, err := rlp.EncodeToBytes(txs[i])
	if err != nil {
		panic(err)
	}
	return data
}
