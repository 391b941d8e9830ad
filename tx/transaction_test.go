// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-chain/helix/helix"
)

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	to := helix.BytesToAddress([]byte("to"))
	trx := NewBuilder().
		ChainID(1).
		Nonce(3).
		GasPrice(big.NewInt(10)).
		Gas(21000).
		To(&to).
		Value(big.NewInt(100)).
		Build()

	signingHash := trx.SigningHash()
	sig, err := crypto.Sign(signingHash[:], key)
	require.NoError(t, err)

	signed := trx.WithSignature(sig)
	sender, err := signed.Sender()
	require.NoError(t, err)
	assert.Equal(t, helix.Address(crypto.PubkeyToAddress(key.PublicKey)), sender)

	// unsigned tx cannot resolve a sender
	_, err = trx.Sender()
	assert.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	to := helix.BytesToAddress([]byte("to"))
	trx := NewBuilder().
		ChainID(7).
		Nonce(1).
		GasPrice(big.NewInt(2)).
		Gas(50000).
		To(&to).
		Value(big.NewInt(3)).
		Data([]byte{0xde, 0xad}).
		AccessList(AccessList{{Address: to, StorageKeys: []helix.Bytes32{{0x01}}}}).
		Build()

	data, err := rlp.EncodeToBytes(trx)
	require.NoError(t, err)

	var decoded Transaction
	require.NoError(t, rlp.DecodeBytes(data, &decoded))
	assert.Equal(t, trx.Hash(), decoded.Hash())
	assert.Equal(t, trx.SigningHash(), decoded.SigningHash())
	assert.Equal(t, uint64(7), decoded.ChainID())
	assert.Equal(t, []byte{0xde, 0xad}, decoded.Data())
	assert.Equal(t, 1, decoded.AccessList().StorageKeyCount())
}

func TestIntrinsicGas(t *testing.T) {
	gas, err := IntrinsicGas(nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, helix.TxGas, gas)

	gas, err = IntrinsicGas(nil, nil, true)
	require.NoError(t, err)
	assert.Equal(t, helix.TxGasContractCreation, gas)

	gas, err = IntrinsicGas([]byte{0, 1, 0, 2}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, helix.TxGas+2*helix.TxDataZeroGas+2*helix.TxDataNonZeroGas, gas)

	al := AccessList{{Address: helix.Address{}, StorageKeys: make([]helix.Bytes32, 3)}}
	gas, err = IntrinsicGas(nil, al, false)
	require.NoError(t, err)
	assert.Equal(t, helix.TxGas+helix.TxAccessListAddressGas+3*helix.TxAccessListStorageKeyGas, gas)
}

func TestRootHashes(t *testing.T) {
	assert.Equal(t, helix.EmptyRootHash(), Transactions(nil).RootHash())
	assert.Equal(t, helix.EmptyRootHash(), Receipts(nil).RootHash())

	trx := NewBuilder().Gas(21000).GasPrice(big.NewInt(1)).Build()
	assert.NotEqual(t, helix.EmptyRootHash(), Transactions{trx}.RootHash())

	receipts := Receipts{
		{Status: StatusSucceeded, GasUsed: 21000, CumulativeGasUsed: 21000},
		{Status: StatusFailed, GasUsed: 30000, CumulativeGasUsed: 51000},
	}
	assert.NotEqual(t, helix.EmptyRootHash(), receipts.RootHash())
	assert.True(t, receipts[1].Failed())
}
