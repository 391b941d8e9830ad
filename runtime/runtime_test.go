// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime_test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/muxdb"
	"github.com/helix-chain/helix/runtime"
	"github.com/helix-chain/helix/state"
	"github.com/helix-chain/helix/tx"
)

const testChainID = 1

var beneficiary = helix.BytesToAddress([]byte("beneficiary"))

func newTestRuntime(t *testing.T) (*runtime.Runtime, *state.State, func()) {
	db := muxdb.NewMem()
	st := state.New(db, helix.Bytes32{})
	rt := runtime.New(st, &runtime.Context{
		Beneficiary: beneficiary,
		Number:      1,
		Time:        1700000000,
		GasLimit:    10_000_000,
		ChainID:     testChainID,
	}, helix.AllForks)
	return rt, st, func() { db.Close() }
}

func signTx(t *testing.T, trx *tx.Transaction, key *ecdsa.PrivateKey) *tx.Transaction {
	hash := trx.SigningHash()
	sig, err := crypto.Sign(hash[:], key)
	require.NoError(t, err)
	return trx.WithSignature(sig)
}

func fund(t *testing.T, st *state.State, key *ecdsa.PrivateKey, amount *big.Int) helix.Address {
	addr := helix.Address(crypto.PubkeyToAddress(key.PublicKey))
	require.NoError(t, st.SetBalance(addr, amount))
	return addr
}

func TestValueTransfer(t *testing.T) {
	rt, st, done := newTestRuntime(t)
	defer done()

	key, _ := crypto.GenerateKey()
	sender := fund(t, st, key, big.NewInt(1_000_000))

	recipient := helix.BytesToAddress([]byte("recipient"))
	trx := signTx(t, tx.NewBuilder().
		ChainID(testChainID).
		GasPrice(big.NewInt(1)).
		Gas(50000).
		To(&recipient).
		Value(big.NewInt(700)).
		Build(), key)

	receipt, err := rt.ExecuteTransaction(trx)
	require.NoError(t, err)
	assert.Equal(t, tx.StatusSucceeded, receipt.Status)
	assert.Equal(t, helix.TxGas, receipt.GasUsed)
	assert.Equal(t, helix.TxGas, receipt.CumulativeGasUsed)
	assert.Nil(t, receipt.ContractAddress)

	balance, err := st.GetBalance(recipient)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(700), balance)

	senderBalance, err := st.GetBalance(sender)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000-700-21000), senderBalance)

	fee, err := st.GetBalance(beneficiary)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(21000), fee)

	nonce, err := st.GetNonce(sender)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)
}

func TestInvalidTxRejected(t *testing.T) {
	rt, st, done := newTestRuntime(t)
	defer done()

	key, _ := crypto.GenerateKey()
	sender := fund(t, st, key, big.NewInt(100_000))
	recipient := helix.BytesToAddress([]byte("recipient"))

	// wrong nonce
	trx := signTx(t, tx.NewBuilder().
		ChainID(testChainID).
		Nonce(5).
		GasPrice(big.NewInt(1)).
		Gas(50000).
		To(&recipient).
		Build(), key)
	_, err := rt.ExecuteTransaction(trx)
	assert.ErrorContains(t, err, "invalid nonce")

	// insufficient balance
	trx = signTx(t, tx.NewBuilder().
		ChainID(testChainID).
		GasPrice(big.NewInt(1)).
		Gas(50000).
		To(&recipient).
		Value(big.NewInt(1_000_000)).
		Build(), key)
	_, err = rt.ExecuteTransaction(trx)
	assert.ErrorContains(t, err, "insufficient balance")

	// intrinsic gas above limit
	trx = signTx(t, tx.NewBuilder().
		ChainID(testChainID).
		GasPrice(big.NewInt(1)).
		Gas(20000).
		To(&recipient).
		Build(), key)
	_, err = rt.ExecuteTransaction(trx)
	assert.ErrorContains(t, err, "intrinsic gas")

	// wrong chain
	trx = signTx(t, tx.NewBuilder().
		ChainID(42).
		GasPrice(big.NewInt(1)).
		Gas(50000).
		To(&recipient).
		Build(), key)
	_, err = rt.ExecuteTransaction(trx)
	assert.ErrorContains(t, err, "chain id mismatch")

	// rejected txs leave no trace
	balance, err := st.GetBalance(sender)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100_000), balance)
	nonce, err := st.GetNonce(sender)
	require.NoError(t, err)
	assert.Zero(t, nonce)
}

func TestContractDeployAndCall(t *testing.T) {
	rt, st, done := newTestRuntime(t)
	defer done()

	key, _ := crypto.GenerateKey()
	fund(t, st, key, big.NewInt(10_000_000))

	// runtime code: sstore(1, 0x2a)
	runtimeCode := []byte{0x60, 0x2a, 0x60, 0x01, 0x55, 0x00}
	// init code: codecopy runtime to mem and return it
	initCode := []byte{
		0x60, byte(len(runtimeCode)), 0x60, 12, 0x60, 0, 0x39,
		0x60, byte(len(runtimeCode)), 0x60, 0, 0xf3,
	}
	initCode = append(initCode, runtimeCode...)

	deploy := signTx(t, tx.NewBuilder().
		ChainID(testChainID).
		GasPrice(big.NewInt(1)).
		Gas(300_000).
		Data(initCode).
		Build(), key)

	receipt, err := rt.ExecuteTransaction(deploy)
	require.NoError(t, err)
	assert.Equal(t, tx.StatusSucceeded, receipt.Status)
	require.NotNil(t, receipt.ContractAddress)

	contract := *receipt.ContractAddress
	code, err := st.GetCode(contract)
	require.NoError(t, err)
	assert.Equal(t, runtimeCode, code)

	call := signTx(t, tx.NewBuilder().
		ChainID(testChainID).
		Nonce(1).
		GasPrice(big.NewInt(1)).
		Gas(100_000).
		To(&contract).
		Build(), key)
	receipt, err = rt.ExecuteTransaction(call)
	require.NoError(t, err)
	assert.Equal(t, tx.StatusSucceeded, receipt.Status)
	assert.Greater(t, receipt.GasUsed, helix.TxGas)

	value, err := st.GetStorage(contract, helix.BytesToBytes32([]byte{1}))
	require.NoError(t, err)
	assert.Equal(t, helix.BytesToBytes32([]byte{0x2a}), value)
}

func TestRevertedTxChargesGasOnly(t *testing.T) {
	rt, st, done := newTestRuntime(t)
	defer done()

	key, _ := crypto.GenerateKey()
	sender := fund(t, st, key, big.NewInt(1_000_000))

	// contract: sstore then revert
	contract := helix.BytesToAddress([]byte("reverter"))
	require.NoError(t, st.SetCode(contract, []byte{
		0x60, 0xff, 0x60, 0x01, 0x55, // sstore(1, 0xff)
		0x60, 0x00, 0x60, 0x00, 0xfd, // revert(0, 0)
	}))

	trx := signTx(t, tx.NewBuilder().
		ChainID(testChainID).
		GasPrice(big.NewInt(1)).
		Gas(100_000).
		To(&contract).
		Value(big.NewInt(500)).
		Build(), key)

	receipt, err := rt.ExecuteTransaction(trx)
	require.NoError(t, err)
	assert.Equal(t, tx.StatusFailed, receipt.Status)
	assert.True(t, receipt.Failed())
	assert.Empty(t, receipt.Logs)

	// value transfer rolled back, storage untouched, gas charged
	value, err := st.GetStorage(contract, helix.BytesToBytes32([]byte{1}))
	require.NoError(t, err)
	assert.True(t, value.IsZero())

	senderBalance, err := st.GetBalance(sender)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000-int64(receipt.GasUsed)), senderBalance)

	nonce, err := st.GetNonce(sender)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce, "failed txs still burn the nonce")
}

func TestLogsInReceipt(t *testing.T) {
	rt, st, done := newTestRuntime(t)
	defer done()

	key, _ := crypto.GenerateKey()
	fund(t, st, key, big.NewInt(1_000_000))

	// log1(topic=7, 32 bytes of memory)
	contract := helix.BytesToAddress([]byte("logger"))
	require.NoError(t, st.SetCode(contract, []byte{
		0x60, 0xaa, 0x60, 0x00, 0x52, // mstore(0, 0xaa)
		0x60, 0x07, 0x60, 0x20, 0x60, 0x00, 0xa1, // log1(0, 32, 7)
		0x00,
	}))

	trx := signTx(t, tx.NewBuilder().
		ChainID(testChainID).
		GasPrice(big.NewInt(1)).
		Gas(100_000).
		To(&contract).
		Build(), key)

	receipt, err := rt.ExecuteTransaction(trx)
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, contract, receipt.Logs[0].Address)
	assert.Equal(t, helix.BytesToBytes32([]byte{7}), receipt.Logs[0].Topics[0])
}

func TestHooks(t *testing.T) {
	rt, st, done := newTestRuntime(t)
	defer done()

	key, _ := crypto.GenerateKey()
	sender := fund(t, st, key, big.NewInt(1_000_000))
	recipient := helix.BytesToAddress([]byte("recipient"))

	var order []string
	rt.AddPreHook(func(st *state.State, trx *tx.Transaction, from helix.Address) error {
		assert.Equal(t, sender, from)
		order = append(order, "pre")
		return nil
	})
	rt.AddPostHook(func(st *state.State, trx *tx.Transaction, from helix.Address) error {
		order = append(order, "post")
		return nil
	})

	trx := signTx(t, tx.NewBuilder().
		ChainID(testChainID).
		GasPrice(big.NewInt(1)).
		Gas(50000).
		To(&recipient).
		Build(), key)
	_, err := rt.ExecuteTransaction(trx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pre", "post"}, order)
}

func TestFailingHookLeavesNoTrace(t *testing.T) {
	rt, st, done := newTestRuntime(t)
	defer done()

	key, _ := crypto.GenerateKey()
	sender := fund(t, st, key, big.NewInt(1_000_000))
	recipient := helix.BytesToAddress([]byte("recipient"))

	rt.AddPostHook(func(st *state.State, trx *tx.Transaction, from helix.Address) error {
		return assert.AnError
	})

	trx := signTx(t, tx.NewBuilder().
		ChainID(testChainID).
		GasPrice(big.NewInt(1)).
		Gas(50000).
		To(&recipient).
		Value(big.NewInt(100)).
		Build(), key)
	_, err := rt.ExecuteTransaction(trx)
	assert.ErrorContains(t, err, "post hook")

	balance, err := st.GetBalance(sender)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000), balance)
	value, err := st.GetBalance(recipient)
	require.NoError(t, err)
	assert.Zero(t, value.Sign())
}

func TestSelfdestructApplied(t *testing.T) {
	rt, st, done := newTestRuntime(t)
	defer done()

	key, _ := crypto.GenerateKey()
	fund(t, st, key, big.NewInt(1_000_000))

	sink := helix.BytesToAddress([]byte("sink"))
	contract := helix.BytesToAddress([]byte("doomed"))
	code := append([]byte{0x73}, sink[:]...) // push20 sink
	code = append(code, 0xff)                // selfdestruct
	require.NoError(t, st.SetCode(contract, code))
	require.NoError(t, st.SetBalance(contract, big.NewInt(555)))

	trx := signTx(t, tx.NewBuilder().
		ChainID(testChainID).
		GasPrice(big.NewInt(1)).
		Gas(100_000).
		To(&contract).
		Build(), key)

	receipt, err := rt.ExecuteTransaction(trx)
	require.NoError(t, err)
	assert.Equal(t, tx.StatusSucceeded, receipt.Status)

	exists, err := st.Exists(contract)
	require.NoError(t, err)
	assert.False(t, exists, "self-destructed account must be gone")

	balance, err := st.GetBalance(sink)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(555), balance)
}
