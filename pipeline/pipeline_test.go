// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pipeline_test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/muxdb"
	"github.com/helix-chain/helix/pipeline"
	"github.com/helix-chain/helix/runtime"
	"github.com/helix-chain/helix/state"
	"github.com/helix-chain/helix/tx"
)

const testChainID = 1

var beneficiary = helix.BytesToAddress([]byte("beneficiary"))

type testChain struct {
	t     *testing.T
	db    *muxdb.MuxDB
	p     *pipeline.Pipeline
	key   *ecdsa.PrivateKey
	nonce uint64
	num   uint32
	root  helix.Bytes32
}

func newTestChain(t *testing.T, opts pipeline.Options) *testChain {
	db := muxdb.NewMem()
	t.Cleanup(func() { db.Close() })

	// fixed key so identical tx sequences produce identical roots
	seed := helix.Keccak256([]byte("pipeline test key"))
	key, err := crypto.ToECDSA(seed[:])
	require.NoError(t, err)

	// genesis: fund the test account
	st := state.New(db, helix.Bytes32{})
	sender := helix.Address(crypto.PubkeyToAddress(key.PublicKey))
	require.NoError(t, st.SetBalance(sender, new(big.Int).SetUint64(1e18)))
	stage, err := st.Stage()
	require.NoError(t, err)
	root, err := stage.Commit(1)
	require.NoError(t, err)

	return &testChain{
		t:    t,
		db:   db,
		p:    pipeline.New(db, helix.AllForks, opts),
		key:  key,
		root: root,
	}
}

func (c *testChain) context() *runtime.Context {
	c.num++
	return &runtime.Context{
		Beneficiary: beneficiary,
		Number:      c.num,
		Time:        1700000000 + uint64(c.num)*10,
		GasLimit:    10_000_000,
		ChainID:     testChainID,
	}
}

func (c *testChain) transferTx(to helix.Address, amount int64) *tx.Transaction {
	trx := tx.NewBuilder().
		ChainID(testChainID).
		Nonce(c.nonce).
		GasPrice(big.NewInt(1)).
		Gas(50000).
		To(&to).
		Value(big.NewInt(amount)).
		Build()
	c.nonce++
	hash := trx.SigningHash()
	sig, err := crypto.Sign(hash[:], c.key)
	require.NoError(c.t, err)
	return trx.WithSignature(sig)
}

func (c *testChain) executeBlock(txs tx.Transactions) *pipeline.Result {
	result, err := c.p.ExecuteBlock(c.root, c.context(), txs, nil)
	require.NoError(c.t, err)
	c.root = result.Root
	return result
}

func TestEmptyBlocksKeepRoot(t *testing.T) {
	c := newTestChain(t, pipeline.DefaultOptions())
	genesis := c.root
	layers := c.db.LayerCount()

	for i := 0; i < 3; i++ {
		result := c.executeBlock(nil)
		assert.Equal(t, pipeline.StatusCommitted, result.Status)
		assert.Equal(t, genesis, result.Root)
	}
	assert.Equal(t, layers, c.db.LayerCount(), "empty blocks must not grow the layer chain")
}

func TestBlockExecution(t *testing.T) {
	c := newTestChain(t, pipeline.DefaultOptions())
	recipient := helix.BytesToAddress([]byte("recipient"))

	result := c.executeBlock(tx.Transactions{
		c.transferTx(recipient, 100),
		c.transferTx(recipient, 200),
	})
	assert.Equal(t, pipeline.StatusCommitted, result.Status)
	assert.Len(t, result.Receipts, 2)
	assert.Equal(t, 2*helix.TxGas, result.GasUsed)
	assert.NotEqual(t, helix.Bytes32{}, result.Root)

	// the committed root is readable through a fresh working set
	st := state.New(c.db, result.Root)
	balance, err := st.GetBalance(recipient)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300), balance)

	fee, err := st.GetBalance(beneficiary)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2*21000), fee)
}

func TestChainGrowsOneLayerPerBlock(t *testing.T) {
	c := newTestChain(t, pipeline.DefaultOptions())
	recipient := helix.BytesToAddress([]byte("recipient"))

	for i := 0; i < 3; i++ {
		before := c.db.LayerCount()
		result := c.executeBlock(tx.Transactions{c.transferTx(recipient, 10)})
		if result.LayersFlushed == 0 {
			assert.Equal(t, before+1, c.db.LayerCount())
		}
	}

	st := state.New(c.db, c.root)
	balance, err := st.GetBalance(recipient)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(30), balance)
}

func TestBatchingIsRootNeutral(t *testing.T) {
	recipient := helix.BytesToAddress([]byte("recipient"))

	run := func(opts pipeline.Options) helix.Bytes32 {
		c := newTestChain(t, opts)
		var txs tx.Transactions
		for i := 0; i < 12; i++ {
			txs = append(txs, c.transferTx(recipient, int64(i+1)))
		}
		result := c.executeBlock(txs)
		return result.Root
	}

	fine := run(pipeline.Options{TxsPerBatch: 1, QueueDepth: 1, ShardCount: 1})
	coarse := run(pipeline.Options{TxsPerBatch: 100, QueueDepth: 4, ShardCount: 16})
	deflt := run(pipeline.DefaultOptions())

	assert.Equal(t, fine, coarse, "batch size must not change the root")
	assert.Equal(t, fine, deflt)
}

func TestBatchStreaming(t *testing.T) {
	c := newTestChain(t, pipeline.Options{TxsPerBatch: 2, QueueDepth: 2, ShardCount: 4})
	recipient := helix.BytesToAddress([]byte("recipient"))

	var txs tx.Transactions
	for i := 0; i < 10; i++ {
		txs = append(txs, c.transferTx(recipient, 1))
	}
	result := c.executeBlock(txs)
	assert.GreaterOrEqual(t, result.Batches, 2, "multiple harvests expected")

	st := state.New(c.db, c.root)
	balance, err := st.GetBalance(recipient)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10), balance)
}

func TestRootMismatchPoisonsPipeline(t *testing.T) {
	c := newTestChain(t, pipeline.DefaultOptions())
	recipient := helix.BytesToAddress([]byte("recipient"))

	bogus := helix.Keccak256([]byte("not the root"))
	_, err := c.p.ExecuteBlock(c.root, c.context(), tx.Transactions{c.transferTx(recipient, 1)}, &bogus)
	require.ErrorIs(t, err, pipeline.ErrRootMismatch)

	// the pipeline refuses everything afterwards, even empty blocks
	_, err = c.p.ExecuteBlock(c.root, c.context(), nil, nil)
	assert.ErrorContains(t, err, "poisoned")
}

func TestExecutionFailureLeavesNothingDurable(t *testing.T) {
	c := newTestChain(t, pipeline.DefaultOptions())
	recipient := helix.BytesToAddress([]byte("recipient"))
	layers := c.db.LayerCount()

	// a block with an invalid tx aborts entirely
	wrongNonce := tx.NewBuilder().
		ChainID(testChainID).
		Nonce(99).
		GasPrice(big.NewInt(1)).
		Gas(50000).
		To(&recipient).
		Build()
	hash := wrongNonce.SigningHash()
	sig, err := crypto.Sign(hash[:], c.key)
	require.NoError(t, err)

	_, err = c.p.ExecuteBlock(c.root, c.context(), tx.Transactions{wrongNonce.WithSignature(sig)}, nil)
	assert.ErrorContains(t, err, "invalid nonce")
	assert.Equal(t, layers, c.db.LayerCount())

	// the pipeline is not poisoned by an invalid block
	result, execErr := c.p.ExecuteBlock(c.root, c.context(), nil, nil)
	require.NoError(t, execErr)
	assert.Equal(t, pipeline.StatusCommitted, result.Status)
}

func TestLayerFlushThreshold(t *testing.T) {
	c := newTestChain(t, pipeline.DefaultOptions())
	recipient := helix.BytesToAddress([]byte("recipient"))

	var flushed int
	for i := 0; i < 20; i++ {
		result := c.executeBlock(tx.Transactions{c.transferTx(recipient, 1)})
		flushed += result.LayersFlushed
	}
	assert.Greater(t, flushed, 0, "layer chain must flush after outgrowing thresholds")
	assert.NotEqual(t, helix.Bytes32{}, c.db.FlushedHead())

	// state stays readable at the tip across the flush boundary
	st := state.New(c.db, c.root)
	balance, err := st.GetBalance(recipient)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(20), balance)
}
