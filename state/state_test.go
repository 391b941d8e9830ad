// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/muxdb"
	"github.com/helix-chain/helix/state"
)

func TestStateReadWrite(t *testing.T) {
	db := muxdb.NewMem()
	defer db.Close()
	st := state.New(db, helix.Bytes32{})

	addr := helix.BytesToAddress([]byte("addr1"))

	balance, err := st.GetBalance(addr)
	require.NoError(t, err)
	assert.Zero(t, balance.Sign())

	exists, err := st.Exists(addr)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, st.SetBalance(addr, big.NewInt(100)))
	require.NoError(t, st.SetNonce(addr, 7))
	require.NoError(t, st.SetCode(addr, []byte{0x60, 0x00}))
	st.SetStorage(addr, helix.Bytes32{0x01}, helix.Bytes32{0xff})

	balance, err = st.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), balance)

	nonce, err := st.GetNonce(addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), nonce)

	code, err := st.GetCode(addr)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x00}, code)

	codeHash, err := st.GetCodeHash(addr)
	require.NoError(t, err)
	assert.Equal(t, helix.Keccak256([]byte{0x60, 0x00}), codeHash)

	val, err := st.GetStorage(addr, helix.Bytes32{0x01})
	require.NoError(t, err)
	assert.Equal(t, helix.Bytes32{0xff}, val)

	exists, err = st.Exists(addr)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCheckpointRevert(t *testing.T) {
	db := muxdb.NewMem()
	defer db.Close()
	st := state.New(db, helix.Bytes32{})

	addr := helix.BytesToAddress([]byte("addr1"))
	require.NoError(t, st.SetBalance(addr, big.NewInt(1)))

	rev := st.NewCheckpoint()
	require.NoError(t, st.SetBalance(addr, big.NewInt(2)))
	st.SetStorage(addr, helix.Bytes32{0x01}, helix.Bytes32{0x02})

	// nested checkpoint
	rev2 := st.NewCheckpoint()
	require.NoError(t, st.SetBalance(addr, big.NewInt(3)))
	st.RevertTo(rev2)

	balance, err := st.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2), balance)

	st.RevertTo(rev)
	balance, err = st.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), balance)

	val, err := st.GetStorage(addr, helix.Bytes32{0x01})
	require.NoError(t, err)
	assert.True(t, val.IsZero())
}

func TestDeleteWipesStorage(t *testing.T) {
	db := muxdb.NewMem()
	defer db.Close()
	st := state.New(db, helix.Bytes32{})

	addr := helix.BytesToAddress([]byte("addr1"))
	require.NoError(t, st.SetBalance(addr, big.NewInt(1)))
	st.SetStorage(addr, helix.Bytes32{0x01}, helix.Bytes32{0xff})

	st.Delete(addr)

	exists, err := st.Exists(addr)
	require.NoError(t, err)
	assert.False(t, exists)

	val, err := st.GetStorage(addr, helix.Bytes32{0x01})
	require.NoError(t, err)
	assert.True(t, val.IsZero())

	// recreating the account starts from empty storage
	require.NoError(t, st.SetBalance(addr, big.NewInt(2)))
	val, err = st.GetStorage(addr, helix.Bytes32{0x01})
	require.NoError(t, err)
	assert.True(t, val.IsZero())
}

func TestStageCommitReload(t *testing.T) {
	db := muxdb.NewMem()
	defer db.Close()
	st := state.New(db, helix.Bytes32{})

	addr := helix.BytesToAddress([]byte("addr1"))
	require.NoError(t, st.SetBalance(addr, big.NewInt(100)))
	require.NoError(t, st.SetCode(addr, []byte{0x01, 0x02}))
	st.SetStorage(addr, helix.Bytes32{0x01}, helix.Bytes32{0xaa})
	st.SetStorage(addr, helix.Bytes32{0x02}, helix.Bytes32{0xbb})

	stage, err := st.Stage()
	require.NoError(t, err)
	root := stage.Hash()

	committed, err := stage.Commit(4)
	require.NoError(t, err)
	assert.Equal(t, root, committed)

	// reload at the committed root
	st2 := state.New(db, root)
	balance, err := st2.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), balance)

	code, err := st2.GetCode(addr)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, code)

	val, err := st2.GetStorage(addr, helix.Bytes32{0x01})
	require.NoError(t, err)
	assert.Equal(t, helix.Bytes32{0xaa}, val)
	val, err = st2.GetStorage(addr, helix.Bytes32{0x02})
	require.NoError(t, err)
	assert.Equal(t, helix.Bytes32{0xbb}, val)
}

func TestStageEmptiedAccount(t *testing.T) {
	db := muxdb.NewMem()
	defer db.Close()
	st := state.New(db, helix.Bytes32{})

	addr := helix.BytesToAddress([]byte("addr1"))
	require.NoError(t, st.SetBalance(addr, big.NewInt(1)))
	stage, err := st.Stage()
	require.NoError(t, err)
	root1, err := stage.Commit(1)
	require.NoError(t, err)

	// zeroing the balance empties the account and deletes the trie entry
	st2 := state.New(db, root1)
	require.NoError(t, st2.SetBalance(addr, new(big.Int)))
	stage, err = st2.Stage()
	require.NoError(t, err)
	root2, err := stage.Commit(1)
	require.NoError(t, err)
	assert.Equal(t, helix.EmptyRootHash(), root2)
}

func TestHarvestContinuity(t *testing.T) {
	db := muxdb.NewMem()
	defer db.Close()
	st := state.New(db, helix.Bytes32{})

	addr := helix.BytesToAddress([]byte("addr1"))
	require.NoError(t, st.SetBalance(addr, big.NewInt(10)))
	st.SetStorage(addr, helix.Bytes32{0x01}, helix.Bytes32{0x11})

	updates, err := st.Harvest()
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, addr, updates[0].Address)
	assert.Equal(t, big.NewInt(10), updates[0].Data.Balance)

	// reads after harvest see the harvested content
	balance, err := st.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10), balance)
	val, err := st.GetStorage(addr, helix.Bytes32{0x01})
	require.NoError(t, err)
	assert.Equal(t, helix.Bytes32{0x11}, val)

	// further changes accumulate on top
	require.NoError(t, st.SetBalance(addr, big.NewInt(20)))
	more, err := st.Harvest()
	require.NoError(t, err)
	require.Len(t, more, 1)
	assert.Equal(t, big.NewInt(20), more[0].Data.Balance)
	assert.Empty(t, more[0].Storage)
}

func TestHarvestStageEquivalence(t *testing.T) {
	db := muxdb.NewMem()
	defer db.Close()

	populate := func(st *state.State) {
		for i := byte(1); i <= 5; i++ {
			addr := helix.BytesToAddress([]byte{i})
			_ = st.SetBalance(addr, big.NewInt(int64(i)*100))
			_ = st.SetNonce(addr, uint64(i))
			st.SetStorage(addr, helix.Bytes32{i}, helix.Bytes32{i, i})
		}
	}

	// direct staging
	direct := state.New(db, helix.Bytes32{})
	populate(direct)
	stage, err := direct.Stage()
	require.NoError(t, err)
	want := stage.Hash()

	// harvest then stage the collected updates
	harvested := state.New(db, helix.Bytes32{})
	populate(harvested)
	updates, err := harvested.Harvest()
	require.NoError(t, err)
	stage2 := state.NewStage(db, helix.Bytes32{})
	require.NoError(t, stage2.Apply(updates))
	assert.Equal(t, want, stage2.Hash())
}

func TestStageAppliesBatchesIncrementally(t *testing.T) {
	db := muxdb.NewMem()
	defer db.Close()

	addr := helix.BytesToAddress([]byte("contract"))
	other := helix.BytesToAddress([]byte("other"))

	st := state.New(db, helix.Bytes32{})

	// batch 1: fund two accounts, write storage
	require.NoError(t, st.SetBalance(addr, big.NewInt(1000)))
	require.NoError(t, st.SetBalance(other, big.NewInt(1)))
	st.SetStorage(addr, helix.Bytes32{0x01}, helix.Bytes32{0xaa})
	st.SetStorage(addr, helix.Bytes32{0x02}, helix.Bytes32{0xbb})
	batch1, err := st.Harvest()
	require.NoError(t, err)

	// batch 2: touch the account again without any storage write
	require.NoError(t, st.SetBalance(addr, big.NewInt(2000)))
	batch2, err := st.Harvest()
	require.NoError(t, err)

	// batch 3: wipe and recreate, storage restarts from scratch
	st.Delete(addr)
	require.NoError(t, st.SetBalance(addr, big.NewInt(3000)))
	st.SetStorage(addr, helix.Bytes32{0x03}, helix.Bytes32{0xcc})
	batch3, err := st.Harvest()
	require.NoError(t, err)

	// folding batch by batch must land on the same root as staging the
	// cumulative update set in one go
	merged := state.MergeUpdates(batch1, batch2, batch3)
	oneShot := state.NewStage(db, helix.Bytes32{})
	require.NoError(t, oneShot.Apply(merged))
	want := oneShot.Hash()

	incremental := state.NewStage(db, helix.Bytes32{})
	require.NoError(t, incremental.Apply(batch1))
	// each fold is real trie work: the intermediate root already reflects
	// the applied batch
	assert.NotEqual(t, want, incremental.Hash())
	require.NoError(t, incremental.Apply(batch2))
	require.NoError(t, incremental.Apply(batch3))
	assert.Equal(t, want, incremental.Hash())

	// committing the incremental stage persists the storage written last
	root, err := incremental.Commit(1)
	require.NoError(t, err)
	reloaded := state.New(db, root)
	val, err := reloaded.GetStorage(addr, helix.Bytes32{0x03})
	require.NoError(t, err)
	assert.Equal(t, helix.Bytes32{0xcc}, val)
	gone, err := reloaded.GetStorage(addr, helix.Bytes32{0x01})
	require.NoError(t, err)
	assert.Equal(t, helix.Bytes32{}, gone, "pre-wipe storage does not survive the barrier")
	balance, err := reloaded.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3000), balance)
}

func TestStaterCheckout(t *testing.T) {
	db := muxdb.NewMem()
	defer db.Close()

	stater := state.NewStater(db)
	st := stater.NewState(helix.Bytes32{})

	addr := helix.BytesToAddress([]byte("addr1"))
	require.NoError(t, st.SetBalance(addr, big.NewInt(5)))
	stage, err := st.Stage()
	require.NoError(t, err)
	root, err := stage.Commit(1)
	require.NoError(t, err)

	// the original instance is untouched by staging
	other := st.Checkout(root)
	balance, err := other.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5), balance)
}
