// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/muxdb"
	"github.com/helix-chain/helix/state"
	"github.com/helix-chain/helix/tx"
)

func newTestStatedb(t *testing.T) (*Statedb, *state.State) {
	db := muxdb.NewMem()
	t.Cleanup(func() { db.Close() })
	st := state.New(db, helix.Bytes32{})
	return NewStatedb(st), st
}

func TestSubstateSnapshotRevert(t *testing.T) {
	sdb, _ := newTestStatedb(t)
	addr := helix.BytesToAddress([]byte("acc"))
	slot := helix.BytesToBytes32([]byte{1})

	sdb.AddAddressToAccessList(addr)
	sdb.AddRefund(100)

	rev := sdb.Snapshot()

	sdb.AddSlotToAccessList(addr, slot)
	sdb.AddRefund(50)
	sdb.AddLog(&tx.Log{Address: addr})
	sdb.Selfdestruct(addr)

	assert.Equal(t, uint64(150), sdb.GetRefund())
	_, slotWarm := sdb.SlotInAccessList(addr, slot)
	assert.True(t, slotWarm)
	assert.True(t, sdb.HasSelfdestructed(addr))
	assert.Len(t, sdb.GetLogs(), 1)

	sdb.RevertToSnapshot(rev)

	assert.Equal(t, uint64(100), sdb.GetRefund(), "refund reverts with the snapshot")
	assert.True(t, sdb.AddressInAccessList(addr), "pre-snapshot warmth survives")
	_, slotWarm = sdb.SlotInAccessList(addr, slot)
	assert.False(t, slotWarm)
	assert.False(t, sdb.HasSelfdestructed(addr))
	assert.Empty(t, sdb.GetLogs())
}

func TestCommittedStateIsTxConstant(t *testing.T) {
	sdb, st := newTestStatedb(t)
	addr := helix.BytesToAddress([]byte("acc"))
	slot := helix.BytesToBytes32([]byte{1})
	orig := helix.BytesToBytes32([]byte{0xaa})

	st.SetStorage(addr, slot, orig)
	// a fresh statedb starts a new "transaction"
	sdb = NewStatedb(st)

	assert.Equal(t, orig, sdb.GetCommittedState(addr, slot))

	sdb.SetState(addr, slot, helix.BytesToBytes32([]byte{0xbb}))
	sdb.SetState(addr, slot, helix.BytesToBytes32([]byte{0xcc}))

	assert.Equal(t, helix.BytesToBytes32([]byte{0xcc}), sdb.GetState(addr, slot))
	assert.Equal(t, orig, sdb.GetCommittedState(addr, slot), "committed value pinned at first touch")
}

func TestStateAndSubstateRevertTogether(t *testing.T) {
	sdb, st := newTestStatedb(t)
	addr := helix.BytesToAddress([]byte("acc"))

	require.NoError(t, st.SetBalance(addr, big.NewInt(100)))

	rev := sdb.Snapshot()
	sdb.AddBalance(addr, big.NewInt(50))
	sdb.AddRefund(10)
	assert.Equal(t, big.NewInt(150), sdb.GetBalance(addr))

	sdb.RevertToSnapshot(rev)
	assert.Equal(t, big.NewInt(100), sdb.GetBalance(addr))
	assert.Zero(t, sdb.GetRefund())
	assert.NoError(t, sdb.Err())
}

func TestNestedSnapshots(t *testing.T) {
	sdb, _ := newTestStatedb(t)

	rev1 := sdb.Snapshot()
	sdb.AddRefund(1)
	rev2 := sdb.Snapshot()
	sdb.AddRefund(2)
	rev3 := sdb.Snapshot()
	sdb.AddRefund(4)

	assert.Equal(t, uint64(7), sdb.GetRefund())
	sdb.RevertToSnapshot(rev3)
	assert.Equal(t, uint64(3), sdb.GetRefund())
	sdb.RevertToSnapshot(rev2)
	assert.Equal(t, uint64(1), sdb.GetRefund())
	sdb.RevertToSnapshot(rev1)
	assert.Zero(t, sdb.GetRefund())
}
