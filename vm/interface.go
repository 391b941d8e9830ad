// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"math/big"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/tx"
)

// StateDB is the world-state interface the interpreter executes against.
// Implementations carry the transaction substate (warm sets, refund
// counter, logs, self-destructs) and checkpoint it per call through
// Snapshot/RevertToSnapshot.
type StateDB interface {
	CreateAccount(helix.Address)

	GetBalance(helix.Address) *big.Int
	AddBalance(helix.Address, *big.Int)
	SubBalance(helix.Address, *big.Int)

	GetNonce(helix.Address) uint64
	SetNonce(helix.Address, uint64)

	GetCode(helix.Address) []byte
	GetCodeHash(helix.Address) helix.Bytes32
	GetCodeSize(helix.Address) int
	SetCode(helix.Address, []byte)

	GetState(helix.Address, helix.Bytes32) helix.Bytes32
	// GetCommittedState returns the value as of the start of the
	// transaction, before any SSTORE of this tx.
	GetCommittedState(helix.Address, helix.Bytes32) helix.Bytes32
	SetState(helix.Address, helix.Bytes32, helix.Bytes32)

	// Exist reports whether the account exists in state.
	// Notably this also returns true for self-destructed accounts.
	Exist(helix.Address) bool
	// Empty reports whether the account is empty per EIP-161
	// (balance = nonce = code = 0).
	Empty(helix.Address) bool

	AddRefund(uint64)
	SubRefund(uint64)
	GetRefund() uint64

	Selfdestruct(helix.Address)
	HasSelfdestructed(helix.Address) bool

	// access list (EIP-2929)
	AddressInAccessList(helix.Address) bool
	SlotInAccessList(helix.Address, helix.Bytes32) (addressOk bool, slotOk bool)
	AddAddressToAccessList(helix.Address)
	AddSlotToAccessList(helix.Address, helix.Bytes32)

	AddLog(*tx.Log)

	Snapshot() int
	RevertToSnapshot(int)
}
