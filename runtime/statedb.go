// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"fmt"
	"math/big"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/stackedmap"
	"github.com/helix-chain/helix/state"
	"github.com/helix-chain/helix/tx"
	"github.com/helix-chain/helix/vm"
)

var _ vm.StateDB = (*Statedb)(nil)

// Statedb adapts the working set to vm.StateDB. It carries the
// transaction substate (warm sets, refund counter, logs, self-destruct
// flags) in a stacked map, so a vm snapshot checkpoints both the state
// and the substate at once.
//
// The backing state reports failures through error returns the vm
// interface has no room for; the first one is latched and must be
// checked via Err after execution.
type Statedb struct {
	state *state.State
	repo  *stackedmap.StackedMap

	// pre-transaction storage values, filled on first touch of a slot.
	// They never revert: the committed value is a constant of the tx.
	committed map[slotKey]helix.Bytes32

	checkpoints map[int]int // repo depth -> state checkpoint
	err         error
}

type (
	slotKey struct {
		addr helix.Address
		key  helix.Bytes32
	}

	refundKey       struct{}
	logKey          struct{}
	selfdestructKey helix.Address
	warmAddressKey  helix.Address
	warmSlotKey     slotKey
)

// NewStatedb wraps the state for the execution of one transaction.
func NewStatedb(s *state.State) *Statedb {
	getter := func(k any) (any, bool, error) {
		switch k.(type) {
		case refundKey:
			return uint64(0), true, nil
		case selfdestructKey:
			return false, true, nil
		case warmAddressKey:
			return false, true, nil
		case warmSlotKey:
			return false, true, nil
		}
		panic(fmt.Sprintf("statedb: unknown key type %T", k))
	}
	repo := stackedmap.New(getter)
	// base level holds substate written outside any snapshot, e.g. the
	// access list warmed before execution
	repo.Push()
	return &Statedb{
		state:       s,
		repo:        repo,
		committed:   make(map[slotKey]helix.Bytes32),
		checkpoints: make(map[int]int),
	}
}

// Err returns the first state backend failure seen during execution.
func (s *Statedb) Err() error {
	return s.err
}

func (s *Statedb) setErr(err error) {
	if s.err == nil && err != nil {
		s.err = err
	}
}

// GetLogs returns the logs emitted during execution, in order.
func (s *Statedb) GetLogs() (logs []*tx.Log) {
	s.repo.Journal(func(k, v any) bool {
		if _, ok := k.(logKey); ok {
			logs = append(logs, v.(*tx.Log))
		}
		return true
	})
	return
}

// ApplySelfdestructs deletes every account flagged by SELFDESTRUCT.
// Called once after successful execution.
func (s *Statedb) ApplySelfdestructs() {
	seen := make(map[helix.Address]bool)
	s.repo.Journal(func(k, v any) bool {
		if key, ok := k.(selfdestructKey); ok && !seen[helix.Address(key)] {
			seen[helix.Address(key)] = true
			s.state.Delete(helix.Address(key))
		}
		return true
	})
}

func (s *Statedb) CreateAccount(addr helix.Address) {
	// A create over an existing (empty per EIP-161, but possibly funded)
	// account wipes its storage and carries the balance over.
	balance, err := s.state.GetBalance(addr)
	s.setErr(err)
	s.state.Delete(addr)
	s.setErr(s.state.SetBalance(addr, balance))
}

func (s *Statedb) GetBalance(addr helix.Address) *big.Int {
	balance, err := s.state.GetBalance(addr)
	s.setErr(err)
	return balance
}

func (s *Statedb) AddBalance(addr helix.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		// still a touch for EIP-161 purposes, but empty accounts are
		// never persisted by the working set anyway
		return
	}
	balance, err := s.state.GetBalance(addr)
	s.setErr(err)
	s.setErr(s.state.SetBalance(addr, new(big.Int).Add(balance, amount)))
}

func (s *Statedb) SubBalance(addr helix.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	balance, err := s.state.GetBalance(addr)
	s.setErr(err)
	s.setErr(s.state.SetBalance(addr, new(big.Int).Sub(balance, amount)))
}

func (s *Statedb) GetNonce(addr helix.Address) uint64 {
	nonce, err := s.state.GetNonce(addr)
	s.setErr(err)
	return nonce
}

func (s *Statedb) SetNonce(addr helix.Address, nonce uint64) {
	s.setErr(s.state.SetNonce(addr, nonce))
}

func (s *Statedb) GetCode(addr helix.Address) []byte {
	code, err := s.state.GetCode(addr)
	s.setErr(err)
	return code
}

func (s *Statedb) GetCodeHash(addr helix.Address) helix.Bytes32 {
	hash, err := s.state.GetCodeHash(addr)
	s.setErr(err)
	return hash
}

func (s *Statedb) GetCodeSize(addr helix.Address) int {
	return len(s.GetCode(addr))
}

func (s *Statedb) SetCode(addr helix.Address, code []byte) {
	s.setErr(s.state.SetCode(addr, code))
}

func (s *Statedb) GetState(addr helix.Address, key helix.Bytes32) helix.Bytes32 {
	value, err := s.state.GetStorage(addr, key)
	s.setErr(err)
	sk := slotKey{addr, key}
	if _, ok := s.committed[sk]; !ok {
		s.committed[sk] = value
	}
	return value
}

func (s *Statedb) GetCommittedState(addr helix.Address, key helix.Bytes32) helix.Bytes32 {
	sk := slotKey{addr, key}
	if value, ok := s.committed[sk]; ok {
		return value
	}
	return s.GetState(addr, key)
}

func (s *Statedb) SetState(addr helix.Address, key, value helix.Bytes32) {
	sk := slotKey{addr, key}
	if _, ok := s.committed[sk]; !ok {
		current, err := s.state.GetStorage(addr, key)
		s.setErr(err)
		s.committed[sk] = current
	}
	s.state.SetStorage(addr, key, value)
}

func (s *Statedb) Exist(addr helix.Address) bool {
	if s.HasSelfdestructed(addr) {
		return true
	}
	exists, err := s.state.Exists(addr)
	s.setErr(err)
	return exists
}

func (s *Statedb) Empty(addr helix.Address) bool {
	return !s.Exist(addr)
}

func (s *Statedb) AddRefund(gas uint64) {
	v, _, _ := s.repo.Get(refundKey{})
	s.repo.Put(refundKey{}, v.(uint64)+gas)
}

func (s *Statedb) SubRefund(gas uint64) {
	v, _, _ := s.repo.Get(refundKey{})
	total := v.(uint64)
	if gas > total {
		panic(fmt.Sprintf("statedb: refund counter below zero (%d > %d)", gas, total))
	}
	s.repo.Put(refundKey{}, total-gas)
}

func (s *Statedb) GetRefund() uint64 {
	v, _, _ := s.repo.Get(refundKey{})
	return v.(uint64)
}

// Selfdestruct flags the account. The balance was already moved by the
// opcode; the deletion itself is deferred to ApplySelfdestructs so that
// the account stays visible for the rest of the transaction.
func (s *Statedb) Selfdestruct(addr helix.Address) {
	s.setErr(s.state.SetBalance(addr, new(big.Int)))
	s.repo.Put(selfdestructKey(addr), true)
}

func (s *Statedb) HasSelfdestructed(addr helix.Address) bool {
	v, _, _ := s.repo.Get(selfdestructKey(addr))
	return v.(bool)
}

func (s *Statedb) AddressInAccessList(addr helix.Address) bool {
	v, _, _ := s.repo.Get(warmAddressKey(addr))
	return v.(bool)
}

func (s *Statedb) SlotInAccessList(addr helix.Address, slot helix.Bytes32) (bool, bool) {
	av, _, _ := s.repo.Get(warmAddressKey(addr))
	sv, _, _ := s.repo.Get(warmSlotKey(slotKey{addr, slot}))
	return av.(bool), sv.(bool)
}

func (s *Statedb) AddAddressToAccessList(addr helix.Address) {
	s.repo.Put(warmAddressKey(addr), true)
}

func (s *Statedb) AddSlotToAccessList(addr helix.Address, slot helix.Bytes32) {
	s.repo.Put(warmSlotKey(slotKey{addr, slot}), true)
}

func (s *Statedb) AddLog(l *tx.Log) {
	s.repo.Put(logKey{}, l)
}

// Snapshot checkpoints the state and the substate together.
func (s *Statedb) Snapshot() int {
	checkpoint := s.state.NewCheckpoint()
	rev := s.repo.Push()
	s.checkpoints[rev] = checkpoint
	return rev
}

// RevertToSnapshot reverts both the state and the substate to the given
// revision.
func (s *Statedb) RevertToSnapshot(rev int) {
	checkpoint, ok := s.checkpoints[rev]
	if !ok {
		panic(fmt.Sprintf("statedb: unknown snapshot revision %d", rev))
	}
	s.state.RevertTo(checkpoint)
	s.repo.PopTo(rev)
	for d := range s.checkpoints {
		if d >= rev {
			delete(s.checkpoints, d)
		}
	}
}
