// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/muxdb"
	"github.com/helix-chain/helix/stackedmap"
)

const (
	// AccountTrieName is the name of the account trie.
	AccountTrieName       = "a"
	StorageTrieNamePrefix = "s"

	codeStoreName = "state.code"
)

// StorageTrieName converts the hashed address into the name of the
// storage trie.
func StorageTrieName(addrHash helix.Bytes32) string {
	return StorageTrieNamePrefix + string(addrHash[:])
}

// Error is the error caused by state access failure.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v", e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// State manages the world state.
type State struct {
	db    *muxdb.MuxDB
	trie  *muxdb.Trie                     // the account trie reader
	root  helix.Bytes32                   // the state root the instance was opened at
	cache map[helix.Address]*cachedObject // cache of account trie reads
	sm    *stackedmap.StackedMap          // keeps revisions of account state
}

// New creates a state object opened at the given state root.
func New(db *muxdb.MuxDB, root helix.Bytes32) *State {
	state := State{
		db:    db,
		trie:  db.NewTrie(AccountTrieName, root),
		root:  root,
		cache: make(map[helix.Address]*cachedObject),
	}

	state.sm = stackedmap.New(func(key any) (any, bool, error) {
		return state.cacheGetter(key)
	})
	// the base level holds puts made outside any checkpoint
	state.sm.Push()
	return &state
}

// Checkout checks out to another state.
func (s *State) Checkout(root helix.Bytes32) *State {
	return New(s.db, root)
}

// Root returns the state root the instance was opened at.
func (s *State) Root() helix.Bytes32 { return s.root }

// cacheGetter implements stackedmap.MapGetter.
func (s *State) cacheGetter(key any) (value any, exist bool, err error) {
	switch k := key.(type) {
	case helix.Address: // get account
		obj, err := s.getCachedObject(k)
		if err != nil {
			return nil, false, err
		}
		return &obj.data, true, nil
	case codeKey: // get code
		obj, err := s.getCachedObject(helix.Address(k))
		if err != nil {
			return nil, false, err
		}
		code, err := obj.GetCode()
		if err != nil {
			return nil, false, err
		}
		return code, true, nil
	case storageKey: // get storage
		// the address was deleted in the life-cycle of this state
		// instance. treat its storage as an empty set.
		if k.barrier != 0 {
			return rlp.RawValue(nil), true, nil
		}

		obj, err := s.getCachedObject(k.addr)
		if err != nil {
			return nil, false, err
		}
		v, err := obj.GetStorage(k.key)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	case storageBarrierKey: // get barrier, 0 as initial value
		return 0, true, nil
	}
	panic(fmt.Errorf("unexpected key type %+v", key))
}

func (s *State) getCachedObject(addr helix.Address) (*cachedObject, error) {
	if co, ok := s.cache[addr]; ok {
		metricAccountCounter().AddWithLabel(1, map[string]string{"event": "hit"})
		return co, nil
	}
	metricAccountCounter().AddWithLabel(1, map[string]string{"event": "miss"})
	a, err := loadAccount(s.trie, addr)
	if err != nil {
		return nil, err
	}
	co := newCachedObject(s.db, addr, s.root, a)
	s.cache[addr] = co
	return co, nil
}

// getAccount gets the account by address. The returned account must not be
// modified.
func (s *State) getAccount(addr helix.Address) (*Account, error) {
	v, _, err := s.sm.Get(addr)
	if err != nil {
		return nil, err
	}
	return v.(*Account), nil
}

// getAccountCopy gets a copy of the account by address.
func (s *State) getAccountCopy(addr helix.Address) (Account, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return Account{}, err
	}
	return *acc, nil
}

func (s *State) updateAccount(addr helix.Address, acc *Account) {
	s.sm.Put(addr, acc)
}

func (s *State) getStorageBarrier(addr helix.Address) int {
	b, _, _ := s.sm.Get(storageBarrierKey(addr))
	return b.(int)
}

func (s *State) setStorageBarrier(addr helix.Address, barrier int) {
	s.sm.Put(storageBarrierKey(addr), barrier)
}

// GetBalance returns the balance for the given address.
func (s *State) GetBalance(addr helix.Address) (*big.Int, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return nil, &Error{err}
	}
	return acc.Balance, nil
}

// SetBalance sets the balance for the given address.
func (s *State) SetBalance(addr helix.Address, balance *big.Int) error {
	cpy, err := s.getAccountCopy(addr)
	if err != nil {
		return &Error{err}
	}
	cpy.Balance = balance
	s.updateAccount(addr, &cpy)
	return nil
}

// GetNonce returns the nonce for the given address.
func (s *State) GetNonce(addr helix.Address) (uint64, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return 0, &Error{err}
	}
	return acc.Nonce, nil
}

// SetNonce sets the nonce for the given address.
func (s *State) SetNonce(addr helix.Address, nonce uint64) error {
	cpy, err := s.getAccountCopy(addr)
	if err != nil {
		return &Error{err}
	}
	cpy.Nonce = nonce
	s.updateAccount(addr, &cpy)
	return nil
}

// GetStorage returns the storage value for the given address and key.
func (s *State) GetStorage(addr helix.Address, key helix.Bytes32) (helix.Bytes32, error) {
	raw, err := s.GetRawStorage(addr, key)
	if err != nil {
		return helix.Bytes32{}, &Error{err}
	}
	if len(raw) == 0 {
		return helix.Bytes32{}, nil
	}
	_, content, _, err := rlp.Split(raw)
	if err != nil {
		return helix.Bytes32{}, &Error{err}
	}
	return helix.BytesToBytes32(content), nil
}

// SetStorage sets the storage value for the given address and key.
// A zero value deletes the key.
func (s *State) SetStorage(addr helix.Address, key, value helix.Bytes32) {
	if value.IsZero() {
		s.SetRawStorage(addr, key, nil)
		return
	}
	v, _ := rlp.EncodeToBytes(bytes.TrimLeft(value[:], "\x00"))
	s.SetRawStorage(addr, key, v)
}

// GetRawStorage returns the rlp-encoded storage value for the given address
// and key.
func (s *State) GetRawStorage(addr helix.Address, key helix.Bytes32) (rlp.RawValue, error) {
	data, _, err := s.sm.Get(storageKey{addr, s.getStorageBarrier(addr), key})
	if err != nil {
		return nil, &Error{err}
	}
	return data.(rlp.RawValue), nil
}

// SetRawStorage sets the rlp-encoded storage value.
func (s *State) SetRawStorage(addr helix.Address, key helix.Bytes32, raw rlp.RawValue) {
	s.sm.Put(storageKey{addr, s.getStorageBarrier(addr), key}, raw)
}

// GetCode returns the code for the given address.
func (s *State) GetCode(addr helix.Address) ([]byte, error) {
	v, _, err := s.sm.Get(codeKey(addr))
	if err != nil {
		return nil, &Error{err}
	}
	return v.([]byte), nil
}

// GetCodeHash returns the code hash for the given address.
func (s *State) GetCodeHash(addr helix.Address) (helix.Bytes32, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return helix.Bytes32{}, &Error{err}
	}
	return helix.BytesToBytes32(acc.CodeHash), nil
}

// SetCode sets the code for the given address.
func (s *State) SetCode(addr helix.Address, code []byte) error {
	var codeHash []byte
	if len(code) > 0 {
		s.sm.Put(codeKey(addr), code)
		hash := helix.Keccak256(code)
		codeHash = hash.Bytes()
		codeCache.Add(string(codeHash), code)
	} else {
		s.sm.Put(codeKey(addr), []byte(nil))
	}
	cpy, err := s.getAccountCopy(addr)
	if err != nil {
		return &Error{err}
	}
	cpy.CodeHash = codeHash
	s.updateAccount(addr, &cpy)
	return nil
}

// Exists returns whether an account exists at the given address.
// See Account.IsEmpty()
func (s *State) Exists(addr helix.Address) (bool, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return false, &Error{err}
	}
	return !acc.IsEmpty(), nil
}

// Delete deletes the account at the given address.
// That's set balance, nonce and code to zero values and wipe storage.
func (s *State) Delete(addr helix.Address) {
	s.sm.Put(codeKey(addr), []byte(nil))
	s.updateAccount(addr, emptyAccount())
	// increase the barrier value
	s.setStorageBarrier(addr, s.getStorageBarrier(addr)+1)
}

// NewCheckpoint makes a checkpoint of the current state.
// It returns the revision of the checkpoint.
func (s *State) NewCheckpoint() int {
	return s.sm.Push()
}

// RevertTo reverts to the checkpoint specified by revision.
func (s *State) RevertTo(revision int) {
	s.sm.PopTo(revision)
}

// AccountUpdate is the cumulative change of one account within a state
// transition.
type AccountUpdate struct {
	Address helix.Address
	Data    Account // the resulting account, StorageRoot not yet recomputed
	Barrier bool    // storage wiped, discard the base storage trie
	Storage map[helix.Bytes32]rlp.RawValue
	Code    []byte // code set during the transition
}

// Deleted returns whether the update empties the account.
func (u *AccountUpdate) Deleted() bool { return u.Data.IsEmpty() }

// collectUpdates replays the journal into per-account cumulative updates.
func (s *State) collectUpdates() (map[helix.Address]*AccountUpdate, error) {
	updates := make(map[helix.Address]*AccountUpdate)

	get := func(addr helix.Address) (*AccountUpdate, error) {
		if u, ok := updates[addr]; ok {
			return u, nil
		}
		co, err := s.getCachedObject(addr)
		if err != nil {
			return nil, err
		}
		u := &AccountUpdate{Address: addr, Data: co.data}
		updates[addr] = u
		return u, nil
	}

	var jerr error
	s.sm.Journal(func(k, v any) bool {
		var u *AccountUpdate
		switch key := k.(type) {
		case helix.Address:
			if u, jerr = get(key); jerr != nil {
				return false
			}
			u.Data = *(v.(*Account))
		case codeKey:
			if u, jerr = get(helix.Address(key)); jerr != nil {
				return false
			}
			u.Code = v.([]byte)
		case storageKey:
			if u, jerr = get(key.addr); jerr != nil {
				return false
			}
			if u.Storage == nil {
				u.Storage = make(map[helix.Bytes32]rlp.RawValue)
			}
			u.Storage[key.key] = v.(rlp.RawValue)
		case storageBarrierKey:
			if u, jerr = get(helix.Address(key)); jerr != nil {
				return false
			}
			// discard all storage updates and the base storage trie
			// when the barrier is met.
			u.Storage = nil
			u.Barrier = true
		}
		return true
	})
	if jerr != nil {
		return nil, jerr
	}
	return updates, nil
}

// Harvest collects the cumulative account changes of this state instance
// and rebases the in-memory caches onto them. Afterwards the state answers
// reads as if the changes were merkleized, while the actual trie work can
// happen elsewhere. The returned updates are sorted by address.
func (s *State) Harvest() ([]*AccountUpdate, error) {
	updates, err := s.collectUpdates()
	if err != nil {
		return nil, &Error{err}
	}

	for addr, u := range updates {
		co := s.cache[addr] // present, collectUpdates loaded it
		co.data = u.Data
		co.cache.code = nil
		if u.Barrier {
			co.cache.storageTrie = nil
			co.cache.storage = nil
		}
		if len(u.Storage) > 0 {
			if co.cache.storage == nil {
				co.cache.storage = make(map[helix.Bytes32]rlp.RawValue)
			}
			for k, v := range u.Storage {
				co.cache.storage[k] = v
			}
		}
		if len(u.Code) > 0 {
			codeCache.Add(string(helix.Keccak256(u.Code).Bytes()), u.Code)
		}
	}

	// fresh working set on top of the rebased caches
	s.sm = stackedmap.New(func(key any) (any, bool, error) {
		return s.cacheGetter(key)
	})
	s.sm.Push()

	sorted := make([]*AccountUpdate, 0, len(updates))
	for _, u := range updates {
		sorted = append(sorted, u)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Address[:], sorted[j].Address[:]) < 0
	})
	return sorted, nil
}

// MergeUpdates merges per-batch updates, in order, into one cumulative set
// sorted by address. Later batches override account data, storage writes
// union up and reset at a barrier.
func MergeUpdates(batches ...[]*AccountUpdate) []*AccountUpdate {
	merged := make(map[helix.Address]*AccountUpdate)
	for _, batch := range batches {
		for _, u := range batch {
			m, ok := merged[u.Address]
			if !ok {
				cpy := *u
				if len(u.Storage) > 0 {
					cpy.Storage = make(map[helix.Bytes32]rlp.RawValue, len(u.Storage))
					for k, v := range u.Storage {
						cpy.Storage[k] = v
					}
				}
				merged[u.Address] = &cpy
				continue
			}
			m.Data = u.Data
			if u.Barrier {
				m.Barrier = true
				m.Storage = nil
			}
			if len(u.Storage) > 0 {
				if m.Storage == nil {
					m.Storage = make(map[helix.Bytes32]rlp.RawValue, len(u.Storage))
				}
				for k, v := range u.Storage {
					m.Storage[k] = v
				}
			}
			if len(u.Code) > 0 {
				m.Code = u.Code
			}
		}
	}
	sorted := make([]*AccountUpdate, 0, len(merged))
	for _, u := range merged {
		sorted = append(sorted, u)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Address[:], sorted[j].Address[:]) < 0
	})
	return sorted
}

// Stage makes a stage object to compute the resulting state root or commit
// all changes as one diff layer.
func (s *State) Stage() (*Stage, error) {
	updates, err := s.collectUpdates()
	if err != nil {
		return nil, &Error{err}
	}
	sorted := make([]*AccountUpdate, 0, len(updates))
	for _, u := range updates {
		sorted = append(sorted, u)
	}
	return newStage(s.db, s.root, sorted)
}

type (
	storageKey struct {
		addr    helix.Address
		barrier int
		key     helix.Bytes32
	}
	codeKey           helix.Address
	storageBarrierKey helix.Address
)
