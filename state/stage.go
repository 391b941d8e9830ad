// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"golang.org/x/sync/errgroup"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/muxdb"
)

// Stage abstracts the merkleization of a state transition. Updates are
// folded into fresh trie handles so that Hash and Commit never disturb
// the originating state instance.
type Stage struct {
	db      *muxdb.MuxDB
	root    helix.Bytes32 // parent state root
	accTrie *muxdb.Trie
	storage map[helix.Address]*muxdb.Trie // live storage tries, spanning Apply calls
	codes   map[string][]byte
}

// NewStage makes an empty stage on top of the state at root.
//
// It pairs with State.Harvest: execution harvests updates and keeps
// going, while the harvested batches are folded in with Apply, possibly
// on another goroutine. Apply calls must not overlap each other or
// Hash/Commit.
func NewStage(db *muxdb.MuxDB, root helix.Bytes32) *Stage {
	return &Stage{
		db:      db,
		root:    root,
		accTrie: db.NewTrie(AccountTrieName, root),
		storage: make(map[helix.Address]*muxdb.Trie),
		codes:   make(map[string][]byte),
	}
}

func newStage(db *muxdb.MuxDB, root helix.Bytes32, updates []*AccountUpdate) (*Stage, error) {
	stage := NewStage(db, root)
	if err := stage.Apply(updates); err != nil {
		return nil, err
	}
	return stage, nil
}

// Apply folds a batch of account updates into the tries. Batches apply
// in harvest order: a later update of an account overrides its data,
// while storage writes accumulate on the handle opened by the first one,
// resetting at a barrier.
func (s *Stage) Apply(updates []*AccountUpdate) error {
	for _, u := range updates {
		data := u.Data
		if u.Barrier {
			// storage restarts from scratch, whatever an earlier batch
			// staged for this account
			delete(s.storage, u.Address)
		}
		if data.IsEmpty() {
			// emptied accounts keep no storage
			delete(s.storage, u.Address)
		} else {
			sTrie := s.storage[u.Address]
			if sTrie == nil && len(u.Storage) > 0 {
				baseRoot := helix.BytesToBytes32(data.StorageRoot)
				if u.Barrier {
					baseRoot = helix.Bytes32{}
				}
				sTrie = s.db.NewTrieAt(
					StorageTrieName(helix.Keccak256(u.Address[:])),
					baseRoot,
					s.root)
				s.storage[u.Address] = sTrie
			}
			if sTrie != nil {
				for k, v := range u.Storage {
					if err := saveStorage(sTrie, k, v); err != nil {
						return &Error{err}
					}
				}
				// the account leaf always carries the up-to-date storage
				// root, even when this particular update wrote no slot
				sRoot := sTrie.Hash()
				if sRoot == helix.EmptyRootHash() {
					data.StorageRoot = nil
				} else {
					data.StorageRoot = sRoot[:]
				}
			}
		}
		if len(u.Code) > 0 {
			s.codes[string(helix.Keccak256(u.Code).Bytes())] = u.Code
		}
		if err := saveAccount(s.accTrie, u.Address, &data); err != nil {
			return &Error{err}
		}
	}
	return nil
}

// Hash computes the resulting state root without committing anything.
func (s *Stage) Hash() helix.Bytes32 {
	return s.accTrie.Hash()
}

// Commit commits the account trie and all dirty storage tries into a
// single diff layer keyed by the resulting state root, and writes the new
// codes to the code store. Trie hashing fans out over up to shards workers.
func (s *Stage) Commit(shards int) (helix.Bytes32, error) {
	builder := s.db.NewLayerBuilder()

	var group errgroup.Group
	group.SetLimit(shards)
	for _, sTrie := range s.storage {
		sTrie := sTrie
		group.Go(func() error {
			_, err := sTrie.CommitTo(builder, 1)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return helix.Bytes32{}, &Error{err}
	}

	root, err := s.accTrie.CommitTo(builder, shards)
	if err != nil {
		return helix.Bytes32{}, &Error{err}
	}
	if err := builder.Seal(s.root, root); err != nil {
		return helix.Bytes32{}, &Error{err}
	}

	if len(s.codes) > 0 {
		bulk := s.db.NewStore(codeStoreName).Bulk()
		for hash, code := range s.codes {
			if err := bulk.Put([]byte(hash), code); err != nil {
				return helix.Bytes32{}, &Error{err}
			}
		}
		if err := bulk.Write(); err != nil {
			return helix.Bytes32{}, &Error{err}
		}
	}
	return root, nil
}
