// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"golang.org/x/sync/errgroup"

	"github.com/helix-chain/helix/helix"
)

// Update describes one key update of a batch. An empty Value deletes the key.
type Update struct {
	Key   []byte
	Value []byte
	Meta  []byte
}

// BatchUpdate applies all updates to the trie, partitioning them by the
// first nibble of the key across up to shards concurrent workers.
//
// Each worker owns one child subtree of the root branch, so workers never
// touch a shared node. The updated subtrees are then merged back into a
// single root branch. Batches that cannot be safely partitioned (empty or
// non-branch root, fewer than two populated partitions, or a delete that
// collapses the root branch) fall back to sequential application, which is
// always correct.
func (t *Trie) BatchUpdate(updates []Update, shards int) error {
	if shards < 2 || len(updates) < 2 {
		return t.applySequential(updates)
	}

	var parts [16][]Update
	nonEmpty := 0
	for _, u := range updates {
		nibble := keybytesToHex(u.Key)[0]
		if len(parts[nibble]) == 0 {
			nonEmpty++
		}
		parts[nibble] = append(parts[nibble], u)
	}
	if nonEmpty < 2 {
		return t.applySequential(updates)
	}

	// The root branch must be loaded and populated for partitioning
	// to make sense.
	root, err := t.resolve(t.root, nil)
	if err != nil {
		return err
	}
	t.root = root
	rootBranch, ok := root.(*fullNode)
	if !ok {
		return t.applySequential(updates)
	}

	var (
		g       errgroup.Group
		results [16]node
		redo    bool
	)
	g.SetLimit(shards)
	for i := range parts {
		if len(parts[i]) == 0 {
			continue
		}
		i := i
		g.Go(func() error {
			w := &Trie{root: rootBranch, db: t.db}
			for _, u := range parts[i] {
				if err := w.Update(u.Key, u.Value, u.Meta); err != nil {
					return err
				}
			}
			results[i] = w.root
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	merged := rootBranch.copy()
	merged.flags = t.newFlag()
	for i := range parts {
		if len(parts[i]) == 0 {
			continue
		}
		branch, ok := results[i].(*fullNode)
		if !ok {
			// A delete collapsed the worker's root branch.
			redo = true
			break
		}
		merged.Children[i] = branch.Children[i]
	}
	if !redo {
		// The merged branch may have been drained below two children
		// by deletes split across workers.
		children := 0
		for _, c := range merged.Children {
			if c != nil {
				children++
			}
		}
		redo = children < 2
	}
	if redo {
		t.root = root
		return t.applySequential(updates)
	}
	t.root = merged
	return nil
}

// CommitBatch hashes and stores the dirty subtrees hanging off the root
// branch with up to shards concurrent workers, then commits the root.
// db must be safe for concurrent use. A trie without a populated root
// branch commits sequentially.
func (t *Trie) CommitBatch(db DatabaseWriter, shards int) (helix.Bytes32, error) {
	rootBranch, ok := t.root.(*fullNode)
	if !ok || shards < 2 {
		return t.Commit(db)
	}

	cached := rootBranch.copy()
	var g errgroup.Group
	g.SetLimit(shards)
	for i := 0; i < 16; i++ {
		child := rootBranch.Children[i]
		if child == nil {
			continue
		}
		if hash, dirty := child.cache(); hash != nil && !dirty {
			continue
		}
		i, child := i, child
		g.Go(func() error {
			h := newHasher()
			defer returnHasherToPool(h)
			_, c, err := h.hash(child, db, []byte{byte(i)}, false)
			if err != nil {
				return err
			}
			cached.Children[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return helix.Bytes32{}, err
	}
	// Clean children short-circuit on their memoized hashes, so this
	// final pass only encodes and stores the root.
	t.root = cached
	return t.Commit(db)
}

func (t *Trie) applySequential(updates []Update) error {
	for _, u := range updates {
		if err := t.Update(u.Key, u.Value, u.Meta); err != nil {
			return err
		}
	}
	return nil
}
