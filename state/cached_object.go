// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/muxdb"
)

var codeCache, _ = lru.NewARC(512)

// cachedObject caches code and storage of an account.
type cachedObject struct {
	db   *muxdb.MuxDB
	addr helix.Address
	head helix.Bytes32 // state root the object was loaded at
	data Account

	cache struct {
		code        []byte
		storageTrie *muxdb.Trie
		storage     map[helix.Bytes32]rlp.RawValue
	}
}

func newCachedObject(db *muxdb.MuxDB, addr helix.Address, head helix.Bytes32, data *Account) *cachedObject {
	return &cachedObject{db: db, addr: addr, head: head, data: *data}
}

func (co *cachedObject) getOrCreateStorageTrie() *muxdb.Trie {
	if co.cache.storageTrie != nil {
		return co.cache.storageTrie
	}

	if len(co.data.StorageRoot) == 0 {
		return nil
	}

	// storage nodes live in layers keyed by the state root
	trie := co.db.NewTrieAt(
		StorageTrieName(helix.Keccak256(co.addr[:])),
		helix.BytesToBytes32(co.data.StorageRoot),
		co.head)

	co.cache.storageTrie = trie
	return trie
}

// GetStorage returns the storage value for the given key.
func (co *cachedObject) GetStorage(key helix.Bytes32) (rlp.RawValue, error) {
	cache := &co.cache
	// retrieve from the storage cache
	if cache.storage != nil {
		if v, ok := cache.storage[key]; ok {
			return v, nil
		}
	} else {
		cache.storage = make(map[helix.Bytes32]rlp.RawValue)
	}
	// not found in cache

	trie := co.getOrCreateStorageTrie()
	if trie == nil {
		return nil, nil
	}

	// load from trie
	v, err := loadStorage(trie, key)
	if err != nil {
		return nil, err
	}
	// put into cache
	cache.storage[key] = v
	return v, nil
}

// GetCode returns the code of the account.
func (co *cachedObject) GetCode() ([]byte, error) {
	cache := &co.cache

	if len(cache.code) > 0 {
		return cache.code, nil
	}

	if len(co.data.CodeHash) > 0 {
		// do have code
		if code, has := codeCache.Get(string(co.data.CodeHash)); has {
			return code.([]byte), nil
		}

		code, err := co.db.NewStore(codeStoreName).Get(co.data.CodeHash)
		if err != nil {
			return nil, err
		}
		codeCache.Add(string(co.data.CodeHash), code)
		cache.code = code
		return code, nil
	}
	return nil, nil
}
