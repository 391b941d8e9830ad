// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package muxdb implements the storage layer of the state engine.
// It multiplexes a single durable key-value engine into managed tries and
// general purpose named kv-stores, and keeps recent trie writes in a chain
// of in-memory diff layers that flush in bulk.
package muxdb

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	dberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/kv"
	"github.com/helix-chain/helix/log"
)

var logger = log.WithContext("pkg", "muxdb")

const (
	trieNodeSpace   = byte(0) // the key space for trie nodes.
	trieLeafSpace   = byte(1) // the key space for the trie leaf table.
	namedStoreSpace = byte(3) // the key space for named stores.
)

const (
	propStoreName  = "muxdb.props"
	flushedHeadKey = "flushed-head"
)

// Options optional parameters for MuxDB.
type Options struct {
	// TrieNodeCacheSizeMB is the size of the cache for trie node blobs.
	TrieNodeCacheSizeMB int
	// TrieRootCacheCapacity is the capacity of the cache for trie root nodes.
	TrieRootCacheCapacity int

	// MaxLayers bounds the length of the diff layer chain. A chain growing
	// beyond it makes the oldest layer committable. Defaults to 128.
	MaxLayers int
	// MaxLayerBytes bounds the estimated memory held by the layer chain.
	// Defaults to 512MiB.
	MaxLayerBytes uint64

	// OpenFilesCacheCapacity is the capacity of open files caching for underlying database.
	OpenFilesCacheCapacity int
	// ReadCacheMB is the size of read cache for underlying database.
	ReadCacheMB int
	// WriteBufferMB is the size of write buffer for underlying database.
	WriteBufferMB int
}

const (
	defaultMaxLayers     = 128
	defaultMaxLayerBytes = 512 * 1024 * 1024
)

// MuxDB is the database to efficiently store the state tries and other
// chain data.
type MuxDB struct {
	engine  engine
	cache   *cache
	layers  *layerMap
	head    atomic.Pointer[helix.Bytes32]
	propKVS kv.Store
}

// Open opens or creates DB at the given path.
func Open(path string, options *Options) (*MuxDB, error) {
	// prepare leveldb options
	ldbOpts := opt.Options{
		OpenFilesCacheCapacity: options.OpenFilesCacheCapacity,
		BlockCacheCapacity:     options.ReadCacheMB * opt.MiB,
		WriteBuffer:            options.WriteBufferMB * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
		BlockSize:              1024 * 32, // balance performance of point reads and compression ratio.
		CompactionTableSize:    4 * opt.MiB,
	}

	// open leveldb
	ldb, err := leveldb.OpenFile(path, &ldbOpts)
	if _, corrupted := err.(*dberrors.ErrCorrupted); corrupted {
		ldb, err = leveldb.RecoverFile(path, &ldbOpts)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open leveldb")
	}

	db := newMuxDB(newLevelEngine(ldb), options)
	if err := db.loadFlushedHead(); err != nil {
		_ = ldb.Close()
		return nil, err
	}
	return db, nil
}

// NewMem creates a memory-backed DB, for tests.
func NewMem() *MuxDB {
	ldb, _ := leveldb.Open(storage.NewMemStorage(), nil)
	return newMuxDB(newLevelEngine(ldb), &Options{
		MaxLayers:     8,
		MaxLayerBytes: 16 * 1024 * 1024,
	})
}

func newMuxDB(engine engine, options *Options) *MuxDB {
	maxLayers := options.MaxLayers
	if maxLayers <= 0 {
		maxLayers = defaultMaxLayers
	}
	maxBytes := options.MaxLayerBytes
	if maxBytes == 0 {
		maxBytes = defaultMaxLayerBytes
	}
	db := &MuxDB{
		engine: engine,
		cache:  newCache(options.TrieNodeCacheSizeMB, options.TrieRootCacheCapacity),
		layers: newLayerMap(maxLayers, maxBytes),
	}
	db.propKVS = kv.Bucket(string(namedStoreSpace) + propStoreName).NewStore(engine)
	db.head.Store(&helix.Bytes32{})
	return db
}

func (db *MuxDB) loadFlushedHead() error {
	val, err := db.propKVS.Get([]byte(flushedHeadKey))
	if err != nil {
		if db.propKVS.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "load flushed head")
	}
	head := helix.BytesToBytes32(val)
	db.head.Store(&head)
	return nil
}

// Close closes the DB.
func (db *MuxDB) Close() error {
	return db.engine.Close()
}

// FlushedHead returns the root of the newest layer flushed to the durable
// engine. A trie handle opened at this root reads straight through to disk.
func (db *MuxDB) FlushedHead() helix.Bytes32 {
	return *db.head.Load()
}

// NewTrie creates a managed trie with an existing root node.
//
// If root is the zero or empty-trie hash, the trie is initially empty.
func (db *MuxDB) NewTrie(name string, root helix.Bytes32) *Trie {
	return newTrie(db, name, root, root)
}

// NewTrieAt creates a managed trie whose layer reads start at head rather
// than at its own root. Storage tries are committed under the state root
// of their transition, so a storage handle passes that state root here.
func (db *MuxDB) NewTrieAt(name string, root, head helix.Bytes32) *Trie {
	return newTrie(db, name, root, head)
}

// LayerCount returns the number of live diff layers.
func (db *MuxDB) LayerCount() int {
	return db.layers.count()
}

// Committable reports the root of the layer that should be flushed, if the
// chain ending at head has outgrown the configured thresholds.
func (db *MuxDB) Committable(head helix.Bytes32) (helix.Bytes32, bool) {
	return db.layers.committable(head)
}

// CommitLayers flushes the layer chain ending at root into the durable
// engine as one bulk write, oldest layer first, then prunes every layer at
// least as old as the flushed top and rebuilds the membership filter.
// It returns the number of layers flushed.
func (db *MuxDB) CommitLayers(root helix.Bytes32) (int, error) {
	chain := db.layers.chain(root)
	if len(chain) == 0 {
		return 0, errors.Errorf("commit layers: unknown root %v", root)
	}

	bulk := db.engine.Bulk()
	var nodes int64
	for _, l := range chain {
		for k, v := range l.nodes {
			if err := bulk.Put([]byte(k), v); err != nil {
				return 0, errors.Wrap(err, "commit layers")
			}
			nodes++
		}
		for k, v := range l.leaves {
			if err := bulk.Put([]byte(k), v); err != nil {
				return 0, errors.Wrap(err, "commit layers")
			}
		}
	}
	top := chain[len(chain)-1]
	if err := bulk.Put(append([]byte(string(namedStoreSpace)+propStoreName), flushedHeadKey...), top.root.Bytes()); err != nil {
		return 0, errors.Wrap(err, "commit layers")
	}
	if err := bulk.Write(); err != nil {
		return 0, errors.Wrap(err, "commit layers")
	}

	db.layers.prune(top.id)
	head := top.root
	db.head.Store(&head)
	metricFlushedNodes().Add(nodes)

	logger.Debug("flushed layers",
		"count", len(chain),
		"nodes", nodes,
		"head", top.root.AbbrevString(),
	)
	return len(chain), nil
}

// PutLayer adds a pre-built diff layer resulting from the transition
// parent -> root. It is the low-level hook for callers that collect trie
// nodes themselves; Trie.Commit is the usual path.
func (db *MuxDB) PutLayer(parent, root helix.Bytes32, nodes, leaves map[string][]byte) error {
	return db.layers.put(parent, root, nodes, leaves)
}

// NewStore creates a named kv-store.
func (db *MuxDB) NewStore(name string) kv.Store {
	return kv.Bucket(string(namedStoreSpace) + name).NewStore(db.engine)
}

// IsNotFound returns if the error indicates key not found.
func (db *MuxDB) IsNotFound(err error) bool {
	return db.engine.IsNotFound(err)
}
