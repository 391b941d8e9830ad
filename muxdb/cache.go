// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package muxdb

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/qianbin/directcache"
)

// cache sits in front of the durable engine. Node blobs live in a
// byte-bounded direct cache, root node blobs in a small LRU keyed by
// (name, root) since the engine only keeps the latest root per trie.
type cache struct {
	nodes *directcache.Cache
	roots *lru.Cache

	nodeStats   cacheStats
	lastLogTime atomic.Int64
}

// newCache creates a cache object with the given cache size.
// Either part can be disabled by a non-positive size.
func newCache(sizeMB int, rootCap int) *cache {
	var c cache
	if sizeMB > 0 {
		c.nodes = directcache.New(sizeMB * 1024 * 1024)
	}
	if rootCap > 0 {
		c.roots, _ = lru.New(rootCap)
	}
	c.lastLogTime.Store(time.Now().UnixNano())
	return &c
}

func (c *cache) log() {
	now := time.Now().UnixNano()
	last := c.lastLogTime.Swap(now)

	if now-last > int64(time.Second*20) {
		should, hit, miss := c.nodeStats.Stats()
		if should {
			logStats("node cache stats", hit, miss)
		}
		metricCacheHitMiss().SetWithLabel(hit, map[string]string{"type": "node", "event": "hit"})
		metricCacheHitMiss().SetWithLabel(miss, map[string]string{"type": "node", "event": "miss"})
	} else {
		c.lastLogTime.CompareAndSwap(now, last)
	}
}

// AddNodeBlob adds an encoded node blob into the cache.
func (c *cache) AddNodeBlob(key, blob []byte) {
	if c.nodes != nil {
		_ = c.nodes.Set(key, blob)
	}
}

// GetNodeBlob returns the cached node blob, or nil.
func (c *cache) GetNodeBlob(key []byte) []byte {
	if c.nodes == nil {
		return nil
	}
	var blob []byte
	if c.nodes.AdvGet(key, func(val []byte) {
		blob = append([]byte(nil), val...)
	}, false) {
		if c.nodeStats.Hit()%2000 == 0 {
			c.log()
		}
		return blob
	}
	c.nodeStats.Miss()
	return nil
}

// AddRootBlob caches the root node blob of the named trie.
func (c *cache) AddRootBlob(name string, root [32]byte, blob []byte) {
	if c.roots != nil {
		c.roots.Add(rootKey{name, root}, append([]byte(nil), blob...))
	}
}

// GetRootBlob returns the cached root node blob, or nil.
func (c *cache) GetRootBlob(name string, root [32]byte) []byte {
	if c.roots == nil {
		return nil
	}
	if blob, has := c.roots.Get(rootKey{name, root}); has {
		return blob.([]byte)
	}
	return nil
}

type rootKey struct {
	name string
	root [32]byte
}

type cacheStats struct {
	hit, miss atomic.Int64
	flag      atomic.Int32
}

func (cs *cacheStats) Hit() int64  { return cs.hit.Add(1) }
func (cs *cacheStats) Miss() int64 { return cs.miss.Add(1) }

func (cs *cacheStats) Stats() (bool, int64, int64) {
	hit := cs.hit.Load()
	miss := cs.miss.Load()
	lookups := hit + miss

	hitRate := float64(0)
	if lookups > 0 {
		hitRate = float64(hit) / float64(lookups)
	}
	flag := int32(hitRate * 1000)

	return cs.flag.Swap(flag) != flag, hit, miss
}

func logStats(msg string, hit, miss int64) {
	lookups := hit + miss
	var str string
	if lookups > 0 {
		str = fmt.Sprintf("%.3f", float64(hit)/float64(lookups))
	} else {
		str = "n/a"
	}

	logger.Info(msg,
		"lookups", lookups,
		"hitrate", str,
	)
}
