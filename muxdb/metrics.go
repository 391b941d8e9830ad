// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package muxdb

import (
	"github.com/helix-chain/helix/metrics"
)

var (
	metricCacheHitMiss = metrics.LazyLoadGaugeVec("cache_hit_miss_count", []string{"type", "event"})
	metricLayerCount   = metrics.LazyLoadGauge("layer_count")
	metricFlushedNodes = metrics.LazyLoadCounter("flushed_node_count")
	metricBloomMiss    = metrics.LazyLoadCounter("layer_bloom_miss_count")
)
