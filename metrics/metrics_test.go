// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopByDefault(t *testing.T) {
	_, isNoop := metrics.(*noopMetrics)
	assert.True(t, isNoop)

	// all meter kinds are usable without initialization
	Counter("test_count").Add(1)
	Gauge("test_gauge").Set(42)
	Histogram("test_hist", Bucket10s).Observe(100)
	CounterVec("test_count_vec", []string{"a"}).AddWithLabel(1, map[string]string{"a": "b"})
}

func TestLazyLoad(t *testing.T) {
	calls := 0
	get := LazyLoad(func() int {
		calls++
		return 7
	})
	assert.Equal(t, 7, get())
	assert.Equal(t, 7, get())
	assert.Equal(t, 1, calls)
}
