// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helix-chain/helix/co"
)

func TestParallel(t *testing.T) {
	var count atomic.Uint32
	co.Parallel(0, func(enqueue co.Enqueue) {
		for i := 0; i < 100; i++ {
			enqueue(func() {
				count.Add(1)
			})
		}
	})
	assert.Equal(t, uint32(100), count.Load())
}

func TestParallelFixedWorkers(t *testing.T) {
	var count atomic.Uint32
	co.Parallel(4, func(enqueue co.Enqueue) {
		for i := 0; i < 64; i++ {
			enqueue(func() {
				count.Add(1)
			})
		}
	})
	assert.Equal(t, uint32(64), count.Load())
}
