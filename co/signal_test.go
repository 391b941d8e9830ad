// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/helix-chain/helix/co"
)

func TestSignalBroadcastBefore(t *testing.T) {
	var sig co.Signal
	sig.Broadcast()
	w := sig.NewWaiter()
	select {
	case <-w.C():
		t.Fatal("should not receive signal broadcast before waiter created")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSignalBroadcastAfter(t *testing.T) {
	var sig co.Signal
	ws := make([]co.Waiter, 0, 10)
	for i := 0; i < 10; i++ {
		ws = append(ws, sig.NewWaiter())
	}
	sig.Broadcast()
	for _, w := range ws {
		select {
		case v := <-w.C():
			assert.False(t, v)
		case <-time.After(20 * time.Millisecond):
			t.Fatal("should receive broadcast")
		}
	}
}

func TestSignal(t *testing.T) {
	var sig co.Signal
	w := sig.NewWaiter()
	sig.Signal()
	select {
	case v := <-w.C():
		assert.True(t, v)
	case <-time.After(20 * time.Millisecond):
		t.Fatal("should receive signal")
	}
}
