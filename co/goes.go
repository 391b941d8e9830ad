// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package co provides helpers to run and coordinate goroutines.
package co

import (
	"sync"
)

// Goes tracks a group of goroutines through their whole lifetime. The
// zero value is ready to use.
type Goes struct {
	wg sync.WaitGroup
}

// Go starts f on its own goroutine, registered with the group.
func (g *Goes) Go(f func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		f()
	}()
}

// Wait blocks until every started goroutine has returned.
func (g *Goes) Wait() {
	g.wg.Wait()
}

// Done returns a channel closed once every started goroutine has
// returned, for use in select.
func (g *Goes) Done() chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.wg.Wait()
	}()
	return done
}
