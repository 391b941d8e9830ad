// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import (
	"runtime"
)

// Enqueue function to enqueue parallel works.
type Enqueue func(work func())

// Parallel runs a batch of work over a pool of nWorkers goroutines.
// nWorkers < 1 means one worker per CPU. It returns after all enqueued
// work has finished.
func Parallel(nWorkers int, cb func(Enqueue)) {
	if nWorkers < 1 {
		nWorkers = runtime.NumCPU()
	}
	var goes Goes
	defer goes.Wait()

	ch := make(chan func(), nWorkers*2)
	defer close(ch)

	for i := 0; i < nWorkers; i++ {
		goes.Go(func() {
			for work := range ch {
				work()
			}
		})
	}
	cb(func(work func()) { ch <- work })
}
