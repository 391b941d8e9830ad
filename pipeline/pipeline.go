// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package pipeline drives block execution: transactions run sequentially
// against the working set while harvested update batches stream to a
// concurrent merkleizer, which folds them into the tries and seals the
// block's diff layer.
package pipeline

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/helix-chain/helix/co"
	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/log"
	"github.com/helix-chain/helix/metrics"
	"github.com/helix-chain/helix/muxdb"
	"github.com/helix-chain/helix/runtime"
	"github.com/helix-chain/helix/state"
	"github.com/helix-chain/helix/tx"
)

var logger = log.WithContext("pkg", "pipeline")

var (
	metricExecutedTxs   = metrics.LazyLoadCounter("pipeline_executed_tx_count")
	metricBlockDuration = metrics.LazyLoadHistogram("pipeline_block_duration_ms", metrics.Bucket10s)
)

// ErrRootMismatch is returned when the merkleized root disagrees with the
// expected one. It poisons the pipeline: a state divergence must halt
// further commits.
var ErrRootMismatch = errors.New("state root mismatch")

// Status is the lifecycle phase of a block passing through the pipeline.
type Status int

const (
	// StatusExecuting means transactions are running.
	StatusExecuting Status = iota
	// StatusAwaitingMerkleFlush means execution finished and the block
	// waits for the merkleizer to drain the batch queue.
	StatusAwaitingMerkleFlush
	// StatusMerkleizing means the tries are being updated and hashed.
	StatusMerkleizing
	// StatusCommitted means the block's layer is sealed.
	StatusCommitted
)

func (s Status) String() string {
	switch s {
	case StatusExecuting:
		return "executing"
	case StatusAwaitingMerkleFlush:
		return "awaiting-merkle-flush"
	case StatusMerkleizing:
		return "merkleizing"
	case StatusCommitted:
		return "committed"
	}
	return "unknown"
}

// Options tunes the pipeline. The defaults are observed to work, not
// proven optimal.
type Options struct {
	// TxsPerBatch is the number of transactions executed between harvests
	// when the merkleizer is keeping up.
	TxsPerBatch int
	// QueueDepth bounds the batch queue; a full queue blocks execution,
	// which is accepted backpressure.
	QueueDepth int
	// ShardCount is the number of workers merkleizing the account trie,
	// matching the trie's branching factor when a power of two.
	ShardCount int
}

// DefaultOptions returns the default tuning.
func DefaultOptions() Options {
	return Options{
		TxsPerBatch: 5,
		QueueDepth:  4,
		ShardCount:  16,
	}
}

func (o *Options) sanitize() {
	if o.TxsPerBatch < 1 {
		o.TxsPerBatch = 1
	}
	if o.QueueDepth < 1 {
		o.QueueDepth = 1
	}
	if o.ShardCount < 1 {
		o.ShardCount = 1
	}
}

// Result is the outcome of one executed block.
type Result struct {
	Status        Status
	Root          helix.Bytes32
	Receipts      tx.Receipts
	GasUsed       uint64
	Batches       int
	LayersFlushed int
}

// Pipeline executes blocks on top of a layered state database. It is
// single-writer: blocks pass through one at a time, each on top of the
// previous root.
type Pipeline struct {
	db         *muxdb.MuxDB
	stater     *state.Stater
	forkConfig helix.ForkConfig
	opts       Options

	mu    sync.Mutex
	fatal error
}

// New creates a pipeline over the database.
func New(db *muxdb.MuxDB, forkConfig helix.ForkConfig, opts Options) *Pipeline {
	opts.sanitize()
	return &Pipeline{
		db:         db,
		stater:     state.NewStater(db),
		forkConfig: forkConfig,
		opts:       opts,
	}
}

// ExecuteBlock runs the transactions on top of parentRoot within the
// block context and seals the resulting diff layer. When expectedRoot is
// non-nil the merkleized root is checked against it; a mismatch is fatal
// for the whole pipeline.
//
// An execution error aborts the block leaving nothing durable.
func (p *Pipeline) ExecuteBlock(parentRoot helix.Bytes32, ctx *runtime.Context, txs tx.Transactions, expectedRoot *helix.Bytes32) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fatal != nil {
		return nil, errors.Wrap(p.fatal, "pipeline poisoned")
	}

	started := time.Now()
	result := &Result{Status: StatusExecuting}

	st := p.stater.NewState(parentRoot)
	rt := runtime.New(st, ctx, p.forkConfig)

	var (
		batches = make(chan []*state.AccountUpdate, p.opts.QueueDepth)
		stage   = state.NewStage(p.db, parentRoot)
		goes    co.Goes
		drained co.Signal
		merkErr error
	)
	// the merkleizer folds batches into the tries while execution keeps
	// running; only the final hash and commit wait for it
	goes.Go(func() {
		for batch := range batches {
			if merkErr == nil {
				merkErr = stage.Apply(batch)
			}
			if len(batches) == 0 {
				drained.Signal()
			}
		}
	})

	harvest := func() error {
		updates, err := st.Harvest()
		if err != nil {
			return err
		}
		if len(updates) > 0 {
			result.Batches++
			batches <- updates
		}
		return nil
	}

	execErr := func() error {
		waiter := drained.NewWaiter()
		for i, trx := range txs {
			receipt, err := rt.ExecuteTransaction(trx)
			if err != nil {
				return errors.Wrapf(err, "tx %d", i)
			}
			result.Receipts = append(result.Receipts, receipt)
			result.GasUsed = receipt.CumulativeGasUsed
			metricExecutedTxs().Add(1)

			// harvest on the batch boundary, or early when the
			// merkleizer signaled it drained the queue
			idle := false
			select {
			case <-waiter.C():
				idle = true
			default:
			}
			if (i+1)%p.opts.TxsPerBatch == 0 || idle {
				if err := harvest(); err != nil {
					return err
				}
			}
		}
		return harvest()
	}()
	if execErr != nil {
		close(batches)
		goes.Wait()
		return nil, execErr
	}

	result.Status = StatusAwaitingMerkleFlush
	close(batches)
	goes.Wait()
	if merkErr != nil {
		return nil, p.poison(errors.Wrap(merkErr, "merkleize"))
	}

	result.Status = StatusMerkleizing
	if result.Batches == 0 {
		// no state change: the block keeps the parent root and no layer
		// is created
		result.Root = parentRoot
		result.Status = StatusCommitted
		metricBlockDuration().Observe(time.Since(started).Milliseconds())
		return result, nil
	}

	root := stage.Hash()
	if expectedRoot != nil && root != *expectedRoot {
		logger.Crit("state root mismatch",
			"parent", parentRoot.AbbrevString(),
			"computed", root.AbbrevString(),
			"expected", expectedRoot.AbbrevString(),
		)
		return nil, p.poison(ErrRootMismatch)
	}
	if _, err := stage.Commit(p.opts.ShardCount); err != nil {
		return nil, p.poison(errors.Wrap(err, "commit layer"))
	}
	result.Root = root

	// flush the oldest layers out to the durable engine once the chain
	// outgrows its thresholds
	if flushRoot, ok := p.db.Committable(root); ok {
		flushed, err := p.db.CommitLayers(flushRoot)
		if err != nil {
			return nil, p.poison(errors.Wrap(err, "flush layers"))
		}
		result.LayersFlushed = flushed
	}

	result.Status = StatusCommitted
	metricBlockDuration().Observe(time.Since(started).Milliseconds())
	logger.Debug("block committed",
		"txs", len(txs),
		"batches", result.Batches,
		"root", root.AbbrevString(),
		"elapsed", time.Since(started),
	)
	return result, nil
}

// poison latches a fatal error; every later ExecuteBlock fails fast.
func (p *Pipeline) poison(err error) error {
	p.fatal = err
	return err
}
