// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/state"
	"github.com/helix-chain/helix/tx"
	"github.com/helix-chain/helix/vm"
)

// Context is the block environment transactions execute in.
type Context struct {
	Beneficiary helix.Address
	Number      uint32
	Time        uint64
	GasLimit    uint64
	ChainID     uint64
	BaseFee     *big.Int
	GetHash     func(num uint32) helix.Bytes32
}

// Hook mutates the state around a transaction. Pre hooks run after the
// up-front checks and fee deduction, post hooks after gas settlement.
// A hook error aborts the transaction as invalid.
type Hook func(st *state.State, trx *tx.Transaction, sender helix.Address) error

// Runtime executes transactions against a working set within one block
// environment.
type Runtime struct {
	state      *state.State
	ctx        *Context
	forkConfig helix.ForkConfig
	vmConfig   vm.Config

	preHooks  []Hook
	postHooks []Hook

	cumulativeGasUsed uint64
}

// New creates a runtime for the given state and block context.
func New(st *state.State, ctx *Context, forkConfig helix.ForkConfig) *Runtime {
	return &Runtime{
		state:      st,
		ctx:        ctx,
		forkConfig: forkConfig,
	}
}

// SetVMConfig sets the vm config, for call simulations.
func (rt *Runtime) SetVMConfig(config vm.Config) *Runtime {
	rt.vmConfig = config
	return rt
}

// AddPreHook appends a hook run before execution of every transaction.
func (rt *Runtime) AddPreHook(h Hook) *Runtime {
	rt.preHooks = append(rt.preHooks, h)
	return rt
}

// AddPostHook appends a hook run after execution of every transaction.
func (rt *Runtime) AddPostHook(h Hook) *Runtime {
	rt.postHooks = append(rt.postHooks, h)
	return rt
}

// State returns the backing working set.
func (rt *Runtime) State() *state.State {
	return rt.state
}

// Context returns the block context.
func (rt *Runtime) Context() *Context {
	return rt.ctx
}

func (rt *Runtime) newEVM(statedb *Statedb, origin helix.Address, gasPrice *big.Int) *vm.EVM {
	getHash := rt.ctx.GetHash
	if getHash == nil {
		getHash = func(uint32) helix.Bytes32 { return helix.Bytes32{} }
	}
	return vm.NewEVM(vm.Context{
		CanTransfer: func(db vm.StateDB, addr helix.Address, amount *big.Int) bool {
			return db.GetBalance(addr).Cmp(amount) >= 0
		},
		Transfer: func(db vm.StateDB, sender, recipient helix.Address, amount *big.Int) {
			if amount.Sign() == 0 {
				return
			}
			db.SubBalance(sender, amount)
			db.AddBalance(recipient, amount)
		},
		GetHash:     func(num uint64) helix.Bytes32 { return getHash(uint32(num)) },
		Origin:      origin,
		GasPrice:    gasPrice,
		Coinbase:    rt.ctx.Beneficiary,
		BlockNumber: uint64(rt.ctx.Number),
		Time:        rt.ctx.Time,
		GasLimit:    rt.ctx.GasLimit,
		ChainID:     rt.ctx.ChainID,
		Difficulty:  new(big.Int),
		BaseFee:     rt.ctx.BaseFee,
	}, statedb, rt.forkConfig, rt.vmConfig)
}

// ExecuteTransaction validates and executes the transaction, settles gas
// and returns its receipt. A vm halt produces a failed receipt whose only
// state effect is gas movement; a returned error means the transaction is
// invalid and must not be included, leaving the state untouched.
func (rt *Runtime) ExecuteTransaction(trx *tx.Transaction) (*tx.Receipt, error) {
	sender, err := trx.Sender()
	if err != nil {
		return nil, errors.Wrap(err, "resolve sender")
	}
	if trx.ChainID() != rt.ctx.ChainID {
		return nil, errors.Errorf("chain id mismatch: tx %d, chain %d", trx.ChainID(), rt.ctx.ChainID)
	}
	intrinsic, err := trx.IntrinsicGas()
	if err != nil {
		return nil, err
	}
	if trx.Gas() < intrinsic {
		return nil, errors.Errorf("intrinsic gas too low: have %d, want %d", trx.Gas(), intrinsic)
	}

	// validity checks happen against a checkpoint so a late failure,
	// including a failing hook, leaves no trace
	checkpoint := rt.state.NewCheckpoint()
	receipt, err := rt.executeTransaction(trx, sender, intrinsic)
	if err != nil {
		rt.state.RevertTo(checkpoint)
		return nil, err
	}
	rt.cumulativeGasUsed += receipt.GasUsed
	receipt.CumulativeGasUsed = rt.cumulativeGasUsed
	return receipt, nil
}

func (rt *Runtime) executeTransaction(trx *tx.Transaction, sender helix.Address, intrinsic uint64) (*tx.Receipt, error) {
	nonce, err := rt.state.GetNonce(sender)
	if err != nil {
		return nil, err
	}
	if trx.Nonce() != nonce {
		return nil, errors.Errorf("invalid nonce: have %d, want %d", trx.Nonce(), nonce)
	}

	gasPrice := trx.GasPrice()
	prepaid := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(trx.Gas()))
	cost := new(big.Int).Add(prepaid, trx.Value())
	balance, err := rt.state.GetBalance(sender)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(cost) < 0 {
		return nil, errors.Errorf("insufficient balance: have %s, want %s", balance, cost)
	}
	// buy gas
	if err := rt.state.SetBalance(sender, new(big.Int).Sub(balance, prepaid)); err != nil {
		return nil, err
	}

	for _, h := range rt.preHooks {
		if err := h(rt.state, trx, sender); err != nil {
			return nil, errors.Wrap(err, "pre hook")
		}
	}

	statedb := NewStatedb(rt.state)
	rt.warmup(statedb, trx, sender)
	evm := rt.newEVM(statedb, sender, gasPrice)

	var (
		leftOverGas     uint64
		vmErr           error
		contractAddress *helix.Address
		isShanghai      = rt.forkConfig.IsShanghai(rt.ctx.Number)
	)
	if to := trx.To(); to != nil {
		if err := rt.state.SetNonce(sender, nonce+1); err != nil {
			return nil, err
		}
		_, leftOverGas, vmErr = evm.Call(vm.AccountRef(sender), *to, trx.Data(), trx.Gas()-intrinsic, trx.Value())
	} else {
		if isShanghai && len(trx.Data()) > helix.MaxInitCodeSize {
			return nil, errors.Errorf("init code too large: %d", len(trx.Data()))
		}
		var created helix.Address
		_, created, leftOverGas, vmErr = evm.Create(vm.AccountRef(sender), trx.Data(), trx.Gas()-intrinsic, trx.Value())
		if vmErr == nil {
			contractAddress = &created
		}
	}
	if err := statedb.Err(); err != nil {
		return nil, err
	}

	gasUsed := trx.Gas() - leftOverGas
	// apply refund, capped to a quotient of the gas actually used
	refundQuotient := uint64(2)
	if rt.forkConfig.IsLondon(rt.ctx.Number) {
		refundQuotient = 5
	}
	if refund := min64(statedb.GetRefund(), gasUsed/refundQuotient); refund > 0 {
		gasUsed -= refund
		leftOverGas += refund
	}

	// return remaining gas to the sender and pay the beneficiary
	remaining := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(leftOverGas))
	senderBalance, err := rt.state.GetBalance(sender)
	if err != nil {
		return nil, err
	}
	if err := rt.state.SetBalance(sender, new(big.Int).Add(senderBalance, remaining)); err != nil {
		return nil, err
	}
	fee := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasUsed))
	beneficiaryBalance, err := rt.state.GetBalance(rt.ctx.Beneficiary)
	if err != nil {
		return nil, err
	}
	if err := rt.state.SetBalance(rt.ctx.Beneficiary, new(big.Int).Add(beneficiaryBalance, fee)); err != nil {
		return nil, err
	}

	receipt := &tx.Receipt{
		Status:          tx.StatusSucceeded,
		GasUsed:         gasUsed,
		ContractAddress: contractAddress,
	}
	if vmErr != nil {
		receipt.Status = tx.StatusFailed
	} else {
		statedb.ApplySelfdestructs()
		receipt.Logs = statedb.GetLogs()
	}
	if err := statedb.Err(); err != nil {
		return nil, err
	}

	for _, h := range rt.postHooks {
		if err := h(rt.state, trx, sender); err != nil {
			return nil, errors.Wrap(err, "post hook")
		}
	}
	return receipt, nil
}

// warmup seeds the access list per EIP-2929/2930: origin, target, the
// precompile addresses and the tx access list start warm.
func (rt *Runtime) warmup(statedb *Statedb, trx *tx.Transaction, sender helix.Address) {
	if !rt.forkConfig.IsBerlin(rt.ctx.Number) {
		return
	}
	statedb.AddAddressToAccessList(sender)
	if to := trx.To(); to != nil {
		statedb.AddAddressToAccessList(*to)
	}
	for i := byte(1); i <= 9; i++ {
		statedb.AddAddressToAccessList(helix.BytesToAddress([]byte{i}))
	}
	if rt.forkConfig.IsShanghai(rt.ctx.Number) {
		// EIP-3651: warm coinbase
		statedb.AddAddressToAccessList(rt.ctx.Beneficiary)
	}
	for _, tuple := range trx.AccessList() {
		statedb.AddAddressToAccessList(tuple.Address)
		for _, key := range tuple.StorageKeys {
			statedb.AddSlotToAccessList(tuple.Address, key)
		}
	}
}

func min64(x, y uint64) uint64 {
	if x < y {
		return x
	}
	return y
}
