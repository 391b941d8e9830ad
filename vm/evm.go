// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/helix-chain/helix/helix"
)

type (
	// CanTransferFunc is the signature of a transfer guard function.
	CanTransferFunc func(StateDB, helix.Address, *big.Int) bool
	// TransferFunc is the signature of a transfer function.
	TransferFunc func(StateDB, helix.Address, helix.Address, *big.Int)
	// GetHashFunc returns the n'th block hash in the chain.
	GetHashFunc func(uint64) helix.Bytes32
)

// Context provides the EVM with auxiliary information. Once provided it
// shouldn't be modified.
type Context struct {
	// CanTransfer returns whether the account contains sufficient ether
	// to transfer the value.
	CanTransfer CanTransferFunc
	// Transfer transfers ether from one account to the other.
	Transfer TransferFunc
	// GetHash returns the hash corresponding to n.
	GetHash GetHashFunc

	// Message information
	Origin   helix.Address
	GasPrice *big.Int

	// Block information
	Coinbase    helix.Address
	BlockNumber uint64
	Time        uint64
	GasLimit    uint64
	ChainID     uint64
	Difficulty  *big.Int
	BaseFee     *big.Int
}

// chainRules is the set of fork switches resolved at the EVM's block
// height.
type chainRules struct {
	IsConstantinople bool
	IsIstanbul       bool
	IsBerlin         bool
	IsLondon         bool
	IsShanghai       bool
}

// EVM is the execution environment of a single transaction. It runs the
// contract code of the given message against the state, with the block
// context applied. The EVM should never be reused across transactions
// and is not thread safe.
type EVM struct {
	Context
	// StateDB gives access to the underlying state
	StateDB StateDB

	chainRules chainRules
	config     Config

	// depth is the current call stack
	depth int
	// arena backs the frame memories of the whole transaction
	arena *arena

	interpreter *Interpreter
	// callGasTemp holds the gas available for the current call. This is
	// needed because the available gas is calculated in gasCall* according
	// to the 63/64 rule and later applied in opCall*.
	callGasTemp uint64
}

// NewEVM returns a new EVM. The returned EVM is not thread safe and
// should only ever be used from a single goroutine.
func NewEVM(ctx Context, statedb StateDB, forkConfig helix.ForkConfig, config Config) *EVM {
	blockNum := uint32(ctx.BlockNumber)
	evm := &EVM{
		Context: ctx,
		StateDB: statedb,
		chainRules: chainRules{
			IsConstantinople: forkConfig.IsConstantinople(blockNum),
			IsIstanbul:       forkConfig.IsIstanbul(blockNum),
			IsBerlin:         forkConfig.IsBerlin(blockNum),
			IsLondon:         forkConfig.IsLondon(blockNum),
			IsShanghai:       forkConfig.IsShanghai(blockNum),
		},
		config: config,
		arena:  &arena{},
	}
	if config.NoBaseFee || evm.BaseFee == nil {
		evm.BaseFee = new(big.Int)
	}
	evm.interpreter = newInterpreter(evm)
	return evm
}

// Interpreter returns the EVM interpreter.
func (evm *EVM) Interpreter() *Interpreter {
	return evm.interpreter
}

// Depth returns the current call stack depth.
func (evm *EVM) Depth() int {
	return evm.depth
}

// Call executes the contract associated with the addr with the given
// input as parameters. It also handles any necessary value transfer
// required and takes the necessary steps to create accounts and reverses
// the state in case of an execution error or failed value transfer.
func (evm *EVM) Call(caller ContractRef, addr helix.Address, input []byte, gas uint64, value *big.Int) (ret []byte, leftOverGas uint64, err error) {
	// Fail if we're trying to execute above the call depth limit
	if evm.depth > helix.MaxCallDepth {
		return nil, gas, ErrDepth
	}
	// Fail if we're trying to transfer more than the available balance
	if value.Sign() != 0 && !evm.CanTransfer(evm.StateDB, caller.Address(), value) {
		return nil, gas, ErrInsufficientBalance
	}
	snapshot := evm.StateDB.Snapshot()
	p, isPrecompile := evm.precompile(addr)

	if !evm.StateDB.Exist(addr) {
		if !isPrecompile && value.Sign() == 0 {
			// Calling a nonexistent account, don't do anything.
			return nil, gas, nil
		}
		evm.StateDB.CreateAccount(addr)
	}
	evm.Transfer(evm.StateDB, caller.Address(), addr, value)

	if isPrecompile {
		ret, gas, err = runPrecompiled(p, input, gas)
	} else {
		code := evm.StateDB.GetCode(addr)
		if len(code) == 0 {
			ret, err = nil, nil
		} else {
			contract := NewContract(caller, AccountRef(addr), value, gas)
			contract.SetCallCode(&addr, evm.StateDB.GetCodeHash(addr), code)
			ret, err = evm.interpreter.Run(contract, input, false)
			gas = contract.Gas
		}
	}
	// When an error was returned by the EVM or when setting the creation
	// code above we revert to the snapshot and consume any gas remaining.
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			gas = 0
		}
	}
	return ret, gas, err
}

// CallCode executes the contract associated with the addr with the given
// input as parameters. It differs from Call in that it takes the caller's
// context and the caller's address as context.
func (evm *EVM) CallCode(caller ContractRef, addr helix.Address, input []byte, gas uint64, value *big.Int) (ret []byte, leftOverGas uint64, err error) {
	if evm.depth > helix.MaxCallDepth {
		return nil, gas, ErrDepth
	}
	// Note although it's noop to transfer X ether to caller itself. But
	// if caller doesn't have enough balance, it would be an error to allow
	// over-charging itself. So the check here is necessary.
	if !evm.CanTransfer(evm.StateDB, caller.Address(), value) {
		return nil, gas, ErrInsufficientBalance
	}
	snapshot := evm.StateDB.Snapshot()

	if p, isPrecompile := evm.precompile(addr); isPrecompile {
		ret, gas, err = runPrecompiled(p, input, gas)
	} else {
		addrCopy := addr
		contract := NewContract(caller, AccountRef(caller.Address()), value, gas)
		contract.SetCallCode(&addrCopy, evm.StateDB.GetCodeHash(addrCopy), evm.StateDB.GetCode(addrCopy))
		ret, err = evm.interpreter.Run(contract, input, false)
		gas = contract.Gas
	}
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			gas = 0
		}
	}
	return ret, gas, err
}

// DelegateCall executes the contract associated with the addr with the
// given input as parameters. It reverses the state in case of an
// execution error.
//
// DelegateCall differs from CallCode in the sense that it executes the
// given address' code with the caller as context and the caller is set to
// the caller of the caller.
func (evm *EVM) DelegateCall(caller ContractRef, addr helix.Address, input []byte, gas uint64) (ret []byte, leftOverGas uint64, err error) {
	if evm.depth > helix.MaxCallDepth {
		return nil, gas, ErrDepth
	}
	snapshot := evm.StateDB.Snapshot()

	if p, isPrecompile := evm.precompile(addr); isPrecompile {
		ret, gas, err = runPrecompiled(p, input, gas)
	} else {
		addrCopy := addr
		contract := NewContract(caller, AccountRef(caller.Address()), nil, gas).AsDelegate()
		contract.SetCallCode(&addrCopy, evm.StateDB.GetCodeHash(addrCopy), evm.StateDB.GetCode(addrCopy))
		ret, err = evm.interpreter.Run(contract, input, false)
		gas = contract.Gas
	}
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			gas = 0
		}
	}
	return ret, gas, err
}

// StaticCall executes the contract associated with the addr with the
// given input as parameters while disallowing any modifications to the
// state during the call.
func (evm *EVM) StaticCall(caller ContractRef, addr helix.Address, input []byte, gas uint64) (ret []byte, leftOverGas uint64, err error) {
	if evm.depth > helix.MaxCallDepth {
		return nil, gas, ErrDepth
	}
	snapshot := evm.StateDB.Snapshot()

	if p, isPrecompile := evm.precompile(addr); isPrecompile {
		ret, gas, err = runPrecompiled(p, input, gas)
	} else {
		addrCopy := addr
		contract := NewContract(caller, AccountRef(addrCopy), new(big.Int), gas)
		contract.SetCallCode(&addrCopy, evm.StateDB.GetCodeHash(addrCopy), evm.StateDB.GetCode(addrCopy))
		ret, err = evm.interpreter.Run(contract, input, true)
		gas = contract.Gas
	}
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			gas = 0
		}
	}
	return ret, gas, err
}

// create creates a new contract using code as deployment code.
func (evm *EVM) create(caller ContractRef, code []byte, gas uint64, value *big.Int, address helix.Address) ([]byte, helix.Address, uint64, error) {
	// Depth check execution. Fail if we're trying to execute above the
	// limit.
	if evm.depth > helix.MaxCallDepth {
		return nil, helix.Address{}, gas, ErrDepth
	}
	if !evm.CanTransfer(evm.StateDB, caller.Address(), value) {
		return nil, helix.Address{}, gas, ErrInsufficientBalance
	}
	nonce := evm.StateDB.GetNonce(caller.Address())
	if nonce+1 < nonce {
		return nil, helix.Address{}, gas, ErrNonceUintOverflow
	}
	evm.StateDB.SetNonce(caller.Address(), nonce+1)

	// The created address is warmed up before executing anything, even if
	// the creation fails.
	if evm.chainRules.IsBerlin {
		evm.StateDB.AddAddressToAccessList(address)
	}
	// Ensure there's no existing contract already at the designated address
	contractHash := evm.StateDB.GetCodeHash(address)
	if evm.StateDB.GetNonce(address) != 0 || (!contractHash.IsZero() && contractHash != helix.EmptyCodeHash()) {
		return nil, helix.Address{}, 0, ErrContractAddressCollision
	}
	// Create a new account on the state
	snapshot := evm.StateDB.Snapshot()
	evm.StateDB.CreateAccount(address)
	evm.StateDB.SetNonce(address, 1)
	evm.Transfer(evm.StateDB, caller.Address(), address, value)

	// Initialise a new contract and set the code that is to be used by
	// the EVM. The contract is a scoped environment for this execution
	// context only.
	contract := NewContract(caller, AccountRef(address), value, gas)
	contract.SetCallCode(&address, helix.Keccak256(code), code)

	ret, err := evm.interpreter.Run(contract, nil, false)

	// Check whether the max code size has been exceeded, assign err if
	// the case.
	if err == nil && len(ret) > helix.MaxCodeSize {
		err = ErrMaxCodeSizeExceeded
	}
	// if the contract creation ran successfully and no errors were
	// returned calculate the gas required to store the code. If the code
	// could not be stored due to not enough gas set an error and let it be
	// handled by the error checking condition below.
	if err == nil {
		createDataGas := uint64(len(ret)) * CreateDataGas
		if contract.UseGas(createDataGas) {
			evm.StateDB.SetCode(address, ret)
		} else {
			err = ErrCodeStoreOutOfGas
		}
	}
	// When an error was returned by the EVM or when setting the creation
	// code above we revert to the snapshot and consume any gas remaining.
	if err != nil && err != ErrCodeStoreOutOfGas {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			contract.UseGas(contract.Gas)
		}
	}
	return ret, address, contract.Gas, err
}

// Create creates a new contract using code as deployment code.
func (evm *EVM) Create(caller ContractRef, code []byte, gas uint64, value *big.Int) (ret []byte, contractAddr helix.Address, leftOverGas uint64, err error) {
	if evm.chainRules.IsShanghai && len(code) > helix.MaxInitCodeSize {
		return nil, helix.Address{}, gas, ErrMaxInitCodeSizeExceeded
	}
	contractAddr = helix.CreateContractAddress(caller.Address(), evm.StateDB.GetNonce(caller.Address()))
	return evm.create(caller, code, gas, value, contractAddr)
}

// Create2 creates a new contract using code as deployment code.
//
// The different between Create2 with Create is Create2 uses
// keccak256(0xff ++ msg.sender ++ salt ++ keccak256(init_code))[12:]
// instead of the usual sender-and-nonce-hash as the address where the
// contract is initialized at.
func (evm *EVM) Create2(caller ContractRef, code []byte, gas uint64, endowment *big.Int, salt *uint256.Int) (ret []byte, contractAddr helix.Address, leftOverGas uint64, err error) {
	if evm.chainRules.IsShanghai && len(code) > helix.MaxInitCodeSize {
		return nil, helix.Address{}, gas, ErrMaxInitCodeSizeExceeded
	}
	codeHash := helix.Keccak256(code)
	contractAddr = helix.CreateContractAddress2(caller.Address(), helix.Bytes32(salt.Bytes32()), codeHash)
	return evm.create(caller, code, gas, endowment, contractAddr)
}
