// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

// Config are the configuration options for the Interpreter.
type Config struct {
	// NoBaseFee forces the BASEFEE opcode to evaluate as if the base fee
	// were zero. Used by call simulations.
	NoBaseFee bool
}

// ScopeContext contains the things that are per-call, such as stack and
// memory, but not transients like pc and gas.
type ScopeContext struct {
	Memory   *Memory
	Stack    *Stack
	Contract *Contract
}

// Interpreter runs contract bytecode against the EVM's state.
type Interpreter struct {
	evm   *EVM
	table *JumpTable

	readOnly   bool   // whether to throw on stateful modifications
	returnData []byte // last CALL's return data for subsequent reuse
}

func newInterpreter(evm *EVM) *Interpreter {
	var table JumpTable
	switch {
	case evm.chainRules.IsShanghai:
		table = newShanghaiInstructionSet()
	case evm.chainRules.IsLondon:
		table = newLondonInstructionSet()
	case evm.chainRules.IsBerlin:
		table = newBerlinInstructionSet()
	case evm.chainRules.IsIstanbul:
		table = newIstanbulInstructionSet()
	case evm.chainRules.IsConstantinople:
		table = newConstantinopleInstructionSet()
	default:
		table = newByzantiumInstructionSet()
	}
	return &Interpreter{evm: evm, table: &table}
}

// Run loops and evaluates the contract's code with the given input data
// and returns the return byte-slice and an error if one occurred.
//
// It's important to note that any errors returned by the interpreter
// should be considered a revert-and-consume-all-gas operation except for
// ErrExecutionReverted which means revert-and-keep-gas-left.
func (in *Interpreter) Run(contract *Contract, input []byte, readOnly bool) (ret []byte, err error) {
	// Increment the call depth which is restricted to 1024
	in.evm.depth++
	defer func() { in.evm.depth-- }()

	// Make sure the readOnly is only set if we aren't in readOnly yet.
	// This also makes sure that the readOnly flag isn't removed for child
	// calls.
	if readOnly && !in.readOnly {
		in.readOnly = true
		defer func() { in.readOnly = false }()
	}

	// Reset the previous call's return data. It's unimportant to preserve
	// the old buffer as every returning call will return new data anyway.
	in.returnData = nil

	// Don't bother with the execution if there's no code.
	if len(contract.Code) == 0 {
		return nil, nil
	}

	var (
		op          OpCode // current opcode
		mem         = newFrameMemory(in.evm.arena)
		stack       = newStack()
		callContext = &ScopeContext{
			Memory:   mem,
			Stack:    stack,
			Contract: contract,
		}
		// For optimisation reason we're using uint64 as the program counter.
		// It's theoretically possible to go above 2^64. The YP defines the
		// PC to be uint256. Practically much less so feasible.
		pc   = uint64(0)
		cost uint64
		res  []byte // result of the opcode execution function
	)
	contract.Input = input

	defer func() {
		mem.release()
		returnStack(stack)
	}()

	for {
		op = contract.GetOp(pc)
		operation := in.table[op]
		cost = operation.constantGas // For tracing
		// Validate stack
		if sLen := stack.len(); sLen < operation.minStack {
			return nil, ErrStackUnderflow{stackLen: sLen, required: operation.minStack}
		} else if sLen > operation.maxStack {
			return nil, ErrStackOverflow{stackLen: sLen, limit: operation.maxStack}
		}
		if !contract.UseGas(cost) {
			return nil, ErrOutOfGas
		}
		// Writes in a static context halt before any state is touched.
		if in.readOnly && in.isStateModifying(op, stack) {
			return nil, ErrWriteProtection
		}
		if operation.dynamicGas != nil {
			// All ops with a dynamic memory usage also have a dynamic gas
			// cost.
			var memorySize uint64
			// calculate the new memory size and expand the memory to fit
			// the operation
			// Memory check needs to be done prior to evaluating the
			// dynamic gas portion, to detect calculation overflows
			if operation.memorySize != nil {
				memSize, overflow := operation.memorySize(stack)
				if overflow {
					return nil, ErrGasUintOverflow
				}
				// memory is expanded in words of 32 bytes. Gas is also
				// calculated in words.
				if memorySize, overflow = safeMul(toWordSize(memSize), 32); overflow {
					return nil, ErrGasUintOverflow
				}
			}
			// Consume the gas and return an error if not enough gas is
			// available. The cost is explicitly set so that the capture
			// state defer method can get the proper cost.
			var dynamicCost uint64
			dynamicCost, err = operation.dynamicGas(in.evm, contract, stack, mem, memorySize)
			cost += dynamicCost // for tracing
			if err != nil || !contract.UseGas(dynamicCost) {
				return nil, ErrOutOfGas
			}
			if memorySize > 0 {
				mem.Resize(memorySize)
			}
		}
		// execute the operation
		res, err = operation.execute(&pc, in, callContext)
		if err != nil {
			break
		}
		pc++
	}

	if err == errStopToken {
		err = nil // clear stop token error
	}
	if err == ErrExecutionReverted || err == nil {
		// Return data must outlive the frame's memory window.
		ret = append([]byte(nil), res...)
	}
	return ret, err
}

// isStateModifying reports whether op would modify state, so that a
// static call can be rejected before execution. CALL with a non-zero
// value counts as modifying.
func (in *Interpreter) isStateModifying(op OpCode, stack *Stack) bool {
	switch op {
	case SSTORE, CREATE, CREATE2, SELFDESTRUCT, LOG0, LOG1, LOG2, LOG3, LOG4:
		return true
	case CALL:
		return stack.len() >= 3 && !stack.Back(2).IsZero()
	default:
		return false
	}
}
