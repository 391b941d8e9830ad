// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"github.com/helix-chain/helix/helix"
)

// memoryGasCost calculates the quadratic gas for memory expansion.
// It does so only for the memory region that is expanded, not the total
// memory.
func memoryGasCost(mem *Memory, newMemSize uint64) (uint64, error) {
	if newMemSize == 0 {
		return 0, nil
	}
	// The maximum that can be safely used without overflow is 0x1FFFFFFFE0.
	// Anything above that will result in an overflow when calculating the
	// gas cost; the memory expansion would be paid for anyway long before.
	if newMemSize > 0x1FFFFFFFE0 {
		return 0, ErrGasUintOverflow
	}
	newMemSizeWords := toWordSize(newMemSize)
	newMemSize = newMemSizeWords * 32

	if newMemSize > uint64(mem.Len()) {
		square := newMemSizeWords * newMemSizeWords
		linCoef := newMemSizeWords * MemoryGas
		quadCoef := square / QuadCoeffDiv
		newTotalFee := linCoef + quadCoef

		fee := newTotalFee - mem.lastGasCost
		mem.lastGasCost = newTotalFee

		return fee, nil
	}
	return 0, nil
}

// memoryCopierGas creates the gas functions for the following opcodes:
// CALLDATACOPY, CODECOPY, EXTCODECOPY, RETURNDATACOPY.
func memoryCopierGas(stackpos int) gasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		// Gas for expanding the memory
		gas, err := memoryGasCost(mem, memorySize)
		if err != nil {
			return 0, err
		}
		// And gas for copying data, charged per word
		words, overflow := stack.Back(stackpos).Uint64WithOverflow()
		if overflow {
			return 0, ErrGasUintOverflow
		}
		if words, overflow = safeMul(toWordSize(words), CopyGas); overflow {
			return 0, ErrGasUintOverflow
		}
		if gas, overflow = safeAdd(gas, words); overflow {
			return 0, ErrGasUintOverflow
		}
		return gas, nil
	}
}

var (
	gasCallDataCopy   = memoryCopierGas(2)
	gasCodeCopy       = memoryCopierGas(2)
	gasExtCodeCopy    = memoryCopierGas(3)
	gasReturnDataCopy = memoryCopierGas(2)
)

func pureMemoryGascost(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return memoryGasCost(mem, memorySize)
}

var (
	gasReturn  = pureMemoryGascost
	gasRevert  = pureMemoryGascost
	gasMLoad   = pureMemoryGascost
	gasMStore8 = pureMemoryGascost
	gasMStore  = pureMemoryGascost
	gasCreate  = pureMemoryGascost
)

func gasKeccak256(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	wordGas, overflow := stack.Back(1).Uint64WithOverflow()
	if overflow {
		return 0, ErrGasUintOverflow
	}
	if wordGas, overflow = safeMul(toWordSize(wordGas), Keccak256Word); overflow {
		return 0, ErrGasUintOverflow
	}
	if gas, overflow = safeAdd(gas, wordGas); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

func gasCreate2(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	wordGas, overflow := stack.Back(2).Uint64WithOverflow()
	if overflow {
		return 0, ErrGasUintOverflow
	}
	// hashing charge of the init code
	if wordGas, overflow = safeMul(toWordSize(wordGas), Keccak256Word); overflow {
		return 0, ErrGasUintOverflow
	}
	if gas, overflow = safeAdd(gas, wordGas); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

// gasInitCodeWords charges the EIP-3860 per-word fee of the init code on
// top of the wrapped gas function.
func gasInitCodeWords(inner gasFunc, lenpos int) gasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		gas, err := inner(evm, contract, stack, mem, memorySize)
		if err != nil {
			return 0, err
		}
		size, overflow := stack.Back(lenpos).Uint64WithOverflow()
		if overflow {
			return 0, ErrGasUintOverflow
		}
		moreGas, overflow := safeMul(toWordSize(size), helix.InitCodeWordGas)
		if overflow {
			return 0, ErrGasUintOverflow
		}
		if gas, overflow = safeAdd(gas, moreGas); overflow {
			return 0, ErrGasUintOverflow
		}
		return gas, nil
	}
}

func gasExp(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	expByteLen := uint64((stack.data[stack.len()-2].BitLen() + 7) / 8)

	var (
		gas      = expByteLen * ExpByteEIP158
		overflow bool
	)
	if gas, overflow = safeAdd(gas, ExpGas); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

func makeGasLog(n uint64) gasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		requestedSize, overflow := stack.Back(1).Uint64WithOverflow()
		if overflow {
			return 0, ErrGasUintOverflow
		}
		gas, err := memoryGasCost(mem, memorySize)
		if err != nil {
			return 0, err
		}
		if gas, overflow = safeAdd(gas, LogGas); overflow {
			return 0, ErrGasUintOverflow
		}
		if gas, overflow = safeAdd(gas, n*LogTopicGas); overflow {
			return 0, ErrGasUintOverflow
		}
		var memorySizeGas uint64
		if memorySizeGas, overflow = safeMul(requestedSize, LogDataGas); overflow {
			return 0, ErrGasUintOverflow
		}
		if gas, overflow = safeAdd(gas, memorySizeGas); overflow {
			return 0, ErrGasUintOverflow
		}
		return gas, nil
	}
}

// gasSStoreLegacy is the pre-Istanbul metering: only the current value
// matters.
func gasSStoreLegacy(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	var (
		y, x    = stack.Back(1), stack.Back(0)
		current = evm.StateDB.GetState(contract.Address(), helix.Bytes32(x.Bytes32()))
	)
	value := helix.Bytes32(y.Bytes32())
	switch {
	case current.IsZero() && !value.IsZero(): // 0 => non 0
		return SstoreSetGasEIP2200, nil
	case !current.IsZero() && value.IsZero(): // non 0 => 0
		evm.StateDB.AddRefund(SstoreClearsScheduleRefundEIP2200)
		return SstoreResetGasEIP2200, nil
	default: // non 0 => non 0 (or 0 => 0)
		return SstoreResetGasEIP2200, nil
	}
}

// gasSStoreEIP2200Istanbul implements net gas metering as introduced at
// istanbul, before the berlin access-list costs reshaped the constants.
func gasSStoreEIP2200Istanbul(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	if contract.Gas <= SstoreSentryGasEIP2200 {
		return 0, ErrOutOfGas
	}
	var (
		y, x    = stack.Back(1), stack.Back(0)
		slot    = helix.Bytes32(x.Bytes32())
		current = evm.StateDB.GetState(contract.Address(), slot)
	)
	value := helix.Bytes32(y.Bytes32())

	if current == value { // noop (1)
		return SloadGasEIP1884, nil
	}
	original := evm.StateDB.GetCommittedState(contract.Address(), slot)
	if original == current {
		if original.IsZero() { // create slot (2.1.1)
			return SstoreSetGasEIP2200, nil
		}
		if value.IsZero() { // delete slot (2.1.2b)
			evm.StateDB.AddRefund(SstoreClearsScheduleRefundEIP2200)
		}
		return SstoreResetGasEIP2200, nil // write existing slot (2.1.2)
	}
	if !original.IsZero() {
		if current.IsZero() { // recreate slot (2.2.1.1)
			evm.StateDB.SubRefund(SstoreClearsScheduleRefundEIP2200)
		} else if value.IsZero() { // delete slot (2.2.1.2)
			evm.StateDB.AddRefund(SstoreClearsScheduleRefundEIP2200)
		}
	}
	if original == value {
		if original.IsZero() { // reset to original inexistent slot (2.2.2.1)
			evm.StateDB.AddRefund(SstoreSetGasEIP2200 - SloadGasEIP1884)
		} else { // reset to original existing slot (2.2.2.2)
			evm.StateDB.AddRefund(SstoreResetGasEIP2200 - SloadGasEIP1884)
		}
	}
	return SloadGasEIP1884, nil // dirty update (2.2)
}

// gasSStoreEIP2200 implements net gas metering (EIP-2200) with the clear
// refund selected per fork (EIP-3529 reduced it).
func gasSStoreEIP2200(clearRefund uint64) gasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		// The legacy gas metering only takes into consideration the
		// current state. EIP-2200 has a sentry check to protect against
		// re-entrancy attacks through low-gas sibling calls.
		if contract.Gas <= SstoreSentryGasEIP2200 {
			return 0, ErrOutOfGas
		}
		var (
			y, x    = stack.Back(1), stack.Back(0)
			slot    = helix.Bytes32(x.Bytes32())
			current = evm.StateDB.GetState(contract.Address(), slot)
		)
		value := helix.Bytes32(y.Bytes32())

		if current == value { // noop (1)
			return WarmStorageReadCostEIP2929, nil
		}
		original := evm.StateDB.GetCommittedState(contract.Address(), slot)
		if original == current {
			if original.IsZero() { // create slot (2.1.1)
				return SstoreSetGasEIP2200, nil
			}
			if value.IsZero() { // delete slot (2.1.2b)
				evm.StateDB.AddRefund(clearRefund)
			}
			// reset to original inexistent or existing slot (2.1.2)
			return SstoreResetGasEIP2200 - ColdSloadCostEIP2929, nil
		}
		if !original.IsZero() {
			if current.IsZero() { // recreate slot (2.2.1.1)
				evm.StateDB.SubRefund(clearRefund)
			} else if value.IsZero() { // delete slot (2.2.1.2)
				evm.StateDB.AddRefund(clearRefund)
			}
		}
		if original == value {
			if original.IsZero() { // reset to original inexistent slot (2.2.2.1)
				evm.StateDB.AddRefund(SstoreSetGasEIP2200 - WarmStorageReadCostEIP2929)
			} else { // reset to original existing slot (2.2.2.2)
				evm.StateDB.AddRefund((SstoreResetGasEIP2200 - ColdSloadCostEIP2929) - WarmStorageReadCostEIP2929)
			}
		}
		// dirty update (2.2)
		return WarmStorageReadCostEIP2929, nil
	}
}

// gasSStoreAccessCheck wraps the sstore gas function with the EIP-2929
// cold-slot surcharge.
func gasSStoreAccessCheck(inner gasFunc) gasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		slot := helix.Bytes32(stack.Back(0).Bytes32())
		var coldCost uint64
		if _, slotWarm := evm.StateDB.SlotInAccessList(contract.Address(), slot); !slotWarm {
			evm.StateDB.AddSlotToAccessList(contract.Address(), slot)
			coldCost = ColdSloadCostEIP2929
		}
		gas, err := inner(evm, contract, stack, mem, memorySize)
		if err != nil {
			return 0, err
		}
		var overflow bool
		if gas, overflow = safeAdd(gas, coldCost); overflow {
			return 0, ErrGasUintOverflow
		}
		return gas, nil
	}
}

// gasSLoadEIP2929 charges the warm/cold slot access cost.
func gasSLoadEIP2929(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	slot := helix.Bytes32(stack.Back(0).Bytes32())
	if _, slotWarm := evm.StateDB.SlotInAccessList(contract.Address(), slot); !slotWarm {
		evm.StateDB.AddSlotToAccessList(contract.Address(), slot)
		return ColdSloadCostEIP2929, nil
	}
	return WarmStorageReadCostEIP2929, nil
}

// gasAccountAccessEIP2929 charges the warm/cold account access cost for
// BALANCE, EXTCODESIZE, EXTCODEHASH.
func gasAccountAccessEIP2929(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	addr := helix.BytesToAddress(stack.Back(0).Bytes())
	if !evm.StateDB.AddressInAccessList(addr) {
		evm.StateDB.AddAddressToAccessList(addr)
		return ColdAccountAccessCostEIP2929, nil
	}
	return WarmStorageReadCostEIP2929, nil
}

// gasExtCodeCopyEIP2929 adds the account access cost on top of the copy
// cost.
func gasExtCodeCopyEIP2929(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := gasExtCodeCopy(evm, contract, stack, mem, memorySize)
	if err != nil {
		return 0, err
	}
	addr := helix.BytesToAddress(stack.Back(0).Bytes())
	if !evm.StateDB.AddressInAccessList(addr) {
		evm.StateDB.AddAddressToAccessList(addr)
		var overflow bool
		if gas, overflow = safeAdd(gas, ColdAccountAccessCostEIP2929); overflow {
			return 0, ErrGasUintOverflow
		}
	} else {
		var overflow bool
		if gas, overflow = safeAdd(gas, WarmStorageReadCostEIP2929); overflow {
			return 0, ErrGasUintOverflow
		}
	}
	return gas, nil
}

func gasCall(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	var (
		gas            uint64
		transfersValue = !stack.Back(2).IsZero()
		address        = helix.BytesToAddress(stack.Back(1).Bytes())
	)
	if transfersValue && evm.StateDB.Empty(address) {
		gas += CallNewAccountGas
	}
	if transfersValue {
		gas += CallValueTransferGas
	}
	memoryGas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	var overflow bool
	if gas, overflow = safeAdd(gas, memoryGas); overflow {
		return 0, ErrGasUintOverflow
	}

	evm.callGasTemp, err = callGas(contract.Gas, gas, stack.Back(0))
	if err != nil {
		return 0, err
	}
	if gas, overflow = safeAdd(gas, evm.callGasTemp); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

func gasCallCode(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	memoryGas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	var (
		gas      uint64
		overflow bool
	)
	if !stack.Back(2).IsZero() {
		gas += CallValueTransferGas
	}
	if gas, overflow = safeAdd(gas, memoryGas); overflow {
		return 0, ErrGasUintOverflow
	}
	evm.callGasTemp, err = callGas(contract.Gas, gas, stack.Back(0))
	if err != nil {
		return 0, err
	}
	if gas, overflow = safeAdd(gas, evm.callGasTemp); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

func gasDelegateOrStaticCall(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	evm.callGasTemp, err = callGas(contract.Gas, gas, stack.Back(0))
	if err != nil {
		return 0, err
	}
	var overflow bool
	if gas, overflow = safeAdd(gas, evm.callGasTemp); overflow {
		return 0, ErrGasUintOverflow
	}
	return gas, nil
}

var (
	gasDelegateCall = gasDelegateOrStaticCall
	gasStaticCall   = gasDelegateOrStaticCall
)

// gasCallVariantEIP2929 wraps the call-family gas functions with the
// warm/cold account access cost. The cold surcharge is charged on top of
// the warm cost that the constant gas already covers, and must be applied
// before the 63/64 forwarding calculation inside the wrapped function.
func gasCallVariantEIP2929(inner gasFunc) gasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		addr := helix.BytesToAddress(stack.Back(1).Bytes())
		var coldCost uint64
		if !evm.StateDB.AddressInAccessList(addr) {
			evm.StateDB.AddAddressToAccessList(addr)
			coldCost = ColdAccountAccessCostEIP2929 - WarmStorageReadCostEIP2929
			// Charge it temporarily, so the inner 63/64 calculation sees
			// the reduced remaining gas.
			if !contract.UseGas(coldCost) {
				return 0, ErrOutOfGas
			}
		}
		gas, err := inner(evm, contract, stack, mem, memorySize)
		if coldCost > 0 {
			contract.Gas += coldCost
		}
		if err != nil {
			return 0, err
		}
		var overflow bool
		if gas, overflow = safeAdd(gas, coldCost); overflow {
			return 0, ErrGasUintOverflow
		}
		return gas, nil
	}
}

func gasSelfdestruct(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas := SelfdestructGasEIP150
	address := helix.BytesToAddress(stack.Back(0).Bytes())

	// if empty and transfers value
	if evm.StateDB.Empty(address) && evm.StateDB.GetBalance(contract.Address()).Sign() != 0 {
		gas += CallNewAccountGas
	}
	if evm.chainRules.IsBerlin && !evm.StateDB.AddressInAccessList(address) {
		evm.StateDB.AddAddressToAccessList(address)
		gas += ColdAccountAccessCostEIP2929
	}
	if !evm.chainRules.IsLondon && !evm.StateDB.HasSelfdestructed(contract.Address()) {
		evm.StateDB.AddRefund(SelfdestructRefundGas)
	}
	return gas, nil
}

func toWordSize(size uint64) uint64 {
	if size > uint64(1<<63-1)-31 {
		return uint64(1<<63-1)/32 + 1
	}
	return (size + 31) / 32
}

func safeAdd(x, y uint64) (uint64, bool) {
	return x + y, y > (1<<64-1)-x
}

func safeMul(x, y uint64) (uint64, bool) {
	if x == 0 || y == 0 {
		return 0, false
	}
	return x * y, y > (1<<64-1)/x
}
