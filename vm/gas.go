// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import "github.com/holiman/uint256"

// Gas costs of the tiered opcode classes.
const (
	GasQuickStep   uint64 = 2
	GasFastestStep uint64 = 3
	GasFastStep    uint64 = 5
	GasMidStep     uint64 = 8
	GasSlowStep    uint64 = 10
	GasExtStep     uint64 = 20
)

// Gas schedule parameters.
const (
	MemoryGas     uint64 = 3   // linear coefficient of memory expansion.
	QuadCoeffDiv  uint64 = 512 // divisor of the quadratic memory term.
	CopyGas       uint64 = 3   // per word copied.
	Keccak256Gas  uint64 = 30
	Keccak256Word uint64 = 6

	JumpdestGas uint64 = 1
	LogGas      uint64 = 375
	LogTopicGas uint64 = 375
	LogDataGas  uint64 = 8

	ExpGas             uint64 = 10
	ExpByteEIP158      uint64 = 50
	BalanceGasEIP150   uint64 = 400
	BalanceGasEIP1884  uint64 = 700
	ExtcodeSizeGas     uint64 = 700
	ExtcodeCopyBase    uint64 = 700
	ExtcodeHashGas     uint64 = 400
	ExtcodeHashEIP1884 uint64 = 700
	SloadGasEIP150     uint64 = 200
	SloadGasEIP1884    uint64 = 800
	CallGasEIP150      uint64 = 700
	BlockhashGas       uint64 = 20

	CallValueTransferGas  uint64 = 9000 // paid for CALL when the value transfer is non-zero.
	CallNewAccountGas     uint64 = 25000
	CallStipend           uint64 = 2300 // free gas given to the callee of a value transfer.
	SelfdestructGasEIP150 uint64 = 5000
	SelfdestructRefundGas uint64 = 24000 // pre-london refund for selfdestruct.

	CreateGas     uint64 = 32000
	Create2Gas    uint64 = 32000
	CreateDataGas uint64 = 200 // per byte of deployed code.

	// EIP-2200 net gas metering for SSTORE.
	SstoreSentryGasEIP2200            uint64 = 2300
	SstoreSetGasEIP2200               uint64 = 20000
	SstoreResetGasEIP2200             uint64 = 5000
	SstoreClearsScheduleRefundEIP2200 uint64 = 15000
	// EIP-3529 reduced the clear refund.
	SstoreClearsScheduleRefundEIP3529 uint64 = 4800

	// EIP-2929 access costs.
	ColdAccountAccessCostEIP2929 uint64 = 2600
	ColdSloadCostEIP2929         uint64 = 2100
	WarmStorageReadCostEIP2929   uint64 = 100
)

// callGas returns the actual gas cost of the call.
//
// The returned gas is gas - base * 63 / 64 when the callCost is larger.
func callGas(availableGas, base uint64, callCost *uint256.Int) (uint64, error) {
	availableGas -= base
	gas := availableGas - availableGas/64
	// If the bit length exceeds 64 bit we know that the newly calculated
	// "gas" for EIP150 is smaller than the requested amount. Therefore we
	// return the new gas instead of returning an error.
	if !callCost.IsUint64() || gas < callCost.Uint64() {
		return gas, nil
	}
	return callCost.Uint64(), nil
}
