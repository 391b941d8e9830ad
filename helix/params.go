// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package helix

// Constants of the execution engine.
const (
	MaxCallDepth  = 1024 // maximum depth of nested calls/creates.
	MaxStackDepth = 1024 // maximum operand stack depth per call frame.

	// CallGasRetentionDivisor the caller retains 1/64 of remaining gas
	// when forwarding gas to a child call.
	CallGasRetentionDivisor uint64 = 64

	GasLimitBoundDivisor uint64 = 1024 // from ethereum
	MinGasLimit          uint64 = 5000
	InitialGasLimit      uint64 = 10 * 1000 * 1000

	MaxCodeSize     = 24576           // EIP-170 deployed code size limit.
	MaxInitCodeSize = 2 * MaxCodeSize // EIP-3860 init code size limit.
)

// Intrinsic gas parameters.
const (
	TxGas                     uint64 = 21000
	TxGasContractCreation     uint64 = 53000
	TxDataZeroGas             uint64 = 4
	TxDataNonZeroGas          uint64 = 16
	TxAccessListAddressGas    uint64 = 2400
	TxAccessListStorageKeyGas uint64 = 1900
	InitCodeWordGas           uint64 = 2 // EIP-3860 per-word init code charge.
)
