// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/helix-chain/helix/helix"
)

// ContractRef is a reference to the contract's backing object.
type ContractRef interface {
	Address() helix.Address
}

// AccountRef implements ContractRef.
type AccountRef helix.Address

// Address casts AccountRef to an Address.
func (ar AccountRef) Address() helix.Address { return helix.Address(ar) }

// Contract represents an ethereum contract in the state database. It
// contains the contract code, calling arguments.
type Contract struct {
	// CallerAddress is the result of the caller which initialised this
	// contract. However when the "call method" is delegated this value
	// needs to be initialised to that of the caller's caller.
	CallerAddress helix.Address
	caller        ContractRef
	self          ContractRef

	jumpdests map[helix.Bytes32]bitvec // aggregated result of JUMPDEST analysis
	analysis  bitvec                   // locally cached result of JUMPDEST analysis

	Code     []byte
	CodeHash helix.Bytes32
	Input    []byte

	Gas   uint64
	value *big.Int
}

// NewContract returns a new contract environment for the execution of EVM.
func NewContract(caller ContractRef, object ContractRef, value *big.Int, gas uint64) *Contract {
	c := &Contract{CallerAddress: caller.Address(), caller: caller, self: object}

	if parent, ok := caller.(*Contract); ok {
		// reuse the JUMPDEST analysis from the parent context
		c.jumpdests = parent.jumpdests
	} else {
		c.jumpdests = make(map[helix.Bytes32]bitvec)
	}

	c.Gas = gas
	c.value = value
	return c
}

func (c *Contract) validJumpdest(dest *uint256.Int) bool {
	udest, overflow := dest.Uint64WithOverflow()
	// PC cannot go beyond len(code) and certainly can't be bigger than
	// 63 bits. Don't bother checking for JUMPDEST in that case.
	if overflow || udest >= uint64(len(c.Code)) {
		return false
	}
	// Only JUMPDESTs allowed for destinations
	if OpCode(c.Code[udest]) != JUMPDEST {
		return false
	}
	return c.isCode(udest)
}

// isCode returns true if the provided PC location is an actual opcode, as
// opposed to a data-segment following a PUSHn.
func (c *Contract) isCode(udest uint64) bool {
	if c.analysis != nil {
		return c.analysis.codeSegment(udest)
	}
	// Do we have a contract hash already?
	if !c.CodeHash.IsZero() {
		analysis, exist := c.jumpdests[c.CodeHash]
		if !exist {
			analysis = codeBitmap(c.Code)
			c.jumpdests[c.CodeHash] = analysis
		}
		c.analysis = analysis
		return analysis.codeSegment(udest)
	}
	// No code hash, most likely a piece of initcode not already in state
	// trie. In that case, we do an analysis, and save it locally.
	if c.analysis == nil {
		c.analysis = codeBitmap(c.Code)
	}
	return c.analysis.codeSegment(udest)
}

// AsDelegate sets the contract to be a delegate call and returns the
// current contract (for chaining calls).
func (c *Contract) AsDelegate() *Contract {
	// NOTE: caller must, at all times be a contract. It should never
	// happen that caller is something other than a Contract.
	parent := c.caller.(*Contract)
	c.CallerAddress = parent.CallerAddress
	c.value = parent.value
	return c
}

// GetOp returns the n'th element in the contract's byte array.
func (c *Contract) GetOp(n uint64) OpCode {
	if n < uint64(len(c.Code)) {
		return OpCode(c.Code[n])
	}
	return STOP
}

// Caller returns the caller of the contract.
//
// Caller will recursively call caller when the contract is a delegate
// call, including that of the caller's caller.
func (c *Contract) Caller() helix.Address {
	return c.CallerAddress
}

// UseGas attempts to use gas and subtracts it and returns true on success.
func (c *Contract) UseGas(gas uint64) (ok bool) {
	if c.Gas < gas {
		return false
	}
	c.Gas -= gas
	return true
}

// Address returns the contract's address.
func (c *Contract) Address() helix.Address {
	return c.self.Address()
}

// Value returns the contract's value (sent to it from its caller).
func (c *Contract) Value() *big.Int {
	return c.value
}

// SetCallCode sets the code of the contract and its address.
func (c *Contract) SetCallCode(addr *helix.Address, hash helix.Bytes32, code []byte) {
	c.Code = code
	c.CodeHash = hash
	if addr != nil {
		c.self = AccountRef(*addr)
	}
}
