// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"math/big"

	"github.com/helix-chain/helix/helix"
)

// Builder to make it easy to build a transaction.
type Builder struct {
	body body
}

// NewBuilder creates a builder with sane zero values.
func NewBuilder() *Builder {
	return &Builder{body: body{
		GasPrice: new(big.Int),
		Value:    new(big.Int),
	}}
}

// ChainID sets the chain id.
func (b *Builder) ChainID(id uint64) *Builder {
	b.body.ChainID = id
	return b
}

// Nonce sets the sender nonce.
func (b *Builder) Nonce(nonce uint64) *Builder {
	b.body.Nonce = nonce
	return b
}

// GasPrice sets the gas price.
func (b *Builder) GasPrice(price *big.Int) *Builder {
	b.body.GasPrice = new(big.Int).Set(price)
	return b
}

// Gas sets the gas provision.
func (b *Builder) Gas(gas uint64) *Builder {
	b.body.Gas = gas
	return b
}

// To sets the recipient. A nil recipient makes a contract creation.
func (b *Builder) To(addr *helix.Address) *Builder {
	if addr == nil {
		b.body.To = nil
	} else {
		cpy := *addr
		b.body.To = &cpy
	}
	return b
}

// Value sets the amount transferred.
func (b *Builder) Value(value *big.Int) *Builder {
	b.body.Value = new(big.Int).Set(value)
	return b
}

// Data sets the input data.
func (b *Builder) Data(data []byte) *Builder {
	b.body.Data = append([]byte(nil), data...)
	return b
}

// AccessList sets the declared access list.
func (b *Builder) AccessList(al AccessList) *Builder {
	b.body.AccessList = al.Copy()
	return b
}

// Build builds the tx object.
func (b *Builder) Build() *Transaction {
	return &Transaction{body: b.body}
}
