// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package helix

import (
	"fmt"
	"math"
	"strings"
)

// ForkConfig holds the block numbers at which protocol upgrades activate.
// The interpreter's opcode table, gas schedule and precompile set are
// selected per block from this config; no fork constant is hardcoded
// anywhere else.
type ForkConfig struct {
	Constantinople uint32
	Istanbul       uint32
	Berlin         uint32
	London         uint32
	Shanghai       uint32
}

func (fc ForkConfig) String() string {
	var strs []string
	push := func(name string, blockNum uint32) {
		if blockNum != math.MaxUint32 {
			strs = append(strs, fmt.Sprintf("%v: #%v", name, blockNum))
		}
	}

	push("CONSTANTINOPLE", fc.Constantinople)
	push("ISTANBUL", fc.Istanbul)
	push("BERLIN", fc.Berlin)
	push("LONDON", fc.London)
	push("SHANGHAI", fc.Shanghai)

	return strings.Join(strs, ", ")
}

// IsConstantinople returns if constantinople rules are active at blockNum.
func (fc ForkConfig) IsConstantinople(blockNum uint32) bool { return blockNum >= fc.Constantinople }

// IsIstanbul returns if istanbul rules are active at blockNum.
func (fc ForkConfig) IsIstanbul(blockNum uint32) bool { return blockNum >= fc.Istanbul }

// IsBerlin returns if berlin rules are active at blockNum.
func (fc ForkConfig) IsBerlin(blockNum uint32) bool { return blockNum >= fc.Berlin }

// IsLondon returns if london rules are active at blockNum.
func (fc ForkConfig) IsLondon(blockNum uint32) bool { return blockNum >= fc.London }

// IsShanghai returns if shanghai rules are active at blockNum.
func (fc ForkConfig) IsShanghai(blockNum uint32) bool { return blockNum >= fc.Shanghai }

// NoFork a special config with all forks disabled.
var NoFork = ForkConfig{
	Constantinople: math.MaxUint32,
	Istanbul:       math.MaxUint32,
	Berlin:         math.MaxUint32,
	London:         math.MaxUint32,
	Shanghai:       math.MaxUint32,
}

// AllForks a config with every fork active from block 0.
var AllForks = ForkConfig{}
