// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import "github.com/helix-chain/helix/helix"

// AccessList is the list of addresses and storage keys a tx declares it
// will touch. Declared entries are pre-warmed before execution.
type AccessList []AccessTuple

// AccessTuple is one entry of an access list.
type AccessTuple struct {
	Address     helix.Address
	StorageKeys []helix.Bytes32
}

// Copy returns a deep copy of the access list.
func (al AccessList) Copy() AccessList {
	if al == nil {
		return nil
	}
	cpy := make(AccessList, len(al))
	for i, tuple := range al {
		cpy[i] = AccessTuple{
			Address:     tuple.Address,
			StorageKeys: append([]helix.Bytes32(nil), tuple.StorageKeys...),
		}
	}
	return cpy
}

// StorageKeyCount returns the total number of declared storage keys.
func (al AccessList) StorageKeyCount() int {
	var n int
	for _, tuple := range al {
		n += len(tuple.StorageKeys)
	}
	return n
}
