// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/muxdb"
)

// Stater is the state creator.
type Stater struct {
	db *muxdb.MuxDB
}

// NewStater creates a new stater.
func NewStater(db *muxdb.MuxDB) *Stater {
	return &Stater{db}
}

// NewState creates a new state object opened at the given state root.
func (s *Stater) NewState(root helix.Bytes32) *State {
	return New(s.db, root)
}
