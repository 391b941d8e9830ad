// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"fmt"

	"github.com/helix-chain/helix/helix"
)

// MissingNodeError is returned by the trie functions (Get, Update)
// in the case where a trie node is not present in the local database.
// It contains information necessary for retrieving the missing node.
type MissingNodeError struct {
	NodeHash helix.Bytes32 // hash of the missing node
	Path     []byte        // hex-encoded path to the missing node
	Err      error         // underlying storage error, nil if simply absent
}

func (err *MissingNodeError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("missing trie node %v (path %x): %v", err.NodeHash, err.Path, err.Err)
	}
	return fmt.Sprintf("missing trie node %v (path %x)", err.NodeHash, err.Path)
}

func (err *MissingNodeError) Unwrap() error { return err.Err }
