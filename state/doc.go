// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package state manages the world state on top of the main account trie.
// It follows the flow as below:
//
//	          o
//	          |
//	 [ revertable state ]
//	          |
//	   [ stacked map ] -> [ journal ] -> [ playback(staging) ] -> [ updated tries ]
//	          |
//	  [ cached objects ]
//	          |
//	   [ read-only tries ]
//
// All mutations live in the stacked map until harvested or staged, so
// checkpoints and reverts never touch the tries.
package state
