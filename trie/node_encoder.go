// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"github.com/qianbin/drlp"
)

// Consensus encoding of collapsed nodes, the byte stream that gets
// hashed. Node shapes are fixed, so the RLP is appended directly
// instead of going through reflection. Value metadata never enters the
// consensus encoding.

func (n *fullNode) encodeConsensus(buf []byte) []byte {
	offset := len(buf)
	for _, c := range n.Children {
		if c != nil {
			buf = c.encodeConsensus(buf)
		} else {
			buf = drlp.AppendString(buf, nil) // nil child encodes as empty string
		}
	}
	return drlp.EndList(buf, offset)
}

func (n *shortNode) encodeConsensus(buf []byte) []byte {
	offset := len(buf)
	buf = drlp.AppendString(buf, n.Key) // compact-encoded by the hasher
	if n.Val != nil {
		buf = n.Val.encodeConsensus(buf)
	} else {
		buf = drlp.AppendString(buf, nil)
	}
	return drlp.EndList(buf, offset)
}

func (n *hashNode) encodeConsensus(buf []byte) []byte {
	return drlp.AppendString(buf, n.hash)
}

func (n *valueNode) encodeConsensus(buf []byte) []byte {
	return drlp.AppendString(buf, n.value)
}
