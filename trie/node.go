// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"fmt"
	"io"
	"strings"
)

var indices = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "a", "b", "c", "d", "e", "f", "[17]"}

type node interface {
	fstring(string) string
	cache() (*hashNode, bool)
	encodeConsensus(buf []byte) []byte
}

type (
	fullNode struct {
		Children [17]node // actual trie node data to encode/decode (needs custom encoder)
		flags    nodeFlag
	}
	shortNode struct {
		Key   []byte
		Val   node
		flags nodeFlag
	}
	hashNode struct {
		hash []byte
	}
	valueNode struct {
		value []byte
		meta  []byte // metadata of the value
	}
)

func (n *fullNode) copy() *fullNode   { copy := *n; return &copy }
func (n *shortNode) copy() *shortNode { copy := *n; return &copy }

// nodeFlag contains caching-related metadata about a node.
type nodeFlag struct {
	hash  *hashNode // cached hash of the node (may be nil)
	dirty bool      // whether the node has changes that must be written to the database
}

func (n *fullNode) cache() (*hashNode, bool)  { return n.flags.hash, n.flags.dirty }
func (n *shortNode) cache() (*hashNode, bool) { return n.flags.hash, n.flags.dirty }
func (n *hashNode) cache() (*hashNode, bool)  { return nil, true }
func (n *valueNode) cache() (*hashNode, bool) { return nil, true }

// Pretty printing.
func (n *fullNode) String() string  { return n.fstring("") }
func (n *shortNode) String() string { return n.fstring("") }
func (n *hashNode) String() string  { return n.fstring("") }
func (n *valueNode) String() string { return n.fstring("") }

func (n *fullNode) fstring(ind string) string {
	resp := fmt.Sprintf("[\n%s  ", ind)
	for i, node := range n.Children {
		if node == nil {
			resp += fmt.Sprintf("%s: <nil> ", indices[i])
		} else {
			resp += fmt.Sprintf("%s: %v", indices[i], node.fstring(ind+"  "))
		}
	}
	return resp + fmt.Sprintf("\n%s] ", ind)
}
func (n *shortNode) fstring(ind string) string {
	return fmt.Sprintf("{%x: %v} ", n.Key, n.Val.fstring(ind+"  "))
}
func (n *hashNode) fstring(ind string) string {
	return fmt.Sprintf("<%x> ", n.hash)
}
func (n *valueNode) fstring(ind string) string {
	return fmt.Sprintf("%x ", n.value)
}

// Persisted node encoding.
//
// Nodes stored in the database use vp coding instead of RLP. Every node
// starts with a kind tag, followed by its fields. Child references embed
// recursively, exactly as collapsed by the hasher, so the encoding
// round-trips without loss.
const (
	kindEmpty byte = iota
	kindFull
	kindShort
	kindHash
	kindValue
)

// encodeNode appends the persisted encoding of the collapsed node n to buf.
func encodeNode(buf []byte, n node) []byte {
	switch n := n.(type) {
	case nil:
		return append(buf, kindEmpty)
	case *fullNode:
		buf = append(buf, kindFull)
		for _, c := range n.Children {
			buf = encodeNode(buf, c)
		}
		return buf
	case *shortNode:
		buf = append(buf, kindShort)
		buf = vp.AppendString(buf, n.Key) // compact-encoded key
		return encodeNode(buf, n.Val)
	case *hashNode:
		buf = append(buf, kindHash)
		return vp.AppendString(buf, n.hash)
	case *valueNode:
		buf = append(buf, kindValue)
		buf = vp.AppendString(buf, n.value)
		return vp.AppendString(buf, n.meta)
	default:
		panic(fmt.Sprintf("encode node: unexpected node type %T", n))
	}
}

// mustDecodeNode decodes a persisted node blob loaded for the given hash.
// The blob comes from the local database, so decoding errors are defects.
func mustDecodeNode(hash *hashNode, buf []byte) node {
	n, rest, err := decodeNode(hash, buf)
	if err != nil {
		panic(fmt.Sprintf("node %x: %v", hash.hash, err))
	}
	if len(rest) != 0 {
		panic(fmt.Sprintf("node %x: %d trailing bytes after decode", hash.hash, len(rest)))
	}
	return n
}

// decodeNode parses the persisted encoding of a trie node.
func decodeNode(hash *hashNode, buf []byte) (node, []byte, error) {
	if len(buf) == 0 {
		return nil, nil, io.ErrUnexpectedEOF
	}
	kind, buf := buf[0], buf[1:]
	switch kind {
	case kindEmpty:
		return nil, buf, nil
	case kindFull:
		n := &fullNode{flags: nodeFlag{hash: hash}}
		for i := range n.Children {
			child, rest, err := decodeNode(nil, buf)
			if err != nil {
				return nil, nil, wrapError(err, indices[i])
			}
			n.Children[i], buf = child, rest
		}
		return n, buf, nil
	case kindShort:
		key, rest, err := vp.SplitString(buf)
		if err != nil {
			return nil, nil, wrapError(err, "key")
		}
		val, rest, err := decodeNode(nil, rest)
		if err != nil {
			return nil, nil, wrapError(err, "val")
		}
		return &shortNode{compactToHex(key), val, nodeFlag{hash: hash}}, rest, nil
	case kindHash:
		h, rest, err := vp.SplitString(buf)
		if err != nil {
			return nil, nil, wrapError(err, "hash")
		}
		if len(h) != 32 {
			return nil, nil, fmt.Errorf("invalid hash node size %d (want 32)", len(h))
		}
		return &hashNode{append([]byte(nil), h...)}, rest, nil
	case kindValue:
		val, rest, err := vp.SplitString(buf)
		if err != nil {
			return nil, nil, wrapError(err, "value")
		}
		meta, rest, err := vp.SplitString(rest)
		if err != nil {
			return nil, nil, wrapError(err, "meta")
		}
		vn := &valueNode{value: append([]byte(nil), val...)}
		if len(meta) > 0 {
			vn.meta = append([]byte(nil), meta...)
		}
		return vn, rest, nil
	default:
		return nil, nil, fmt.Errorf("invalid node kind tag %d", kind)
	}
}

// wraps a decoding error with information about the path to the
// invalid child node (for debugging encoding issues).
type decodeError struct {
	what  error
	stack []string
}

func wrapError(err error, ctx string) error {
	if err == nil {
		return nil
	}
	if decErr, ok := err.(*decodeError); ok {
		decErr.stack = append(decErr.stack, ctx)
		return decErr
	}
	return &decodeError{err, []string{ctx}}
}

func (err *decodeError) Error() string {
	return fmt.Sprintf("%v (decode path: %s)", err.what, strings.Join(err.stack, "<-"))
}
