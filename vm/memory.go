// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import "github.com/holiman/uint256"

// arena is the transaction-wide linear buffer all call frames share.
// Frames stack their memory windows back to back, so a transaction makes
// one growing allocation instead of one per frame.
type arena struct {
	buf []byte
}

// Memory is a call frame's view of the shared arena, starting at the
// frame's base offset. All accessors are bounds-checked against the
// frame's own size.
type Memory struct {
	a    *arena
	base int
	size uint64

	lastGasCost uint64 // memoized total expansion fee already charged
}

// newFrameMemory opens a fresh window at the current end of the arena.
// The caller must release it when the frame returns.
func newFrameMemory(a *arena) *Memory {
	return &Memory{a: a, base: len(a.buf)}
}

// release truncates the arena back to the frame's base offset. Return
// data must be copied out before this is called.
func (m *Memory) release() {
	m.a.buf = m.a.buf[:m.base]
}

// Resize grows the frame memory to size bytes. Shrinking is not possible.
func (m *Memory) Resize(size uint64) {
	if size <= m.size {
		return
	}
	if need := m.base + int(size) - len(m.a.buf); need > 0 {
		m.a.buf = append(m.a.buf, make([]byte, need)...)
	}
	m.size = size
}

// Set sets offset + size to value.
func (m *Memory) Set(offset, size uint64, value []byte) {
	if size == 0 {
		return
	}
	if offset+size > m.size {
		panic("invalid memory: store empty")
	}
	copy(m.a.buf[m.base+int(offset):m.base+int(offset+size)], value)
}

// Set32 sets the 32 bytes starting at offset to the value of val,
// left-padded with zeroes to 32 bytes.
func (m *Memory) Set32(offset uint64, val *uint256.Int) {
	if offset+32 > m.size {
		panic("invalid memory: store empty")
	}
	val.PutUint256(m.a.buf[m.base+int(offset):])
}

// GetCopy returns size bytes at offset as a new slice.
func (m *Memory) GetCopy(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	cpy := make([]byte, size)
	copy(cpy, m.a.buf[m.base+int(offset):m.base+int(offset+size)])
	return cpy
}

// GetPtr returns size bytes at offset, sharing the arena's backing array.
// The slice is invalidated by any Resize.
func (m *Memory) GetPtr(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	return m.a.buf[m.base+int(offset) : m.base+int(offset+size)]
}

// Len returns the length of the frame memory.
func (m *Memory) Len() int {
	return int(m.size)
}

// Data returns the frame's memory window.
func (m *Memory) Data() []byte {
	return m.a.buf[m.base : m.base+int(m.size)]
}
