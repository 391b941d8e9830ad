// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

// bitvec is a bit vector which maps bytes in a program. An unset bit means
// the byte is an opcode, a set bit means it's data (the argument of a
// PUSHn).
type bitvec []byte

func (bits bitvec) setN(flag uint16, pos uint64) {
	a := flag << (pos % 8)
	bits[pos/8] |= byte(a)
	if b := byte(a >> 8); b != 0 {
		bits[pos/8+1] = b
	}
}

// codeSegment checks if the position is in a code segment.
func (bits bitvec) codeSegment(pos uint64) bool {
	return ((bits[pos/8] >> (pos % 8)) & 1) == 0
}

// codeBitmap collects data locations in code.
func codeBitmap(code []byte) bitvec {
	// The bitmap is 4 bytes longer than necessary, in case the code ends
	// with a PUSH32, the algorithm will set bits on the bitvector outside
	// the bounds of the actual code.
	bits := make(bitvec, len(code)/8+1+4)
	for pc := uint64(0); pc < uint64(len(code)); {
		op := OpCode(code[pc])
		pc++
		if !op.IsPush() {
			continue
		}
		numbits := uint64(op - PUSH1 + 1)
		if numbits >= 8 {
			for ; numbits >= 8; numbits -= 8 {
				bits.setN(0xFF, pc)
				pc += 8
			}
		}
		if numbits > 0 {
			bits.setN(uint16(1<<numbits)-1, pc)
			pc += numbits
		}
	}
	return bits
}
