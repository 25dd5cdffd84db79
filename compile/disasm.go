package compile

import (
	"fmt"
	"strings"

	"github.com/aledsdavies/scriptvm/value"
)

// Disassemble renders p as human-readable text, one instruction per line,
// for debugging and golden-file testing.
func Disassemble(p *Program) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; binder_hash=%016x literals=%d keys=%d\n", p.BinderHash, len(p.Literals), len(p.Keys))
	for pc, in := range p.Code {
		rng := p.Locations[pc]
		fmt.Fprintf(&sb, "%04d  %-14s", pc, in.Op.String())
		switch in.Op {
		case OpLoadConst:
			fmt.Fprintf(&sb, "r%d, K[%d]=%s", in.A, in.Bx, value.ToScratch(p.Literals[in.Bx]))
		case OpMemLoad:
			fmt.Fprintf(&sb, "r%d, key[%d]", in.A, in.Bx)
		case OpMemStore:
			fmt.Fprintf(&sb, "key[%d], r%d", in.Bx, in.A)
		case OpJump, OpJumpIfFalsy, OpJumpIfTruthy, OpJumpIfNonNull:
			fmt.Fprintf(&sb, "r%d, %+d -> %04d", in.A, in.JumpOffset(), pc+int(in.JumpOffset()))
		case OpMove:
			fmt.Fprintf(&sb, "r%d, r%d", in.A, in.B)
		case OpLoadNull, OpReturn, OpAssert, OpTruthy, OpFalsy, OpNonNull, OpNot, OpNeg,
			OpVec3X, OpVec3Y, OpVec3Z, OpVec3Magnitude, OpVec3Normalize, OpTypeOf, OpHashOf,
			OpRound, OpFloor, OpCeil:
			fmt.Fprintf(&sb, "r%d, r%d", in.A, in.B)
		case OpCallExtern:
			fmt.Fprintf(&sb, "r%d, r%d..+%d, slot[%d]", in.A, in.B, in.C, in.Bx)
		case OpRandom:
			fmt.Fprintf(&sb, "r%d, r%d..+%d", in.A, in.B, in.C)
		default:
			fmt.Fprintf(&sb, "r%d, r%d..", in.A, in.B)
		}
		fmt.Fprintf(&sb, "\t; %d:%d\n", rng.Start, rng.End)
	}
	return sb.String()
}
