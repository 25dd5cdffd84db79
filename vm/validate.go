package vm

import (
	"fmt"

	"github.com/aledsdavies/scriptvm/binder"
	"github.com/aledsdavies/scriptvm/compile"
)

// opWindow is the number of operand registers each opcode reads starting
// at B. Variable-arity opcodes (random, call_extern) are handled
// separately via the instruction's C field.
var opWindow = map[compile.Op]int{
	compile.OpLoadConst: 0, compile.OpLoadNull: 0, compile.OpMove: 1,
	compile.OpMemLoad: 0, compile.OpMemStore: 0,
	compile.OpMemLoadDyn: 0, compile.OpMemStoreDyn: 2,
	compile.OpAdd: 2, compile.OpSub: 2, compile.OpMul: 2, compile.OpDiv: 2, compile.OpMod: 2,
	compile.OpNeg: 1, compile.OpNot: 1,
	compile.OpEq: 2, compile.OpNotEq: 2, compile.OpLt: 2, compile.OpLtEq: 2,
	compile.OpGt: 2, compile.OpGtEq: 2,
	compile.OpJump: 0, compile.OpJumpIfFalsy: 0, compile.OpJumpIfTruthy: 0,
	compile.OpJumpIfNonNull: 0,
	compile.OpSelect:        3, compile.OpAssert: 1,
	compile.OpVec3: 3, compile.OpVec3X: 1, compile.OpVec3Y: 1, compile.OpVec3Z: 1,
	compile.OpVec3Magnitude: 1, compile.OpVec3Normalize: 1,
	compile.OpVec3Distance: 2, compile.OpVec3Angle: 2,
	compile.OpQuatEuler: 3, compile.OpQuatAxisAngle: 2,
	compile.OpColorRGBA: 4, compile.OpColorHSV: 4,
	compile.OpColorR: 1, compile.OpColorG: 1, compile.OpColorB: 1, compile.OpColorA: 1,
	compile.OpColorFor: 1,
	compile.OpTypeOf: 1, compile.OpHashOf: 1, compile.OpTruthy: 1,
	compile.OpFalsy: 1, compile.OpNonNull: 1,
	compile.OpRandomSphere: 0, compile.OpRandomCircleXZ: 0,
	compile.OpRound: 1, compile.OpFloor: 1, compile.OpCeil: 1,
	compile.OpClamp: 3, compile.OpLerp: 3, compile.OpMin: 2, compile.OpMax: 2,
	compile.OpPerlin3: 1,
	compile.OpReturn:  0,
}

// Validate checks p against tbl before first execution: the
// code must be non-empty and end in a terminating opcode, every opcode
// must be known with in-range registers, literal-pool indices, key-pool
// indices, binder slots, and jump targets. Validate is a total function on
// arbitrary decoded input — it reports, never panics — so a validated
// program cannot corrupt the host. tbl may be nil for programs that make
// no extern calls.
func Validate(p *compile.Program, tbl *binder.Table) error {
	if len(p.Code) == 0 {
		return fmt.Errorf("vm: empty program")
	}
	if len(p.Locations) != len(p.Code) {
		return fmt.Errorf("vm: location table has %d entries for %d instructions", len(p.Locations), len(p.Code))
	}
	if last := p.Code[len(p.Code)-1].Op; last != compile.OpReturn {
		return fmt.Errorf("vm: program ends in %s, not a terminator", last)
	}
	if tbl != nil && p.BinderHash != tbl.Hash() {
		return fmt.Errorf("vm: program binder hash %016x does not match binder %016x", p.BinderHash, tbl.Hash())
	}

	for pc, in := range p.Code {
		window, known := opWindow[in.Op]
		variadic := in.Op == compile.OpRandom || in.Op == compile.OpCallExtern
		if !known && !variadic {
			return fmt.Errorf("vm: unknown opcode %d at %d", in.Op, pc)
		}
		if variadic {
			window = int(in.C)
		}
		if int(in.A) >= numRegisters {
			return fmt.Errorf("vm: instruction %d writes register %d", pc, in.A)
		}
		if window > 0 && int(in.B)+window > numRegisters {
			return fmt.Errorf("vm: instruction %d reads registers %d..%d", pc, in.B, int(in.B)+window-1)
		}

		switch in.Op {
		case compile.OpLoadConst:
			if int(in.Bx) >= len(p.Literals) {
				return fmt.Errorf("vm: instruction %d references literal %d of %d", pc, in.Bx, len(p.Literals))
			}
		case compile.OpMemLoad, compile.OpMemStore:
			if int(in.Bx) >= len(p.Keys) {
				return fmt.Errorf("vm: instruction %d references key %d of %d", pc, in.Bx, len(p.Keys))
			}
		case compile.OpJump, compile.OpJumpIfFalsy, compile.OpJumpIfTruthy, compile.OpJumpIfNonNull:
			target := pc + int(in.JumpOffset())
			if target < 0 || target >= len(p.Code) {
				return fmt.Errorf("vm: instruction %d jumps to %d, out of [0, %d)", pc, target, len(p.Code))
			}
		case compile.OpCallExtern:
			if tbl == nil {
				return fmt.Errorf("vm: instruction %d calls extern slot %d with no binder", pc, in.Bx)
			}
			if int(in.Bx) >= tbl.Len() {
				return fmt.Errorf("vm: instruction %d calls extern slot %d of %d", pc, in.Bx, tbl.Len())
			}
		case compile.OpRandom:
			if in.C > 2 {
				return fmt.Errorf("vm: instruction %d: random takes at most 2 arguments, got %d", pc, in.C)
			}
		}
	}
	return nil
}
