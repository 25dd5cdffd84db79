package compile

import (
	"fmt"

	"github.com/aledsdavies/scriptvm/binder"
	"github.com/aledsdavies/scriptvm/doc"
	"github.com/aledsdavies/scriptvm/internal/invariant"
)

// maxRegisters is the register file size the vm package allocates per call
// frame. A script nesting enough simultaneous
// variables and temporaries to exceed it is a compile error, not an
// internal fault — Compile reports it rather than panicking.
const maxRegisters = 32

// intrinsicOp maps every fixed-arity, non-control-flow Intrinsic to its
// bytecode opcode. Control flow (if/while/for/break/continue/return),
// short-circuit (and/or/coalesce), and select are compiled directly from
// their Doc shape instead, since they need jumps rather than a single
// instruction.
var intrinsicOp = map[doc.Intrinsic]Op{
	doc.IntAdd: OpAdd, doc.IntSub: OpSub, doc.IntMul: OpMul, doc.IntDiv: OpDiv, doc.IntMod: OpMod,
	doc.IntNeg: OpNeg, doc.IntNot: OpNot,
	doc.IntEq: OpEq, doc.IntNotEq: OpNotEq, doc.IntLt: OpLt, doc.IntLtEq: OpLtEq,
	doc.IntGt: OpGt, doc.IntGtEq: OpGtEq,
	doc.IntAssert: OpAssert,
	doc.IntVec3Compose: OpVec3, doc.IntVec3X: OpVec3X, doc.IntVec3Y: OpVec3Y, doc.IntVec3Z: OpVec3Z,
	doc.IntVec3Magnitude: OpVec3Magnitude, doc.IntVec3Normalize: OpVec3Normalize,
	doc.IntVec3Distance: OpVec3Distance, doc.IntVec3Angle: OpVec3Angle,
	doc.IntQuatComposeEuler: OpQuatEuler, doc.IntQuatComposeAxisAngle: OpQuatAxisAngle,
	doc.IntColorRGBA: OpColorRGBA, doc.IntColorHSV: OpColorHSV,
	doc.IntColorR: OpColorR, doc.IntColorG: OpColorG, doc.IntColorB: OpColorB,
	doc.IntColorA: OpColorA, doc.IntColorFor: OpColorFor,
	doc.IntTypeOf: OpTypeOf, doc.IntHashOf: OpHashOf, doc.IntTruthy: OpTruthy,
	doc.IntFalsy: OpFalsy, doc.IntNonNull: OpNonNull,
	doc.IntRandom: OpRandom, doc.IntRandomSphere: OpRandomSphere,
	doc.IntRandomCircleXZ: OpRandomCircleXZ, doc.IntRound: OpRound, doc.IntFloor: OpFloor, doc.IntCeil: OpCeil,
	doc.IntClamp: OpClamp, doc.IntLerp: OpLerp, doc.IntMin: OpMin, doc.IntMax: OpMax,
	doc.IntPerlin3: OpPerlin3,
	doc.IntMemLoadDyn: OpMemLoadDyn, doc.IntMemStoreDyn: OpMemStoreDyn,
}

type loopContext struct {
	breaks, continues []int // instruction indices of placeholder jumps to patch
}

// Compiler lowers a single Doc into a Program with a stack-discipline
// register allocator: compiling an expression always leaves exactly one
// live register holding its result, reusing the first operand's register
// as the destination the way a register-window call convention would: one
// forward walk, append-only output, no backtracking over emitted code.
type Compiler struct {
	d        *doc.Doc
	p        *Program
	regTop   uint8
	varFloor uint8 // registers below this hold live variables, never freed
	overflow bool
	varReg   map[uint64]uint8
	loops    []*loopContext
}

func varKey(scope uint32, id uint8) uint64 { return uint64(scope)<<8 | uint64(id) }

// Compile lowers root into a new Program stamped with binderHash, which
// the VM checks against its binder.Table.Hash() before running.
// Compile never fails on a well-formed Doc; the one checked error is a
// script that needs more than maxRegisters live values at once.
func Compile(d *doc.Doc, root doc.ExprId, binderHash uint64) (*Program, error) {
	p := New()
	p.BinderHash = binderHash
	c := &Compiler{d: d, p: p, varReg: map[uint64]uint8{}}

	result := c.compileExpr(root)
	c.emit(Instruction{Op: OpReturn, A: result}, toRange(d.Expr(root).Range))

	if c.overflow {
		return nil, fmt.Errorf("compile: program needs more than %d live registers", maxRegisters)
	}
	return p, nil
}

func toRange(r doc.Range) Range { return Range{Start: r.Start, End: r.End} }

// CompileAgainst compiles root stamped with tbl's hash and enforces the
// binder's flags: a DisallowMemoryAccess binder rejects any program whose
// bytecode touches the blackboard, checked on the emitted code
// rather than the Doc so the check also covers dynamic-key access.
func CompileAgainst(d *doc.Doc, root doc.ExprId, tbl *binder.Table) (*Program, error) {
	p, err := Compile(d, root, tbl.Hash())
	if err != nil {
		return nil, err
	}
	if tbl.Flags()&binder.DisallowMemoryAccess != 0 {
		for pc, in := range p.Code {
			switch in.Op {
			case OpMemLoad, OpMemStore, OpMemLoadDyn, OpMemStoreDyn:
				return nil, fmt.Errorf("compile: binder %q disallows memory access (instruction %d is %s)",
					tbl.Name(), pc, in.Op)
			}
		}
	}
	return p, nil
}

func (c *Compiler) alloc() uint8 {
	r := c.regTop
	if c.regTop >= maxRegisters {
		c.overflow = true
	}
	c.regTop++
	return r
}

// freeTo pops temporaries down to mark, never below the variable floor: a
// register pinned to a declared variable stays live for the whole program.
func (c *Compiler) freeTo(mark uint8) {
	if mark < c.varFloor {
		mark = c.varFloor
	}
	c.regTop = mark
}

func (c *Compiler) emit(in Instruction, rng Range) int { return c.p.emit(in, rng) }

func (c *Compiler) patch(idx int, target int) {
	c.p.Code[idx].Bx = uint16(int16(target - idx))
}

// compileExpr compiles id and returns the register holding its value. Every
// Doc node kind, by construction, leaves its caller exactly one new live
// register above the mark that was current on entry.
func (c *Compiler) compileExpr(id doc.ExprId) uint8 {
	e := c.d.Expr(id)
	rng := toRange(e.Range)
	switch e.Kind {
	case doc.KindValue:
		r := c.alloc()
		idx := c.p.internLiteral(c.d.Literals[e.LiteralIdx])
		c.emit(Instruction{Op: OpLoadConst, A: r, Bx: idx}, rng)
		return r
	case doc.KindVarLoad:
		if reg, ok := c.varReg[varKey(e.ScopeID, e.VarID)]; ok {
			return reg
		}
		// A load of a variable that was never stored to (dead/optimizer-
		// unreachable path): materialize null rather than reading garbage.
		r := c.alloc()
		c.emit(Instruction{Op: OpLoadNull, A: r}, rng)
		return r
	case doc.KindVarStore:
		return c.compileVarStore(e, rng)
	case doc.KindMemLoad:
		r := c.alloc()
		keyIdx := c.p.internKey(e.Key)
		c.emit(Instruction{Op: OpMemLoad, A: r, Bx: keyIdx}, rng)
		return r
	case doc.KindMemStore:
		src := c.compileOperand(e.Store)
		keyIdx := c.p.internKey(e.Key)
		c.emit(Instruction{Op: OpMemStore, A: src, Bx: keyIdx}, rng)
		return src
	case doc.KindBlock:
		return c.compileBlock(e, rng)
	case doc.KindExtern:
		return c.compileExtern(e, rng)
	case doc.KindIntrinsic:
		return c.compileIntrinsic(e, rng)
	default:
		r := c.alloc()
		c.emit(Instruction{Op: OpLoadNull, A: r}, rng)
		return r
	}
}

// compileDiscard compiles id purely for its side effects, freeing whatever
// register it produced immediately.
func (c *Compiler) compileDiscard(id doc.ExprId) {
	mark := c.regTop
	c.compileExpr(id)
	c.freeTo(mark)
}

// compileOperand compiles id and guarantees the result lands in a fresh
// register at the top of the stack, inserting a Move when compileExpr hands
// back a register it did not allocate (a variable's pinned home register).
// This is what makes multi-operand instructions' contiguous-window calling
// convention hold by construction.
func (c *Compiler) compileOperand(id doc.ExprId) uint8 {
	mark := c.regTop
	r := c.compileExpr(id)
	if r == mark && c.regTop == mark+1 {
		return r
	}
	c.freeTo(mark)
	dst := c.alloc()
	if dst != r {
		c.emit(Instruction{Op: OpMove, A: dst, B: r}, toRange(c.d.Expr(id).Range))
	}
	return dst
}

func (c *Compiler) compileVarStore(e doc.Expr, rng Range) uint8 {
	key := varKey(e.ScopeID, e.VarID)

	if existing, ok := c.varReg[key]; ok {
		mark := c.regTop
		src := c.compileOperand(e.Store)
		if existing != src {
			c.emit(Instruction{Op: OpMove, A: existing, B: src}, rng)
		}
		c.freeTo(mark)
		return existing
	}

	// First store is the declaration: the value's register becomes the
	// variable's home, pinned above the free stack for the program's
	// lifetime.
	src := c.compileOperand(e.Store)
	c.varReg[key] = src
	if src >= c.varFloor {
		c.varFloor = src + 1
	}
	return src
}

func (c *Compiler) compileBlock(e doc.Expr, rng Range) uint8 {
	if len(e.Args) == 0 {
		r := c.alloc()
		c.emit(Instruction{Op: OpLoadNull, A: r}, rng)
		return r
	}
	last := len(e.Args) - 1
	for _, stmt := range e.Args[:last] {
		c.compileDiscard(stmt)
	}
	return c.compileExpr(e.Args[last])
}

// compileArgsContiguous materializes each arg in order into the contiguous
// register window the bytecode's calling convention requires.
func (c *Compiler) compileArgsContiguous(args []doc.ExprId) (base uint8, count uint8) {
	mark := c.regTop
	for i, a := range args {
		r := c.compileOperand(a)
		invariant.Invariant(r == mark+uint8(i), "intrinsic/extern arguments must land in contiguous registers")
	}
	return mark, uint8(len(args))
}

func (c *Compiler) compileExtern(e doc.Expr, rng Range) uint8 {
	base, count := c.compileArgsContiguous(e.Args)
	dest := base
	if count == 0 {
		dest = c.alloc()
	}
	c.emit(Instruction{Op: OpCallExtern, A: dest, B: base, C: count, Bx: e.Slot}, rng)
	c.freeTo(dest + 1)
	return dest
}

func (c *Compiler) compileIntrinsic(e doc.Expr, rng Range) uint8 {
	switch e.Intrinsic {
	case doc.IntIf:
		return c.compileIf(e, rng)
	case doc.IntWhile:
		return c.compileWhile(e, rng)
	case doc.IntFor:
		return c.compileFor(e, rng)
	case doc.IntBreak:
		return c.compileBreak(rng)
	case doc.IntContinue:
		return c.compileContinue(rng)
	case doc.IntReturn:
		return c.compileReturn(e, rng)
	case doc.IntAnd:
		return c.compileShortCircuit(e, rng, OpJumpIfFalsy)
	case doc.IntOr:
		return c.compileShortCircuit(e, rng, OpJumpIfTruthy)
	case doc.IntCoalesce:
		return c.compileCoalesce(e, rng)
	case doc.IntSelect:
		return c.compileSelect(e, rng)
	default:
		op, ok := intrinsicOp[e.Intrinsic]
		invariant.Invariant(ok, "every non-control-flow intrinsic must have a bytecode opcode")
		base, count := c.compileArgsContiguous(e.Args)
		dest := base
		if count == 0 {
			dest = c.alloc()
		}
		c.emit(Instruction{Op: op, A: dest, B: base, C: count}, rng)
		c.freeTo(dest + 1)
		return dest
	}
}

// --- control flow: if/while/for/break/continue/return are statement
// forms with no meaningful value; they always yield null. ---

func (c *Compiler) compileIf(e doc.Expr, rng Range) uint8 {
	mark := c.regTop
	cond := c.compileOperand(e.Args[0])
	c.freeTo(mark)
	jmpFalsy := c.emit(Instruction{Op: OpJumpIfFalsy, A: cond}, rng)

	c.compileDiscard(e.Args[1])
	if e.Args[2] == doc.None {
		c.patch(jmpFalsy, len(c.p.Code))
	} else {
		jmpEnd := c.emit(Instruction{Op: OpJump}, rng)
		c.patch(jmpFalsy, len(c.p.Code))
		c.compileDiscard(e.Args[2])
		c.patch(jmpEnd, len(c.p.Code))
	}

	r := c.alloc()
	c.emit(Instruction{Op: OpLoadNull, A: r}, rng)
	return r
}

func (c *Compiler) compileWhile(e doc.Expr, rng Range) uint8 {
	loopStart := len(c.p.Code)
	mark := c.regTop
	cond := c.compileOperand(e.Args[0])
	c.freeTo(mark)
	jmpExit := c.emit(Instruction{Op: OpJumpIfFalsy, A: cond}, rng)

	c.loops = append(c.loops, &loopContext{})
	c.compileDiscard(e.Args[1])
	c.emit(Instruction{Op: OpJump, Bx: uint16(int16(loopStart - len(c.p.Code)))}, rng)

	exitPC := len(c.p.Code)
	c.patch(jmpExit, exitPC)
	c.resolveLoop(exitPC, loopStart)

	r := c.alloc()
	c.emit(Instruction{Op: OpLoadNull, A: r}, rng)
	return r
}

func (c *Compiler) compileFor(e doc.Expr, rng Range) uint8 {
	if e.Args[0] != doc.None {
		c.compileDiscard(e.Args[0])
	}
	loopStart := len(c.p.Code)

	jmpExit := -1
	if e.Args[1] != doc.None {
		mark := c.regTop
		cond := c.compileOperand(e.Args[1])
		c.freeTo(mark)
		jmpExit = c.emit(Instruction{Op: OpJumpIfFalsy, A: cond}, rng)
	}

	c.loops = append(c.loops, &loopContext{})
	c.compileDiscard(e.Args[3])
	continueTarget := len(c.p.Code)
	if e.Args[2] != doc.None {
		c.compileDiscard(e.Args[2])
	}
	c.emit(Instruction{Op: OpJump, Bx: uint16(int16(loopStart - len(c.p.Code)))}, rng)

	exitPC := len(c.p.Code)
	if jmpExit >= 0 {
		c.patch(jmpExit, exitPC)
	}
	c.resolveLoop(exitPC, continueTarget)

	r := c.alloc()
	c.emit(Instruction{Op: OpLoadNull, A: r}, rng)
	return r
}

func (c *Compiler) resolveLoop(exitPC, continueTarget int) {
	ctx := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]
	for _, idx := range ctx.breaks {
		c.patch(idx, exitPC)
	}
	for _, idx := range ctx.continues {
		c.patch(idx, continueTarget)
	}
}

func (c *Compiler) compileBreak(rng Range) uint8 {
	idx := c.emit(Instruction{Op: OpJump}, rng)
	if len(c.loops) > 0 {
		ctx := c.loops[len(c.loops)-1]
		ctx.breaks = append(ctx.breaks, idx)
	}
	r := c.alloc()
	c.emit(Instruction{Op: OpLoadNull, A: r}, rng)
	return r
}

func (c *Compiler) compileContinue(rng Range) uint8 {
	idx := c.emit(Instruction{Op: OpJump}, rng)
	if len(c.loops) > 0 {
		ctx := c.loops[len(c.loops)-1]
		ctx.continues = append(ctx.continues, idx)
	}
	r := c.alloc()
	c.emit(Instruction{Op: OpLoadNull, A: r}, rng)
	return r
}

func (c *Compiler) compileReturn(e doc.Expr, rng Range) uint8 {
	var reg uint8
	if e.Args[0] != doc.None {
		reg = c.compileOperand(e.Args[0])
	} else {
		reg = c.alloc()
		c.emit(Instruction{Op: OpLoadNull, A: reg}, rng)
	}
	c.emit(Instruction{Op: OpReturn, A: reg}, rng)
	return reg
}

// compileShortCircuit handles `&&`/`||`: skipOp is the test that, when it
// holds on a's value, means b is never evaluated. Both paths converge on a
// final truthiness coercion, so a logical expression always yields a Bool
// regardless of which operand decided it.
func (c *Compiler) compileShortCircuit(e doc.Expr, rng Range, skipOp Op) uint8 {
	a := c.compileOperand(e.Args[0])
	jmp := c.emit(Instruction{Op: skipOp, A: a}, rng)
	b := c.compileOperand(e.Args[1])
	if b != a {
		c.emit(Instruction{Op: OpMove, A: a, B: b}, rng)
	}
	c.freeTo(a + 1)
	c.patch(jmp, len(c.p.Code))
	c.emit(Instruction{Op: OpTruthy, A: a, B: a}, rng)
	return a
}

func (c *Compiler) compileCoalesce(e doc.Expr, rng Range) uint8 {
	a := c.compileOperand(e.Args[0])
	jmp := c.emit(Instruction{Op: OpJumpIfNonNull, A: a}, rng)
	b := c.compileOperand(e.Args[1])
	if b != a {
		c.emit(Instruction{Op: OpMove, A: a, B: b}, rng)
	}
	c.freeTo(a + 1)
	c.patch(jmp, len(c.p.Code))
	return a
}

func (c *Compiler) compileSelect(e doc.Expr, rng Range) uint8 {
	mark := c.regTop
	cond := c.compileOperand(e.Args[0])
	c.freeTo(mark)
	jmpFalsy := c.emit(Instruction{Op: OpJumpIfFalsy, A: cond}, rng)

	dst := c.compileOperand(e.Args[1])
	jmpEnd := c.emit(Instruction{Op: OpJump}, rng)

	c.patch(jmpFalsy, len(c.p.Code))
	c.freeTo(mark)
	other := c.compileOperand(e.Args[2])
	if other != dst {
		c.emit(Instruction{Op: OpMove, A: dst, B: other}, rng)
	}
	c.patch(jmpEnd, len(c.p.Code))
	c.freeTo(dst + 1)

	return dst
}
