// Package vm executes a compiled Program against a Memory and a
// Binder: a register-based interpreter with 32 registers, an execution
// cap bounding pathological loops, and structured ScriptPanic results
// attributed to source ranges through the Program's location table.
package vm

import (
	"math"
	"math/rand/v2"

	"github.com/aledsdavies/scriptvm/binder"
	"github.com/aledsdavies/scriptvm/compile"
	"github.com/aledsdavies/scriptvm/doc"
	"github.com/aledsdavies/scriptvm/memory"
	"github.com/aledsdavies/scriptvm/value"
)

// DefaultOpCap bounds how many instructions a single Eval may execute
// before raising ExecutionLimitExceeded.
const DefaultOpCap = 25000

const numRegisters = 32

// Result is what an evaluation produces: a Value, or Null plus the panic
// that stopped execution.
type Result struct {
	Val   value.Value
	Panic *binder.ScriptPanic
}

// VM holds the per-call execution state and policy. A zero VM with Binder
// and Mem set is ready to use; OpCap and Rand default lazily. One VM must
// not be shared across concurrent evaluations — each entity evaluation
// owns its VM and Memory, while the Program and Binder are safely shared
// read-only.
type VM struct {
	Binder *binder.Table
	Mem    *memory.Memory

	// ReadOnly forbids blackboard writes for this evaluation; a store
	// raises MissingCapability. The behavior evaluator runs Condition
	// scripts this way.
	ReadOnly bool

	// OpCap overrides DefaultOpCap when positive.
	OpCap int

	// Rand overrides the random source, e.g. for deterministic tests.
	Rand func() float64

	regs [numRegisters]value.Value
	ops  int
}

// Eval is the convenience entry point: one evaluation of p against mem and
// tbl with default policy.
func Eval(p *compile.Program, mem *memory.Memory, tbl *binder.Table) Result {
	m := &VM{Binder: tbl, Mem: mem}
	return m.Eval(p)
}

// Eval runs p to its terminator. Any internal invariant violation that
// slipped past Validate is caught and surfaced as an ExecutionFailed panic
// rather than aborting the process.
func (m *VM) Eval(p *compile.Program) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Val: value.Null, Panic: binder.NewPanic(binder.ExecutionFailed)}
		}
	}()

	if m.Binder != nil && p.BinderHash != m.Binder.Hash() {
		return Result{Val: value.Null, Panic: binder.NewPanic(binder.ExecutionFailed)}
	}

	cap := m.OpCap
	if cap <= 0 {
		cap = DefaultOpCap
	}
	m.ops = 0

	pc := 0
	for pc >= 0 && pc < len(p.Code) {
		m.ops++
		if m.ops > cap {
			return m.fail(p, pc, binder.NewPanic(binder.ExecutionLimitExceeded))
		}

		in := p.Code[pc]
		switch in.Op {
		case compile.OpLoadConst:
			m.regs[in.A] = p.Literals[in.Bx]
		case compile.OpLoadNull:
			m.regs[in.A] = value.Null
		case compile.OpMove:
			m.regs[in.A] = m.regs[in.B]

		case compile.OpMemLoad:
			m.regs[in.A] = m.Mem.Load(p.Keys[in.Bx])
		case compile.OpMemStore:
			if m.ReadOnly {
				return m.fail(p, pc, binder.NewPanic(binder.MissingCapability))
			}
			m.Mem.Store(p.Keys[in.Bx], m.regs[in.A])
		case compile.OpMemLoadDyn:
			// The register must hold a Str naming the key; anything else
			// yields Null.
			if k := m.regs[in.A]; k.Type() == value.TypeStr {
				m.regs[in.A] = m.Mem.Load(k.Str())
			} else {
				m.regs[in.A] = value.Null
			}
		case compile.OpMemStoreDyn:
			if m.ReadOnly {
				return m.fail(p, pc, binder.NewPanic(binder.MissingCapability))
			}
			key, v := m.regs[in.B], m.regs[in.B+1]
			if key.Type() == value.TypeStr {
				m.Mem.Store(key.Str(), v)
				m.regs[in.A] = v
			} else {
				m.regs[in.A] = value.Null
			}

		case compile.OpAdd:
			m.regs[in.A] = value.Add(m.regs[in.B], m.regs[in.B+1])
		case compile.OpSub:
			m.regs[in.A] = value.Sub(m.regs[in.B], m.regs[in.B+1])
		case compile.OpMul:
			m.regs[in.A] = value.Mul(m.regs[in.B], m.regs[in.B+1])
		case compile.OpDiv:
			m.regs[in.A] = value.Div(m.regs[in.B], m.regs[in.B+1])
		case compile.OpMod:
			m.regs[in.A] = value.Mod(m.regs[in.B], m.regs[in.B+1])
		case compile.OpNeg:
			m.regs[in.A] = value.Negate(m.regs[in.B])
		case compile.OpNot:
			m.regs[in.A] = value.InvertTruthy(m.regs[in.B])

		case compile.OpEq:
			m.regs[in.A] = value.NewBool(value.Equal(m.regs[in.B], m.regs[in.B+1]))
		case compile.OpNotEq:
			m.regs[in.A] = value.NewBool(!value.Equal(m.regs[in.B], m.regs[in.B+1]))
		case compile.OpLt:
			m.regs[in.A] = value.NewBool(value.Less(m.regs[in.B], m.regs[in.B+1]))
		case compile.OpLtEq:
			a, b := m.regs[in.B], m.regs[in.B+1]
			m.regs[in.A] = value.NewBool(value.Less(a, b) || value.Equal(a, b))
		case compile.OpGt:
			m.regs[in.A] = value.NewBool(value.Greater(m.regs[in.B], m.regs[in.B+1]))
		case compile.OpGtEq:
			a, b := m.regs[in.B], m.regs[in.B+1]
			m.regs[in.A] = value.NewBool(value.Greater(a, b) || value.Equal(a, b))

		case compile.OpJump:
			pc += int(in.JumpOffset())
			continue
		case compile.OpJumpIfFalsy:
			if m.regs[in.A].Falsy() {
				pc += int(in.JumpOffset())
				continue
			}
		case compile.OpJumpIfTruthy:
			if m.regs[in.A].Truthy() {
				pc += int(in.JumpOffset())
				continue
			}
		case compile.OpJumpIfNonNull:
			if m.regs[in.A].NonNull() {
				pc += int(in.JumpOffset())
				continue
			}

		case compile.OpSelect:
			if m.regs[in.B].Truthy() {
				m.regs[in.A] = m.regs[in.B+1]
			} else {
				m.regs[in.A] = m.regs[in.B+2]
			}
		case compile.OpAssert:
			if m.regs[in.B].Falsy() {
				return m.fail(p, pc, binder.NewPanic(binder.AssertionFailed))
			}
			m.regs[in.A] = value.Null

		case compile.OpVec3:
			m.regs[in.A] = value.ComposeVec3(m.regs[in.B], m.regs[in.B+1], m.regs[in.B+2])
		case compile.OpVec3X:
			m.regs[in.A] = value.ComponentX(m.regs[in.B])
		case compile.OpVec3Y:
			m.regs[in.A] = value.ComponentY(m.regs[in.B])
		case compile.OpVec3Z:
			m.regs[in.A] = value.ComponentZ(m.regs[in.B])
		case compile.OpVec3Magnitude:
			m.regs[in.A] = value.Magnitude(m.regs[in.B])
		case compile.OpVec3Normalize:
			m.regs[in.A] = value.Normalize(m.regs[in.B])
		case compile.OpVec3Distance:
			m.regs[in.A] = value.Distance(m.regs[in.B], m.regs[in.B+1])
		case compile.OpVec3Angle:
			m.regs[in.A] = value.Angle(m.regs[in.B], m.regs[in.B+1])

		case compile.OpQuatEuler:
			m.regs[in.A] = value.ComposeQuatEuler(m.regs[in.B], m.regs[in.B+1], m.regs[in.B+2])
		case compile.OpQuatAxisAngle:
			m.regs[in.A] = value.ComposeQuatAxisAngle(m.regs[in.B], m.regs[in.B+1])

		case compile.OpColorRGBA:
			m.regs[in.A] = value.ComposeColorRGBA(m.regs[in.B], m.regs[in.B+1], m.regs[in.B+2], m.regs[in.B+3])
		case compile.OpColorHSV:
			m.regs[in.A] = value.ComposeColorHSV(m.regs[in.B], m.regs[in.B+1], m.regs[in.B+2], m.regs[in.B+3])
		case compile.OpColorR:
			m.regs[in.A] = value.ColorR(m.regs[in.B])
		case compile.OpColorG:
			m.regs[in.A] = value.ColorG(m.regs[in.B])
		case compile.OpColorB:
			m.regs[in.A] = value.ColorB(m.regs[in.B])
		case compile.OpColorA:
			m.regs[in.A] = value.ColorA(m.regs[in.B])
		case compile.OpColorFor:
			m.regs[in.A] = value.ColorFor(m.regs[in.B])

		case compile.OpTypeOf:
			m.regs[in.A] = value.NewNum(float64(m.regs[in.B].Type()))
		case compile.OpHashOf:
			if v := m.regs[in.B]; v.Type() == value.TypeStr {
				m.regs[in.A] = value.NewNum(float64(v.Str()))
			} else {
				m.regs[in.A] = value.Null
			}
		case compile.OpTruthy:
			m.regs[in.A] = value.NewBool(m.regs[in.B].Truthy())
		case compile.OpFalsy:
			m.regs[in.A] = value.NewBool(m.regs[in.B].Falsy())
		case compile.OpNonNull:
			m.regs[in.A] = value.NewBool(m.regs[in.B].NonNull())

		case compile.OpRandom:
			m.regs[in.A] = m.random(in)
		case compile.OpRandomSphere:
			m.regs[in.A] = m.randomSphere()
		case compile.OpRandomCircleXZ:
			m.regs[in.A] = m.randomCircleXZ()
		case compile.OpRound:
			m.regs[in.A] = numUnary(m.regs[in.B], math.Round)
		case compile.OpFloor:
			m.regs[in.A] = numUnary(m.regs[in.B], math.Floor)
		case compile.OpCeil:
			m.regs[in.A] = numUnary(m.regs[in.B], math.Ceil)
		case compile.OpClamp:
			m.regs[in.A] = clamp(m.regs[in.B], m.regs[in.B+1], m.regs[in.B+2])
		case compile.OpLerp:
			m.regs[in.A] = lerp(m.regs[in.B], m.regs[in.B+1], m.regs[in.B+2])
		case compile.OpMin:
			m.regs[in.A] = minMax(m.regs[in.B], m.regs[in.B+1], math.Min)
		case compile.OpMax:
			m.regs[in.A] = minMax(m.regs[in.B], m.regs[in.B+1], math.Max)
		case compile.OpPerlin3:
			if v := m.regs[in.B]; v.Type() == value.TypeVec3 {
				x, y, z := v.Vec3()
				m.regs[in.A] = value.NewNum(perlin3(float64(x), float64(y), float64(z)))
			} else {
				m.regs[in.A] = value.Null
			}

		case compile.OpCallExtern:
			v, sp := m.callExtern(in, uint32(pc))
			if sp != nil {
				return m.fail(p, pc, sp)
			}
			m.regs[in.A] = v

		case compile.OpReturn:
			return Result{Val: m.regs[in.A]}

		default:
			return m.fail(p, pc, binder.NewPanic(binder.ExecutionFailed))
		}
		pc++
	}

	// Falling off the end of the code is a validation-tier defect; surface
	// it as a panic rather than returning garbage.
	return Result{Val: value.Null, Panic: binder.NewPanic(binder.ExecutionFailed)}
}

// fail attributes sp to the source range of the instruction at pc and
// packages it as the evaluation result.
func (m *VM) fail(p *compile.Program, pc int, sp *binder.ScriptPanic) Result {
	if pc >= 0 && pc < len(p.Locations) {
		loc := p.Locations[pc]
		sp.Range = doc.Range{Start: loc.Start, End: loc.End}
	}
	return Result{Val: value.Null, Panic: sp}
}

func (m *VM) callExtern(in compile.Instruction, callID uint32) (value.Value, *binder.ScriptPanic) {
	if m.Binder == nil {
		return value.Null, binder.NewPanic(binder.UnimplementedBinding)
	}
	slot := binder.Slot(in.Bx)
	sig := m.Binder.Signature(slot)
	args := m.regs[in.B : int(in.B)+int(in.C)]

	if len(args) < sig.MinArgs() {
		return value.Null, binder.NewPanic(binder.ArgumentMissing)
	}
	if len(args) > sig.MaxArgs() {
		return value.Null, binder.NewPanic(binder.ArgumentCountExceedsMaximum)
	}
	for i, a := range args {
		if !sig.Params[i].Mask.Accepts(a) {
			return value.Null, binder.NewArgTypeMismatch(i, sig.Params[i].Mask, a.Type())
		}
	}

	call := binder.Call{Args: args, CallID: callID}
	return m.Binder.Exec(slot, &call)
}

func (m *VM) random(in compile.Instruction) value.Value {
	src := m.Rand
	if src == nil {
		src = rand.Float64
	}
	switch in.C {
	case 0:
		return value.NewNum(src())
	case 1:
		hi := m.regs[in.B]
		if hi.Type() != value.TypeNum {
			return value.Null
		}
		return value.NewNum(src() * hi.Num())
	default:
		lo, hi := m.regs[in.B], m.regs[in.B+1]
		if lo.Type() != value.TypeNum || hi.Type() != value.TypeNum {
			return value.Null
		}
		return value.NewNum(lo.Num() + src()*(hi.Num()-lo.Num()))
	}
}

// randomSphere draws a uniformly distributed point on the unit sphere:
// uniform height plus uniform longitude is area-preserving on a sphere.
func (m *VM) randomSphere() value.Value {
	src := m.Rand
	if src == nil {
		src = rand.Float64
	}
	z := 2*src() - 1
	theta := 2 * math.Pi * src()
	r := math.Sqrt(1 - z*z)
	return value.NewVec3(float32(r*math.Cos(theta)), float32(z), float32(r*math.Sin(theta)))
}

// randomCircleXZ draws a uniformly distributed point on the unit circle in
// the ground plane.
func (m *VM) randomCircleXZ() value.Value {
	src := m.Rand
	if src == nil {
		src = rand.Float64
	}
	theta := 2 * math.Pi * src()
	return value.NewVec3(float32(math.Cos(theta)), 0, float32(math.Sin(theta)))
}

func numUnary(v value.Value, f func(float64) float64) value.Value {
	if v.Type() != value.TypeNum {
		return value.Null
	}
	return value.NewNum(f(v.Num()))
}

func clamp(x, lo, hi value.Value) value.Value {
	if x.Type() != value.TypeNum || lo.Type() != value.TypeNum || hi.Type() != value.TypeNum {
		return value.Null
	}
	return value.NewNum(math.Min(math.Max(x.Num(), lo.Num()), hi.Num()))
}

func lerp(a, b, t value.Value) value.Value {
	if a.Type() != value.TypeNum || b.Type() != value.TypeNum || t.Type() != value.TypeNum {
		return value.Null
	}
	return value.NewNum(a.Num() + (b.Num()-a.Num())*t.Num())
}

func minMax(a, b value.Value, f func(float64, float64) float64) value.Value {
	if a.Type() != value.TypeNum || b.Type() != value.TypeNum {
		return value.Null
	}
	return value.NewNum(f(a.Num(), b.Num()))
}
