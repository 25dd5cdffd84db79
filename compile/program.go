// Package compile lowers an optimized Doc tree into the register-based
// bytecode the vm package executes. The calling
// convention is uniform across every multi-argument instruction: operands
// live in a contiguous window of registers starting at B, the way a
// register-window call convention packs arguments.
package compile

import (
	"encoding/binary"
	"fmt"

	"github.com/aledsdavies/scriptvm/value"
)

// Op is one bytecode opcode.
type Op uint8

const (
	OpLoadConst Op = iota
	OpLoadNull
	OpMove

	OpMemLoad
	OpMemStore
	OpMemLoadDyn
	OpMemStoreDyn

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpNot

	OpEq
	OpNotEq
	OpLt
	OpLtEq
	OpGt
	OpGtEq

	OpJump
	OpJumpIfFalsy
	OpJumpIfTruthy
	OpJumpIfNonNull

	OpSelect
	OpAssert

	OpVec3
	OpVec3X
	OpVec3Y
	OpVec3Z
	OpVec3Magnitude
	OpVec3Normalize
	OpVec3Distance
	OpVec3Angle

	OpQuatEuler
	OpQuatAxisAngle

	OpColorRGBA
	OpColorHSV
	OpColorR
	OpColorG
	OpColorB
	OpColorA
	OpColorFor

	OpTypeOf
	OpHashOf
	OpTruthy
	OpFalsy
	OpNonNull

	OpRandom
	OpRandomSphere
	OpRandomCircleXZ
	OpRound
	OpFloor
	OpCeil
	OpClamp
	OpLerp
	OpMin
	OpMax
	OpPerlin3

	OpCallExtern
	OpReturn

	opCount // sentinel, not a real opcode
)

var opNames = [...]string{
	OpLoadConst: "loadconst", OpLoadNull: "loadnull", OpMove: "move",
	OpMemLoad: "memload", OpMemStore: "memstore",
	OpMemLoadDyn: "memload_dyn", OpMemStoreDyn: "memstore_dyn",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
	OpNeg: "neg", OpNot: "not",
	OpEq: "eq", OpNotEq: "neq", OpLt: "lt", OpLtEq: "lte", OpGt: "gt", OpGtEq: "gte",
	OpJump: "jump", OpJumpIfFalsy: "jumpiffalsy", OpJumpIfTruthy: "jumpiftruthy",
	OpJumpIfNonNull: "jumpifnonnull",
	OpSelect:        "select", OpAssert: "assert",
	OpVec3: "vec3", OpVec3X: "vec3_x", OpVec3Y: "vec3_y", OpVec3Z: "vec3_z",
	OpVec3Magnitude: "magnitude", OpVec3Normalize: "normalize",
	OpVec3Distance: "distance", OpVec3Angle: "angle",
	OpQuatEuler: "quat_euler", OpQuatAxisAngle: "quat_axis_angle",
	OpColorRGBA: "color_rgba", OpColorHSV: "color_hsv",
	OpColorR: "color_r", OpColorG: "color_g", OpColorB: "color_b", OpColorA: "color_a",
	OpColorFor: "color_for",
	OpTypeOf: "type_of", OpHashOf: "hash_of", OpTruthy: "truthy", OpFalsy: "falsy",
	OpNonNull: "non_null",
	OpRandom:  "random", OpRandomSphere: "random_sphere", OpRandomCircleXZ: "random_circle_xz",
	OpRound: "round", OpFloor: "floor", OpCeil: "ceil",
	OpClamp: "clamp", OpLerp: "lerp", OpMin: "min", OpMax: "max", OpPerlin3: "perlin3",
	OpCallExtern: "call_extern", OpReturn: "return",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", op)
}

// Instruction is one bytecode word. A is the destination register (or the
// sole operand register for single-argument/control ops); B is the base of
// a contiguous window of argument registers (B, B+1, ...); C is an
// argument count, meaningful only for the variable-arity ops (random,
// call_extern); Bx carries a literal/key-pool index, an extern slot, or a
// signed jump displacement (cast through int16).
type Instruction struct {
	Op Op
	A  uint8
	B  uint8
	C  uint8
	Bx uint16
}

// JumpOffset returns Bx reinterpreted as a signed displacement.
func (i Instruction) JumpOffset() int16 { return int16(i.Bx) }

// Range is a byte-offset source span, mirroring doc.Range without importing
// the doc package (the compiler is the only caller that needs both, and
// does the conversion at the call site — the compiled Program is otherwise
// a standalone artifact, independent of the Doc that produced it).
type Range struct {
	Start, End uint32
}

// Program is the compiled, binder-checked artifact the VM executes:
// bytecode, a deduplicated literal pool, a deduplicated memory-key
// pool, and a parallel source-range table used to attribute a runtime panic
// back to the instruction that raised it.
type Program struct {
	Code       []Instruction
	Literals   []value.Value
	Keys       []uint32
	Locations  []Range // Locations[pc] is the source range for Code[pc]
	BinderHash uint64
}

// New returns an empty Program ready for a Compiler to append to.
func New() *Program {
	return &Program{}
}

func (p *Program) emit(in Instruction, rng Range) int {
	p.Code = append(p.Code, in)
	p.Locations = append(p.Locations, rng)
	return len(p.Code) - 1
}

func (p *Program) internLiteral(v value.Value) uint16 {
	for i, lit := range p.Literals {
		if lit == v {
			return uint16(i)
		}
	}
	p.Literals = append(p.Literals, v)
	return uint16(len(p.Literals) - 1)
}

func (p *Program) internKey(key uint32) uint16 {
	for i, k := range p.Keys {
		if k == key {
			return uint16(i)
		}
	}
	p.Keys = append(p.Keys, key)
	return uint16(len(p.Keys) - 1)
}

// --- binary file format: magic, version, binder_hash, code,
// literals, keys, locations ---

const (
	fileMagic   = uint32(0x53565430) // "SVT0"
	fileVersion = uint16(1)
)

// Encode serializes p to the fixed binary file layout, multi-byte fields
// little-endian: every
// field has byte-exact control rather than a schema-evolving encoding,
// since this is the hot artifact the VM mmaps/loads directly (unlike the
// binder's CBOR tooling format, which favors schema evolution over raw
// layout control).
func Encode(p *Program) []byte {
	buf := make([]byte, 0, 64+len(p.Code)*8)
	var tmp [8]byte

	put32 := func(v uint32) {
		binary.LittleEndian.PutUint32(tmp[:4], v)
		buf = append(buf, tmp[:4]...)
	}
	put16 := func(v uint16) {
		binary.LittleEndian.PutUint16(tmp[:2], v)
		buf = append(buf, tmp[:2]...)
	}
	put64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:8], v)
		buf = append(buf, tmp[:8]...)
	}

	put32(fileMagic)
	put16(fileVersion)
	put64(p.BinderHash)

	put32(uint32(len(p.Code)))
	for _, in := range p.Code {
		buf = append(buf, byte(in.Op), in.A, in.B, in.C)
		put16(in.Bx)
	}

	put32(uint32(len(p.Literals)))
	for _, v := range p.Literals {
		w0, w1, w2, w3 := value.Words(v)
		put32(w0)
		put32(w1)
		put32(w2)
		put32(w3)
	}

	put32(uint32(len(p.Keys)))
	for _, k := range p.Keys {
		put32(k)
	}

	put32(uint32(len(p.Locations)))
	for _, r := range p.Locations {
		put32(r.Start)
		put32(r.End)
	}

	return buf
}

// Decode parses the layout Encode writes. Returns an error (rather than
// panicking) on a bad magic/version/truncated buffer, since a corrupt
// bytecode file is host-facing input, not an internal invariant violation.
func Decode(data []byte) (*Program, error) {
	r := &byteReader{buf: data}

	if magic := r.u32(); magic != fileMagic {
		return nil, fmt.Errorf("compile: bad magic %#x", magic)
	}
	if ver := r.u16(); ver != fileVersion {
		return nil, fmt.Errorf("compile: unsupported version %d", ver)
	}
	if r.err != nil {
		return nil, r.err
	}

	p := &Program{BinderHash: r.u64()}

	n := r.u32()
	p.Code = make([]Instruction, n)
	for i := range p.Code {
		op := Op(r.u8())
		a, b, c := r.u8(), r.u8(), r.u8()
		bx := r.u16()
		p.Code[i] = Instruction{Op: op, A: a, B: b, C: c, Bx: bx}
	}

	n = r.u32()
	p.Literals = make([]value.Value, n)
	for i := range p.Literals {
		w0, w1, w2, w3 := r.u32(), r.u32(), r.u32(), r.u32()
		p.Literals[i] = value.FromWords(w0, w1, w2, w3)
	}

	n = r.u32()
	p.Keys = make([]uint32, n)
	for i := range p.Keys {
		p.Keys[i] = r.u32()
	}

	n = r.u32()
	p.Locations = make([]Range, n)
	for i := range p.Locations {
		p.Locations[i] = Range{Start: r.u32(), End: r.u32()}
	}

	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

type byteReader struct {
	buf []byte
	pos int
	err error
}

func (r *byteReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("compile: truncated bytecode at offset %d", r.pos)
		return false
	}
	return true
}

func (r *byteReader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *byteReader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}

func (r *byteReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *byteReader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}
