// Package value implements the 128-bit tagged Value union shared by the
// blackboard, the bytecode VM, and the behavior-tree evaluator. Every register, memory slot, and literal pool entry is a Value
// held by copy: four 32-bit words, the type tag packed into the low byte
// of the fourth word.
package value

import (
	"math"

	"github.com/x448/float16"
)

// Type identifies which of the seven concrete payloads a Value carries.
type Type uint8

const (
	TypeNull Type = iota
	TypeNum
	TypeBool
	TypeVec3
	TypeQuat
	TypeEntity
	TypeStr
	TypeColor
)

// String returns the short type name used by type_str.
func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeNum:
		return "num"
	case TypeBool:
		return "bool"
	case TypeVec3:
		return "vec3"
	case TypeQuat:
		return "quat"
	case TypeEntity:
		return "entity"
	case TypeStr:
		return "str"
	case TypeColor:
		return "color"
	default:
		return "invalid"
	}
}

// numTolerance is the equality tolerance applied to Num and to each Vec3/Quat
// component.
const numTolerance = 1e-7

// Value is the 16-byte tagged union. Word layout:
//
//	Null:   all zero, tag in w3
//	Num:    w0|w1 hold the float64 bits (w0 low 32 bits, w1 high 32 bits)
//	Bool:   w0 = 0 or 1
//	Vec3:   w0,w1,w2 = x,y,z as float32 bits; w3's payload bits are zero
//	Quat:   w0,w1,w2 = x,y,z as float32 bits; w (the fourth component) is
//	        reconstructed from the positive root, never stored
//	Entity: w0,w1 = low/high 32 bits of the 64-bit id
//	Str:    w0 = 32-bit interned-string hash
//	Color:  w0 = r|g, w1 = b|a as four packed float16 components
//
// The tag always lives in the low byte of w3; callers must not rely on any
// other bits of w3 for non-Vec3/Quat/Entity payloads.
type Value struct {
	w0, w1, w2, w3 uint32
}

func withTag(t Type) uint32 {
	return uint32(t)
}

// Null is the zero Value.
var Null = Value{}

// NewNull returns the Null value.
func NewNull() Value { return Null }

// NewNum constructs a Num value.
func NewNum(f float64) Value {
	bits := math.Float64bits(f)
	return Value{w0: uint32(bits), w1: uint32(bits >> 32), w3: withTag(TypeNum)}
}

// NewBool constructs a Bool value.
func NewBool(b bool) Value {
	var w0 uint32
	if b {
		w0 = 1
	}
	return Value{w0: w0, w3: withTag(TypeBool)}
}

// NewVec3 constructs a Vec3 value. The invariant that w must be zeroed
// before any bitwise compare holds by construction: only x, y, z are stored.
func NewVec3(x, y, z float32) Value {
	return Value{
		w0: math.Float32bits(x),
		w1: math.Float32bits(y),
		w2: math.Float32bits(z),
		w3: withTag(TypeVec3),
	}
}

// NewQuat constructs a normalized rotation from its x, y, z components,
// reconstructing w as the positive root of 1 - x² - y² - z².
// A zero quaternion normalizes to identity (x=y=z=0, reconstructed w=1).
func NewQuat(x, y, z float32) Value {
	return Value{
		w0: math.Float32bits(x),
		w1: math.Float32bits(y),
		w2: math.Float32bits(z),
		w3: withTag(TypeQuat),
	}
}

// NewEntity constructs an Entity value from an opaque 64-bit id.
func NewEntity(id uint64) Value {
	return Value{w0: uint32(id), w1: uint32(id >> 32), w3: withTag(TypeEntity)}
}

// NewStr constructs a Str value from an interned-string hash.
func NewStr(hash uint32) Value {
	return Value{w0: hash, w3: withTag(TypeStr)}
}

// NewColor constructs a Color value, quantizing each unpremultiplied
// component to a float16 so all four channels (alpha included) fit the two
// payload words.
func NewColor(r, g, b, a float32) Value {
	return Value{
		w0: uint32(float16.Fromfloat32(r).Bits()) | uint32(float16.Fromfloat32(g).Bits())<<16,
		w1: uint32(float16.Fromfloat32(b).Bits()) | uint32(float16.Fromfloat32(a).Bits())<<16,
		w3: withTag(TypeColor),
	}
}

// Type returns the value's type tag.
func (v Value) Type() Type { return Type(v.w3 & 0xFF) }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.Type() == TypeNull }

// Truthy reports whether v is non-null and non-false.
func (v Value) Truthy() bool {
	switch v.Type() {
	case TypeNull:
		return false
	case TypeBool:
		return v.w0 != 0
	default:
		return true
	}
}

// Falsy is the complement of Truthy.
func (v Value) Falsy() bool { return !v.Truthy() }

// NonNull reports whether v is anything but Null.
func (v Value) NonNull() bool { return !v.IsNull() }

// --- Unchecked extractors: undefined if the tag does not match. ---

// Num returns the raw float64 payload. Callers must check Type() == TypeNum.
func (v Value) Num() float64 {
	return math.Float64frombits(uint64(v.w0) | uint64(v.w1)<<32)
}

// Bool returns the raw bool payload.
func (v Value) Bool() bool { return v.w0 != 0 }

// Vec3 returns the raw x, y, z payload.
func (v Value) Vec3() (x, y, z float32) {
	return math.Float32frombits(v.w0), math.Float32frombits(v.w1), math.Float32frombits(v.w2)
}

// Quat returns the raw x, y, z, w payload, reconstructing w as the positive
// root of 1 - x² - y² - z², clamped to [0, 1] so float rounding never
// produces NaN. Since w is never stored, non-unit quaternions are not
// representable.
func (v Value) Quat() (x, y, z, w float32) {
	x, y, z = v.Vec3()
	rem := 1 - float64(x)*float64(x) - float64(y)*float64(y) - float64(z)*float64(z)
	if rem < 0 {
		rem = 0
	}
	return x, y, z, float32(math.Sqrt(rem))
}

// Entity returns the raw 64-bit id payload.
func (v Value) Entity() uint64 {
	return uint64(v.w0) | uint64(v.w1)<<32
}

// Str returns the raw interned-string hash payload.
func (v Value) Str() uint32 { return v.w0 }

// Color returns the raw r, g, b, a payload.
func (v Value) Color() (r, g, b, a float32) {
	r = float16.Frombits(uint16(v.w0)).Float32()
	g = float16.Frombits(uint16(v.w0 >> 16)).Float32()
	b = float16.Frombits(uint16(v.w1)).Float32()
	a = float16.Frombits(uint16(v.w1 >> 16)).Float32()
	return r, g, b, a
}

// --- Safe extractors ---

func (v Value) GetNum(def float64) float64 {
	if v.Type() != TypeNum {
		return def
	}
	return v.Num()
}

func (v Value) GetBool(def bool) bool {
	if v.Type() != TypeBool {
		return def
	}
	return v.Bool()
}

func (v Value) GetVec3(def [3]float32) [3]float32 {
	if v.Type() != TypeVec3 {
		return def
	}
	x, y, z := v.Vec3()
	return [3]float32{x, y, z}
}

func (v Value) GetEntity(def uint64) uint64 {
	if v.Type() != TypeEntity {
		return def
	}
	return v.Entity()
}

func (v Value) GetStr(def uint32) uint32 {
	if v.Type() != TypeStr {
		return def
	}
	return v.Str()
}

func (v Value) GetColor(def [4]float32) [4]float32 {
	if v.Type() != TypeColor {
		return def
	}
	r, g, b, a := v.Color()
	return [4]float32{r, g, b, a}
}

func floatEqual(a, b float64) bool { return math.Abs(a-b) <= numTolerance }
func float32Equal(a, b float32) bool { return math.Abs(float64(a-b)) <= numTolerance }

// Equal implements script_val_equal: cross-type comparisons
// are never equal; Nums compare within tolerance; Vec3/Quat compare
// component-wise within tolerance; Entities compare the full 64-bit id
// verbatim; a host id scheme carrying generation bits must mask them
// before constructing the Value.
func Equal(a, b Value) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch a.Type() {
	case TypeNull:
		return true
	case TypeNum:
		return floatEqual(a.Num(), b.Num())
	case TypeBool:
		return a.Bool() == b.Bool()
	case TypeVec3:
		ax, ay, az := a.Vec3()
		bx, by, bz := b.Vec3()
		return float32Equal(ax, bx) && float32Equal(ay, by) && float32Equal(az, bz)
	case TypeQuat:
		ax, ay, az := a.Vec3()
		bx, by, bz := b.Vec3()
		return float32Equal(ax, bx) && float32Equal(ay, by) && float32Equal(az, bz)
	case TypeEntity:
		return a.Entity() == b.Entity()
	case TypeStr:
		return a.Str() == b.Str()
	case TypeColor:
		// Colors are quantized on construction, so bit equality is exact.
		return a.w0 == b.w0 && a.w1 == b.w1
	default:
		return false
	}
}

// Less implements a strict ordering for same-typed values; cross-type
// comparisons are never ordered.
func Less(a, b Value) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch a.Type() {
	case TypeNum:
		return a.Num() < b.Num()-numTolerance
	case TypeBool:
		return !a.Bool() && b.Bool() // false < true
	case TypeVec3, TypeQuat:
		ax, ay, az := a.Vec3()
		bx, by, bz := b.Vec3()
		if !float32Equal(ax, bx) {
			return ax < bx
		}
		if !float32Equal(ay, by) {
			return ay < by
		}
		return az < bz-float32(numTolerance)
	case TypeEntity:
		return a.Entity() < b.Entity()
	case TypeStr:
		return a.Str() < b.Str()
	default:
		return false
	}
}

// Words exposes v's four raw 32-bit words, for code that must serialize a
// Value verbatim (the bytecode file format) without depending on which
// type's constructor produced it.
func Words(v Value) (w0, w1, w2, w3 uint32) { return v.w0, v.w1, v.w2, v.w3 }

// FromWords reconstructs a Value from the four words Words returned. The
// caller is responsible for having read them from a matching Words call or
// an equivalent serialized form; no validation is performed against t.
func FromWords(w0, w1, w2, w3 uint32) Value { return Value{w0: w0, w1: w1, w2: w2, w3: w3} }

// Greater is the strict reverse ordering: Less with its operands swapped,
// so unordered types (cross-type pairs, colors) are never greater either.
func Greater(a, b Value) bool {
	return Less(b, a)
}
