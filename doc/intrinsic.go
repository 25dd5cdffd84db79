package doc

// Intrinsic enumerates the 59 built-in operations with dedicated compiler
// support: arithmetic, comparison, logical, vector/quaternion
// ops, control flow, and the small numeric-library surface (random,
// rounding, clamp/lerp/min/max, perlin3).
type Intrinsic uint8

const (
	IntAdd Intrinsic = iota
	IntSub
	IntMul
	IntDiv
	IntMod
	IntNeg
	IntNot
	IntEq
	IntNotEq
	IntLt
	IntLtEq
	IntGt
	IntGtEq
	IntAnd
	IntOr
	IntCoalesce

	IntIf
	IntWhile
	IntFor
	IntBreak
	IntContinue
	IntReturn
	IntSelect
	IntAssert

	IntVec3Compose
	IntVec3X
	IntVec3Y
	IntVec3Z
	IntVec3Magnitude
	IntVec3Normalize
	IntVec3Distance
	IntVec3Angle

	IntQuatComposeEuler
	IntQuatComposeAxisAngle

	IntColorRGBA
	IntColorHSV
	IntColorR
	IntColorG
	IntColorB
	IntColorA
	IntColorFor

	IntTypeOf
	IntHashOf
	IntTruthy
	IntFalsy
	IntNonNull

	IntRandom
	IntRound
	IntFloor
	IntCeil
	IntClamp
	IntLerp
	IntMin
	IntMax
	IntPerlin3

	IntRandomSphere
	IntRandomCircleXZ

	IntMemLoadDyn
	IntMemStoreDyn
)

var intrinsicNames = map[Intrinsic]string{
	IntAdd: "add", IntSub: "sub", IntMul: "mul", IntDiv: "div", IntMod: "mod",
	IntNeg: "neg", IntNot: "not",
	IntEq: "eq", IntNotEq: "neq", IntLt: "lt", IntLtEq: "lte", IntGt: "gt", IntGtEq: "gte",
	IntAnd: "and", IntOr: "or", IntCoalesce: "coalesce",
	IntIf: "if", IntWhile: "while", IntFor: "for", IntBreak: "break",
	IntContinue: "continue", IntReturn: "return", IntSelect: "select", IntAssert: "assert",
	IntVec3Compose: "vec3", IntVec3X: "vec3_x", IntVec3Y: "vec3_y", IntVec3Z: "vec3_z",
	IntVec3Magnitude: "magnitude", IntVec3Normalize: "normalize",
	IntVec3Distance: "distance", IntVec3Angle: "angle",
	IntQuatComposeEuler: "quat_euler", IntQuatComposeAxisAngle: "quat_axis_angle",
	IntColorRGBA: "color_rgba", IntColorHSV: "color_hsv",
	IntColorR: "color_r", IntColorG: "color_g", IntColorB: "color_b", IntColorA: "color_a",
	IntColorFor: "color_for",
	IntRandomSphere: "random_sphere", IntRandomCircleXZ: "random_circle_xz",
	IntTypeOf: "type_of", IntHashOf: "hash_of",
	IntTruthy: "truthy", IntFalsy: "falsy", IntNonNull: "non_null",
	IntRandom: "random", IntRound: "round", IntFloor: "floor", IntCeil: "ceil",
	IntClamp: "clamp", IntLerp: "lerp", IntMin: "min", IntMax: "max", IntPerlin3: "perlin3",
	IntMemLoadDyn: "mem_load", IntMemStoreDyn: "mem_store",
}

func (k Intrinsic) String() string {
	if s, ok := intrinsicNames[k]; ok {
		return s
	}
	return "unknown_intrinsic"
}

// Arity describes the allowed argument count for a keyword-resolved
// intrinsic. Variadic intrinsics (block-bodied control flow)
// use Max = -1.
type Arity struct {
	Min, Max int
}

// KeywordIntrinsics maps a script-visible function name to its intrinsic and
// allowed arity. `if`/`while`/`for`/`break`/`continue`/`return` are parsed as
// statement forms rather than resolved by name here.
var KeywordIntrinsics = map[string]struct {
	Intrinsic Intrinsic
	Arity     Arity
}{
	"select":       {IntSelect, Arity{3, 3}},
	"assert":       {IntAssert, Arity{1, 1}},
	"vec3":         {IntVec3Compose, Arity{3, 3}},
	"magnitude":    {IntVec3Magnitude, Arity{1, 1}},
	"normalize":    {IntVec3Normalize, Arity{1, 1}},
	"distance":     {IntVec3Distance, Arity{2, 2}},
	"angle":        {IntVec3Angle, Arity{2, 2}},
	"quat_euler":   {IntQuatComposeEuler, Arity{3, 3}},
	"quat_axis":    {IntQuatComposeAxisAngle, Arity{2, 2}},
	"color_rgba":   {IntColorRGBA, Arity{4, 4}},
	"color_hsv":    {IntColorHSV, Arity{4, 4}},
	"color_r":      {IntColorR, Arity{1, 1}},
	"color_g":      {IntColorG, Arity{1, 1}},
	"color_b":      {IntColorB, Arity{1, 1}},
	"color_a":      {IntColorA, Arity{1, 1}},
	"color_for":    {IntColorFor, Arity{1, 1}},
	"type_of":      {IntTypeOf, Arity{1, 1}},
	"hash_of":      {IntHashOf, Arity{1, 1}},
	"truthy":       {IntTruthy, Arity{1, 1}},
	"falsy":        {IntFalsy, Arity{1, 1}},
	"non_null":     {IntNonNull, Arity{1, 1}},
	"random":       {IntRandom, Arity{0, 2}},
	"round":        {IntRound, Arity{1, 1}},
	"floor":        {IntFloor, Arity{1, 1}},
	"ceil":         {IntCeil, Arity{1, 1}},
	"clamp":        {IntClamp, Arity{3, 3}},
	"lerp":         {IntLerp, Arity{3, 3}},
	"min":          {IntMin, Arity{2, 2}},
	"max":          {IntMax, Arity{2, 2}},
	"perlin3":      {IntPerlin3, Arity{1, 1}},
	"random_sphere": {IntRandomSphere, Arity{0, 0}},
	"random_circle_xz": {IntRandomCircleXZ, Arity{0, 0}},
	"mem_load":     {IntMemLoadDyn, Arity{1, 1}},
	"mem_store":    {IntMemStoreDyn, Arity{2, 2}},
}

// TouchesMemory reports whether an intrinsic reads or writes the blackboard
// through a dynamic key, which both disqualifies it from static
// pre-evaluation and makes it subject to a binder's DisallowMemoryAccess
// flag.
func (k Intrinsic) TouchesMemory() bool {
	return k == IntMemLoadDyn || k == IntMemStoreDyn
}

// IsNonDeterministic reports whether an intrinsic must never be folded by
// the optimizer's static pre-evaluation pass.
func (k Intrinsic) IsNonDeterministic() bool {
	switch k {
	case IntRandom, IntRandomSphere, IntRandomCircleXZ:
		return true
	default:
		return false
	}
}
