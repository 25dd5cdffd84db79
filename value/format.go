package value

import "fmt"

// TypeName returns the short type name used in diagnostics and panic text.
func TypeName(t Type) string { return t.String() }

// ToScratch renders a human-readable form of v, e.g. for panic messages and
// the formatter's literal rendering.
func ToScratch(v Value) string {
	switch v.Type() {
	case TypeNull:
		return "null"
	case TypeNum:
		return fmt.Sprintf("%g", v.Num())
	case TypeBool:
		return fmt.Sprintf("%t", v.Bool())
	case TypeVec3:
		x, y, z := v.Vec3()
		return fmt.Sprintf("vec3(%g, %g, %g)", x, y, z)
	case TypeQuat:
		x, y, z, w := v.Quat()
		return fmt.Sprintf("quat(%g, %g, %g, %g)", x, y, z, w)
	case TypeEntity:
		return fmt.Sprintf("entity(%d)", v.Entity())
	case TypeStr:
		return fmt.Sprintf("str(#%08x)", v.Str())
	case TypeColor:
		r, g, b, a := v.Color()
		return fmt.Sprintf("color(%g, %g, %g, %g)", r, g, b, a)
	default:
		return "<invalid>"
	}
}
