package value

import "math"

// Arithmetic follows type-directed overloading: Num op Num ->
// Num; Vec3 op Vec3 -> Vec3; Vec3 * Num -> Vec3; anything else -> Null.

func Add(a, b Value) Value {
	switch {
	case a.Type() == TypeNum && b.Type() == TypeNum:
		return NewNum(a.Num() + b.Num())
	case a.Type() == TypeVec3 && b.Type() == TypeVec3:
		ax, ay, az := a.Vec3()
		bx, by, bz := b.Vec3()
		return NewVec3(ax+bx, ay+by, az+bz)
	default:
		return Null
	}
}

func Sub(a, b Value) Value {
	switch {
	case a.Type() == TypeNum && b.Type() == TypeNum:
		return NewNum(a.Num() - b.Num())
	case a.Type() == TypeVec3 && b.Type() == TypeVec3:
		ax, ay, az := a.Vec3()
		bx, by, bz := b.Vec3()
		return NewVec3(ax-bx, ay-by, az-bz)
	default:
		return Null
	}
}

func Mul(a, b Value) Value {
	switch {
	case a.Type() == TypeNum && b.Type() == TypeNum:
		return NewNum(a.Num() * b.Num())
	case a.Type() == TypeVec3 && b.Type() == TypeVec3:
		ax, ay, az := a.Vec3()
		bx, by, bz := b.Vec3()
		return NewVec3(ax*bx, ay*by, az*bz)
	case a.Type() == TypeVec3 && b.Type() == TypeNum:
		ax, ay, az := a.Vec3()
		s := float32(b.Num())
		return NewVec3(ax*s, ay*s, az*s)
	case a.Type() == TypeNum && b.Type() == TypeVec3:
		bx, by, bz := b.Vec3()
		s := float32(a.Num())
		return NewVec3(bx*s, by*s, bz*s)
	default:
		return Null
	}
}

func Div(a, b Value) Value {
	switch {
	case a.Type() == TypeNum && b.Type() == TypeNum:
		return NewNum(a.Num() / b.Num())
	case a.Type() == TypeVec3 && b.Type() == TypeNum:
		ax, ay, az := a.Vec3()
		s := float32(b.Num())
		return NewVec3(ax/s, ay/s, az/s)
	default:
		return Null
	}
}

// Mod matches Go's math.Mod (IEEE remainder, same sign convention as C's
// fmod), so negative operands behave exactly like the host math library.
func Mod(a, b Value) Value {
	if a.Type() == TypeNum && b.Type() == TypeNum {
		return NewNum(math.Mod(a.Num(), b.Num()))
	}
	return Null
}

// Negate is the unary minus: Num -> Num, Vec3 -> Vec3, otherwise Null.
func Negate(a Value) Value {
	switch a.Type() {
	case TypeNum:
		return NewNum(-a.Num())
	case TypeVec3:
		x, y, z := a.Vec3()
		return NewVec3(-x, -y, -z)
	default:
		return Null
	}
}

// InvertTruthy is the unary `!`.
func InvertTruthy(a Value) Value {
	return NewBool(!a.Truthy())
}

// Magnitude returns the Euclidean length of a Vec3, or Null for any other type.
func Magnitude(a Value) Value {
	if a.Type() != TypeVec3 {
		return Null
	}
	x, y, z := a.Vec3()
	return NewNum(math.Sqrt(float64(x*x + y*y + z*z)))
}

// Distance returns the Euclidean distance between two Vec3 values.
func Distance(a, b Value) Value {
	if a.Type() != TypeVec3 || b.Type() != TypeVec3 {
		return Null
	}
	return Magnitude(Sub(a, b))
}

// Normalize returns a unit-length Vec3, or the zero vector if a is the zero
// vector (avoids division by zero rather than producing NaN components).
func Normalize(a Value) Value {
	if a.Type() != TypeVec3 {
		return Null
	}
	x, y, z := a.Vec3()
	mag := math.Sqrt(float64(x*x + y*y + z*z))
	if mag == 0 {
		return a
	}
	inv := float32(1 / mag)
	return NewVec3(x*inv, y*inv, z*inv)
}

// Angle returns the angle in radians between two Vec3 values, or Null.
func Angle(a, b Value) Value {
	if a.Type() != TypeVec3 || b.Type() != TypeVec3 {
		return Null
	}
	ax, ay, az := a.Vec3()
	bx, by, bz := b.Vec3()
	dot := float64(ax*bx + ay*by + az*bz)
	ma := math.Sqrt(float64(ax*ax + ay*ay + az*az))
	mb := math.Sqrt(float64(bx*bx + by*by + bz*bz))
	if ma == 0 || mb == 0 {
		return Null
	}
	cos := dot / (ma * mb)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return NewNum(math.Acos(cos))
}

// ComponentX, ComponentY, ComponentZ extract a single Vec3/Quat component as
// a Num, or Null for other types.
func ComponentX(a Value) Value {
	switch a.Type() {
	case TypeVec3, TypeQuat:
		x, _, _ := a.Vec3()
		return NewNum(float64(x))
	default:
		return Null
	}
}

func ComponentY(a Value) Value {
	switch a.Type() {
	case TypeVec3, TypeQuat:
		_, y, _ := a.Vec3()
		return NewNum(float64(y))
	default:
		return Null
	}
}

func ComponentZ(a Value) Value {
	switch a.Type() {
	case TypeVec3, TypeQuat:
		_, _, z := a.Vec3()
		return NewNum(float64(z))
	default:
		return Null
	}
}

// ComposeVec3 builds a Vec3 from three Num values (Null if any isn't a Num).
func ComposeVec3(x, y, z Value) Value {
	if x.Type() != TypeNum || y.Type() != TypeNum || z.Type() != TypeNum {
		return Null
	}
	return NewVec3(float32(x.Num()), float32(y.Num()), float32(z.Num()))
}

// ComposeQuatEuler builds a quaternion from Euler angles (radians, XYZ order).
func ComposeQuatEuler(pitch, yaw, roll Value) Value {
	if pitch.Type() != TypeNum || yaw.Type() != TypeNum || roll.Type() != TypeNum {
		return Null
	}
	p, y, r := pitch.Num()/2, yaw.Num()/2, roll.Num()/2
	cp, sp := math.Cos(p), math.Sin(p)
	cy, sy := math.Cos(y), math.Sin(y)
	cr, sr := math.Cos(r), math.Sin(r)

	qx := sr*cp*cy - cr*sp*sy
	qy := cr*sp*cy + sr*cp*sy
	qz := cr*cp*sy - sr*sp*cy
	return NewQuat(float32(qx), float32(qy), float32(qz))
}

// ComposeQuatAxisAngle builds a quaternion from a rotation axis and an angle
// in radians. The axis is normalized first; a zero axis yields identity.
func ComposeQuatAxisAngle(axis, angle Value) Value {
	if axis.Type() != TypeVec3 || angle.Type() != TypeNum {
		return Null
	}
	n := Normalize(axis)
	x, y, z := n.Vec3()
	half := angle.Num() / 2
	s := float32(math.Sin(half))
	return NewQuat(x*s, y*s, z*s)
}

// ComposeColorRGBA builds a color from four Num channels, alpha included
// (Null if any isn't a Num). Components are stored unpremultiplied so each
// channel reads back through the accessors.
func ComposeColorRGBA(r, g, b, a Value) Value {
	if r.Type() != TypeNum || g.Type() != TypeNum || b.Type() != TypeNum || a.Type() != TypeNum {
		return Null
	}
	return NewColor(float32(r.Num()), float32(g.Num()), float32(b.Num()), float32(a.Num()))
}

// ComposeColorHSV converts hue (turns, 0..1), saturation, value, and alpha
// into a color.
func ComposeColorHSV(h, s, vv, a Value) Value {
	if h.Type() != TypeNum || s.Type() != TypeNum || vv.Type() != TypeNum || a.Type() != TypeNum {
		return Null
	}
	hue, sat, val := h.Num(), s.Num(), vv.Num()
	hue = hue - math.Floor(hue)
	i := math.Floor(hue * 6)
	f := hue*6 - i
	p := val * (1 - sat)
	q := val * (1 - f*sat)
	t := val * (1 - (1-f)*sat)

	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = val, t, p
	case 1:
		r, g, b = q, val, p
	case 2:
		r, g, b = p, val, t
	case 3:
		r, g, b = p, q, val
	case 4:
		r, g, b = t, p, val
	case 5:
		r, g, b = val, p, q
	}
	return NewColor(float32(r), float32(g), float32(b), float32(a.Num()))
}

// ColorR, ColorG, ColorB, ColorA extract a single color channel as a Num,
// or Null for other types.
func ColorR(v Value) Value {
	if v.Type() != TypeColor {
		return Null
	}
	r, _, _, _ := v.Color()
	return NewNum(float64(r))
}

func ColorG(v Value) Value {
	if v.Type() != TypeColor {
		return Null
	}
	_, g, _, _ := v.Color()
	return NewNum(float64(g))
}

func ColorB(v Value) Value {
	if v.Type() != TypeColor {
		return Null
	}
	_, _, b, _ := v.Color()
	return NewNum(float64(b))
}

func ColorA(v Value) Value {
	if v.Type() != TypeColor {
		return Null
	}
	_, _, _, a := v.Color()
	return NewNum(float64(a))
}

// ColorFor derives a stable, fully-saturated debug color from any value:
// the payload words are mixed into a hue so distinct values spread across
// the spectrum while the same value always maps to the same color.
func ColorFor(v Value) Value {
	w0, w1, w2, w3 := Words(v)
	h := (uint64(w0)*31+uint64(w1))*31 + uint64(w2)*31 + uint64(w3)
	h *= 0x9E3779B97F4A7C15 // golden-ratio mix
	hue := float64(h>>40) / float64(1<<24)
	return ComposeColorHSV(NewNum(hue), NewNum(1), NewNum(1), NewNum(1))
}
