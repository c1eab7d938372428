package angle

import "math"

// ToRange converts an angle in degrees into [min, min+360) or, when open is
// true, into (min, min+360].  Angles already in range are returned unchanged.
func ToRange(a, min float64, open bool) float64 {
	if open {
		if a > min && a <= min+360 {
			return a
		}
		d := math.Mod(a-min, 360)
		if d <= 0 {
			d += 360
		}
		return min + d
	}
	if a >= min && a < min+360 {
		return a
	}
	d := math.Mod(a-min, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		// -tiny + 360 rounds up to 360.
		d = 0
	}
	return min + d
}

// Heading normalises a stored heading into [0, 360).
func Heading(a float64) float64 {
	return ToRange(a, 0, false)
}

// PlusMinus180 is an angle in degrees, stored as a value in range (-180, 180].
type PlusMinus180 struct {
	float64
}

// Float returns the angle in degrees, range (-180, 180].
func (a PlusMinus180) Float() float64 {
	return a.float64
}

// FromFloat converts a float of any magnitude to a PlusMinus180.
func FromFloat(f float64) PlusMinus180 {
	return PlusMinus180{ToRange(f, -180, true)}
}

// Diff returns the signed shortest rotation from b to a, in (-180, 180].
func Diff(a, b float64) float64 {
	return FromFloat(a - b).Float()
}

func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
