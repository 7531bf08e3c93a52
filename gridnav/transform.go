package gridnav

import "math"

// NormalizeAngle normalizes an angle in degrees to the range [0, 360).
func NormalizeAngle(degrees float64) float64 {
	degrees = math.Mod(degrees, 360)
	if degrees < 0 {
		degrees += 360
	}
	// math.Mod can return 360 - tiny for small negative inputs
	if degrees >= 360 {
		degrees -= 360
	}
	return degrees
}

// MinimumAngleFromTo returns the signed shortest rotation from heading a to heading b.
// The result lies in (-180, 180]; positive is clockwise.
func MinimumAngleFromTo(a, b float64) float64 {
	d := NormalizeAngle(b - a)
	if d <= 180 {
		return d
	}
	return d - 360
}

func sinDeg(degrees float64) float64 { return math.Sin(degrees * math.Pi / 180) }
func cosDeg(degrees float64) float64 { return math.Cos(degrees * math.Pi / 180) }
func atanDeg(v float64) float64      { return math.Atan(v) * 180 / math.Pi }

// Heading returns the compass heading from one point to another
func Heading(fromX, fromY, toX, toY float64) float64 {
	return NormalizeAngle(math.Atan2(toX-fromX, toY-fromY) * 180 / math.Pi)
}

// Distance returns the Euclidean distance between two points
func Distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

// Project moves a point d centimetres along compass heading theta
func Project(x, y, theta, d float64) (float64, float64) {
	return x + d*sinDeg(theta), y + d*cosDeg(theta)
}
