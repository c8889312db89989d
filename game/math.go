package game

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Clamp32 clamps the given value to the given range.
func Clamp32(val, min, max float32) float32 {
	if val < min {
		return min
	}
	return math32.Min(val, max)
}

// Lerp32 linearly interpolates between two values by the given factor.
func Lerp32(from, to, factor float32) float32 {
	return from + (to-from)*factor
}

// LerpVec3 linearly interpolates between two vectors by the given factor.
func LerpVec3(from, to mgl32.Vec3, factor float32) mgl32.Vec3 {
	return from.Add(to.Sub(from).Mul(factor))
}

// Round32 will round a float32 to a given precision.
func Round32(val float32, precision int) float32 {
	pwr := math32.Pow(10, float32(precision))
	return math32.Round(val*pwr) / pwr
}

// Float32ApproxEq determines whether two floating point numbers are close enough to each other
// by a threshold of 1e-5.
func Float32ApproxEq(a, b float32) bool {
	return math32.Abs(a-b) <= 1e-5
}

// Vec3ApproxEq determines whether two vectors are approximately equal on every axis.
func Vec3ApproxEq(a, b mgl32.Vec3) bool {
	return Float32ApproxEq(a[0], b[0]) && Float32ApproxEq(a[1], b[1]) && Float32ApproxEq(a[2], b[2])
}

// Vec3HzDistSqr returns the squared horizontal distance in a vector.
func Vec3HzDistSqr(vec3 mgl32.Vec3) float32 {
	return vec3.X()*vec3.X() + vec3.Z()*vec3.Z()
}

// AbsVec32 will return the given vector, but all the values of it are switched to their absolute values.
func AbsVec32(vec mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{math32.Abs(vec.X()), math32.Abs(vec.Y()), math32.Abs(vec.Z())}
}

// CeilDiv32 returns ceil(1/x) as an int. x must be positive.
func CeilDiv32(x float32) int {
	return int(math32.Ceil(1.0 / x))
}
