package game

import (
	"github.com/chewxy/math32"
	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
)

// AABBFromDimensions returns a bounding box from the given dimensions, centred
// on the XZ plane with its base at Y zero.
func AABBFromDimensions(width, height float32) cube.BBox {
	h := width / 2
	return cube.Box(
		-h, 0, -h,
		h, height, h,
	)
}

// AABBFromHalfExtents returns a bounding box centred on the origin with the
// given half extents per axis.
func AABBFromHalfExtents(ext mgl32.Vec3) cube.BBox {
	return cube.Box(
		-ext.X(), -ext.Y(), -ext.Z(),
		ext.X(), ext.Y(), ext.Z(),
	)
}

// AABBHalfExtents returns the half extents of a bounding box per axis.
func AABBHalfExtents(b cube.BBox) mgl32.Vec3 {
	return b.Max().Sub(b.Min()).Mul(0.5)
}

// AABBCenter returns the centre point of a bounding box.
func AABBCenter(b cube.BBox) mgl32.Vec3 {
	return b.Min().Add(b.Max()).Mul(0.5)
}

// AABBVectorDistance calculates the distance between an AABB and a vector.
func AABBVectorDistance(a cube.BBox, v mgl32.Vec3) float32 {
	x := math32.Max(a.Min().X()-v.X(), math32.Max(0, v.X()-a.Max().X()))
	y := math32.Max(a.Min().Y()-v.Y(), math32.Max(0, v.Y()-a.Max().Y()))
	z := math32.Max(a.Min().Z()-v.Z(), math32.Max(0, v.Z()-a.Max().Z()))

	dist := math32.Sqrt(math32.Pow(x, 2) + math32.Pow(y, 2) + math32.Pow(z, 2))
	if math32.IsNaN(dist) {
		dist = 0
	}

	return dist
}

// AABBHasZeroVolume reports whether the bounding box encloses no space at all.
func AABBHasZeroVolume(b cube.BBox) bool {
	return b.Min() == b.Max()
}
