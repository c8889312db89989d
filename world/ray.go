package world

import (
	"github.com/chewxy/math32"
	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
)

// rayBoxIntersect performs a slab test of the segment from+dir*[0,1] against
// box. It returns the entry fraction along the segment, with a ray starting
// inside the box reporting fraction 0.
func rayBoxIntersect(from, dir mgl32.Vec3, box cube.BBox) (float32, bool) {
	tMin := float32(0)
	tMax := float32(1)

	min, max := box.Min(), box.Max()
	for i := 0; i < 3; i++ {
		if math32.Abs(dir[i]) < 1e-9 {
			if from[i] < min[i] || from[i] > max[i] {
				return 0, false
			}
			continue
		}
		inv := 1 / dir[i]
		t1 := (min[i] - from[i]) * inv
		t2 := (max[i] - from[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math32.Max(tMin, t1)
		tMax = math32.Min(tMax, t2)
		if tMin > tMax {
			return 0, false
		}
	}
	return tMin, true
}
