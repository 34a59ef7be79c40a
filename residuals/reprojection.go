package residuals

import "github.com/golang/geo/r3"

// BehindCameraPenalty is returned in both components of an image-point
// residual whose world point has non-positive camera-space depth. It is a
// large finite constant rather than Inf so a gradient-based solver is pushed
// away from the infeasible region instead of stalling on non-finite values.
const BehindCameraPenalty = 1e6

// ImagePoint penalizes the discrepancy between a world point's projection
// and its observed pixel location. The result is always length 2, ordered
// [u, v], with each component (projected - observed) / sigma. A point at or
// behind the camera plane yields BehindCameraPenalty in both components.
// sigma must be positive.
func ImagePoint(world r3.Vector, observed Pixel, intr Intrinsics, rot RotationMatrix, center r3.Vector, sigma float64) []float64 {
	proj, ok := ProjectPoint(world, intr, rot, center)
	if !ok {
		return []float64{BehindCameraPenalty, BehindCameraPenalty}
	}
	return []float64{
		(proj.U - observed.U) / sigma,
		(proj.V - observed.V) / sigma,
	}
}
