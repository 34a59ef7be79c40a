package residuals

import "github.com/golang/geo/r3"

// DefaultLockTolerance is the tolerance applied to point locks when the
// caller does not choose one. Locks are hard constraints in practice, so the
// default makes a unit of positional drift three orders of magnitude more
// expensive than a unit of reprojection error.
const DefaultLockTolerance = 0.001

// DefaultSigma is the weighting applied to line and image-point residuals
// when the caller does not choose one.
const DefaultSigma = 1.0

// AxisMask selects which of the x, y, z axes an operation applies to.
type AxisMask [3]bool

// Count returns the number of selected axes.
func (m AxisMask) Count() int {
	n := 0
	for _, set := range m {
		if set {
			n++
		}
	}
	return n
}

// PointLock returns one residual per masked axis, in fixed x, y, z order:
// (point[i] - target[i]) / tolerance. Unmasked axes contribute no entry, so
// the result has between 0 and 3 elements. tolerance acts as an inverse
// weight and must be positive; the function does not guard against other
// values.
func PointLock(point r3.Vector, mask AxisMask, target r3.Vector, tolerance float64) []float64 {
	out := make([]float64, 0, mask.Count())
	if mask[0] {
		out = append(out, (point.X-target.X)/tolerance)
	}
	if mask[1] {
		out = append(out, (point.Y-target.Y)/tolerance)
	}
	if mask[2] {
		out = append(out, (point.Z-target.Z)/tolerance)
	}
	return out
}
