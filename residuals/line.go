package residuals

import "github.com/golang/geo/r3"

// LineConstraint penalizes point c for deviating from the line through a and
// b. The residual is the cross product (c-a) x (b-a) scaled by 1/sigma, so
// it is exactly zero when c is collinear with a and b. The magnitude scales
// with |b-a| as well as the perpendicular offset of c; it is not a
// normalized distance. Swapping a and b flips component signs but preserves
// the Euclidean magnitude. sigma must be positive.
func LineConstraint(a, b, c r3.Vector, sigma float64) []float64 {
	cross := c.Sub(a).Cross(b.Sub(a))
	return []float64{
		cross.X / sigma,
		cross.Y / sigma,
		cross.Z / sigma,
	}
}
