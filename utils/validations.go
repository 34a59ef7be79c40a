package utils

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// ValidateSpread checks the geometric quality of a set of world points before
// refinement and returns human-readable warnings. Clustered or near-planar
// point sets make the normal equations ill-conditioned, so the caller should
// surface these to the user rather than silently refining.
func ValidateSpread(points []r3.Vector) []string {
	var warnings []string
	n := len(points)
	if n < 3 {
		warnings = append(warnings, fmt.Sprintf("only %d points; refinement needs at least 3 for a stable solution", n))
		return warnings
	}

	// Compute centroid
	var cx, cy, cz float64
	for _, p := range points {
		cx += p.X
		cy += p.Y
		cz += p.Z
	}
	cx /= float64(n)
	cy /= float64(n)
	cz /= float64(n)

	// Compute standard deviations
	var stdX, stdY, stdZ float64
	for _, p := range points {
		stdX += (p.X - cx) * (p.X - cx)
		stdY += (p.Y - cy) * (p.Y - cy)
		stdZ += (p.Z - cz) * (p.Z - cz)
	}
	stdX = math.Sqrt(stdX / float64(n))
	stdY = math.Sqrt(stdY / float64(n))
	stdZ = math.Sqrt(stdZ / float64(n))

	if stdX < 1e-6 && stdY < 1e-6 && stdZ < 1e-6 {
		warnings = append(warnings, "all points coincide; structure is unobservable")
		return warnings
	}
	axesFlat := 0
	for _, std := range []float64{stdX, stdY, stdZ} {
		if std < 1e-6 {
			axesFlat++
		}
	}
	if axesFlat >= 1 {
		warnings = append(warnings, fmt.Sprintf("points are flat along %d axis/axes (spread X=%.3g Y=%.3g Z=%.3g)", axesFlat, stdX, stdY, stdZ))
	}
	return warnings
}
