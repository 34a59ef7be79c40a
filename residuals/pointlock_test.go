package residuals

import (
	"testing"

	"github.com/golang/geo/r3"
)

func TestPointLockEmptyMask(t *testing.T) {
	res := PointLock(r3.Vector{X: 1, Y: 2, Z: 3}, AxisMask{}, r3.Vector{}, DefaultLockTolerance)
	if len(res) != 0 {
		t.Errorf("empty mask should produce an empty residual, got %v", res)
	}
}

func TestPointLockPerAxis(t *testing.T) {
	point := r3.Vector{X: 1, Y: 2, Z: 3}
	target := r3.Vector{X: 0.5, Y: 4, Z: 3.5}

	cases := []struct {
		name string
		mask AxisMask
		want []float64
	}{
		{"all", AxisMask{true, true, true}, []float64{0.5, -2, -0.5}},
		{"x only", AxisMask{true, false, false}, []float64{0.5}},
		{"y only", AxisMask{false, true, false}, []float64{-2}},
		{"z only", AxisMask{false, false, true}, []float64{-0.5}},
		{"x and z", AxisMask{true, false, true}, []float64{0.5, -0.5}},
	}
	for _, tc := range cases {
		res := PointLock(point, tc.mask, target, 1.0)
		if len(res) != len(tc.want) {
			t.Errorf("%s: got %d residuals, want %d", tc.name, len(res), len(tc.want))
			continue
		}
		for i := range res {
			if !almostEqual(res[i], tc.want[i], 1e-12) {
				t.Errorf("%s: residual[%d] = %f, want %f", tc.name, i, res[i], tc.want[i])
			}
		}
	}
}

func TestPointLockAtTargetIsZero(t *testing.T) {
	target := r3.Vector{X: -4, Y: 0.25, Z: 19}
	res := PointLock(target, AxisMask{true, true, true}, target, DefaultLockTolerance)
	for i, r := range res {
		if !almostEqual(r, 0, 1e-12) {
			t.Errorf("residual[%d] = %f, want 0", i, r)
		}
	}
}

func TestPointLockToleranceIsInverseWeight(t *testing.T) {
	point := r3.Vector{X: 2}
	target := r3.Vector{X: 1}
	mask := AxisMask{true, false, false}

	full := PointLock(point, mask, target, 0.5)
	half := PointLock(point, mask, target, 0.25)
	if !almostEqual(half[0], 2*full[0], 1e-12) {
		t.Errorf("halving tolerance should double the residual: %f vs %f", full[0], half[0])
	}
}

func TestDefaultWeightingConstants(t *testing.T) {
	// Pinned so refinement behavior is reproducible across releases.
	if DefaultLockTolerance != 0.001 {
		t.Errorf("DefaultLockTolerance = %v, want 0.001", DefaultLockTolerance)
	}
	if DefaultSigma != 1.0 {
		t.Errorf("DefaultSigma = %v, want 1.0", DefaultSigma)
	}
}

func TestAxisMaskCount(t *testing.T) {
	if (AxisMask{}).Count() != 0 {
		t.Error("empty mask should count 0")
	}
	if (AxisMask{true, false, true}).Count() != 2 {
		t.Error("mask {x,z} should count 2")
	}
	if (AxisMask{true, true, true}).Count() != 3 {
		t.Error("full mask should count 3")
	}
}
