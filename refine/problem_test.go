package refine

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"

	"github.com/mfagerlund/Rotera-sub014/residuals"
)

func TestPackApplyRoundtrip(t *testing.T) {
	s := buildTestScene(t)
	vp, _ := s.Viewpoint("front")
	vp.Adjustable = true

	x := s.packParams()
	// 3 points * 3 + 1 adjustable viewpoint * 7
	if len(x) != 16 {
		t.Fatalf("parameter vector length %d, want 16", len(x))
	}

	// Perturb and write back.
	x[0] = 9.5   // origin.X
	x[4] = -2.25 // axis.Y
	x[15] = 42   // front center Z
	s.applyParams(x)

	p, _ := s.Point("origin")
	if !almostEqual(p.X, 9.5, 1e-12) {
		t.Errorf("origin.X = %f, want 9.5", p.X)
	}
	p, _ = s.Point("axis")
	if !almostEqual(p.Y, -2.25, 1e-12) {
		t.Errorf("axis.Y = %f, want -2.25", p.Y)
	}
	if !almostEqual(vp.Pose.Point().Z, 42, 1e-12) {
		t.Errorf("viewpoint center Z = %f, want 42", vp.Pose.Point().Z)
	}

	// Round trip is stable.
	again := s.packParams()
	for i := range x {
		if !almostEqual(again[i], x[i], 1e-9) {
			t.Errorf("param[%d] drifted: %f vs %f", i, x[i], again[i])
		}
	}
}

func TestApplyParamsNormalizesQuaternion(t *testing.T) {
	s := NewScene()
	if err := s.SetViewpoint("cam", &Viewpoint{
		Pose:       identityPose(),
		Intrinsics: testIntrinsics,
		Adjustable: true,
	}); err != nil {
		t.Fatal(err)
	}

	x := s.packParams()
	x[0], x[1], x[2], x[3] = 2, 0, 0, 0 // off the unit sphere
	s.applyParams(x)

	vp, _ := s.Viewpoint("cam")
	q := vp.Pose.Orientation().Quaternion()
	n := q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag
	if !almostEqual(n, 1, 1e-9) {
		t.Errorf("quaternion norm^2 = %f, want 1", n)
	}
}

func TestBuildProblemEvaluatesWithoutMutatingScene(t *testing.T) {
	s := buildTestScene(t)
	if err := s.AddConstraint(&PointLockConstraint{
		PointID: "free", Mask: residuals.AxisMask{true, true, true},
		Target: r3.Vector{X: 2, Y: 2, Z: 2}, Tolerance: 1.0,
	}); err != nil {
		t.Fatal(err)
	}

	problem, x0 := BuildProblem(s)
	before, _ := s.Point("free")

	perturbed := make([]float64, len(x0))
	copy(perturbed, x0)
	for i := range perturbed {
		perturbed[i] += 0.5
	}
	_ = problem.Func(perturbed)

	after, _ := s.Point("free")
	if before != after {
		t.Errorf("problem evaluation mutated the scene: %+v -> %+v", before, after)
	}
}

func TestRefineMovesPointToLockTarget(t *testing.T) {
	logger := logging.NewTestLogger(t)

	s := NewScene()
	s.SetPoint("p", r3.Vector{X: 1, Y: -2, Z: 0.5})
	target := r3.Vector{X: 3, Y: 4, Z: -1}
	if err := s.AddConstraint(&PointLockConstraint{
		PointID: "p", Mask: residuals.AxisMask{true, true, true},
		Target: target, Tolerance: 1.0,
	}); err != nil {
		t.Fatal(err)
	}

	cost, err := Refine(s, logger, Options{})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if cost > 1e-6 {
		t.Errorf("final cost %g, want ~0", cost)
	}

	p, _ := s.Point("p")
	if !almostEqual(p.X, target.X, 1e-3) || !almostEqual(p.Y, target.Y, 1e-3) || !almostEqual(p.Z, target.Z, 1e-3) {
		t.Errorf("point after refine %+v, want %+v", p, target)
	}
}

func TestRefinePullsPointOntoLine(t *testing.T) {
	logger := logging.NewTestLogger(t)

	s := NewScene()
	s.SetPoint("a", r3.Vector{})
	s.SetPoint("b", r3.Vector{X: 2})
	s.SetPoint("c", r3.Vector{X: 1, Y: 0.8, Z: -0.3})

	// Pin the line endpoints so only c is effectively free to move.
	if err := s.AddConstraint(NewPointLock("a", residuals.AxisMask{true, true, true}, r3.Vector{})); err != nil {
		t.Fatal(err)
	}
	if err := s.AddConstraint(NewPointLock("b", residuals.AxisMask{true, true, true}, r3.Vector{X: 2})); err != nil {
		t.Fatal(err)
	}
	if err := s.AddConstraint(NewCollinear("a", "b", "c")); err != nil {
		t.Fatal(err)
	}

	if _, err := Refine(s, logger, Options{}); err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	a, _ := s.Point("a")
	b, _ := s.Point("b")
	c, _ := s.Point("c")
	res := residuals.LineConstraint(a, b, c, 1.0)
	if norm := res[0]*res[0] + res[1]*res[1] + res[2]*res[2]; norm > 1e-4 {
		t.Errorf("point c still off the line after refine: residual %v", res)
	}
}

func TestRefineRequiresConstraints(t *testing.T) {
	logger := logging.NewTestLogger(t)
	s := NewScene()
	s.SetPoint("p", r3.Vector{})
	if _, err := Refine(s, logger, Options{}); err == nil {
		t.Error("refining with no constraints should fail")
	}
}
