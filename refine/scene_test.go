package refine

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"

	"github.com/mfagerlund/Rotera-sub014/residuals"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) < tol
}

var testIntrinsics = residuals.Intrinsics{Fx: 1000, Fy: 1000, Ppx: 512, Ppy: 384}

func identityPose() spatialmath.Pose {
	return spatialmath.NewPose(r3.Vector{}, &spatialmath.Quaternion{Real: 1})
}

func buildTestScene(t *testing.T) *Scene {
	t.Helper()
	s := NewScene()
	s.SetPoint("origin", r3.Vector{})
	s.SetPoint("axis", r3.Vector{X: 1})
	s.SetPoint("free", r3.Vector{X: 0.5, Z: 1})
	if err := s.SetViewpoint("front", &Viewpoint{Pose: identityPose(), Intrinsics: testIntrinsics}); err != nil {
		t.Fatalf("SetViewpoint failed: %v", err)
	}
	return s
}

func TestResidualVectorRegistrationOrder(t *testing.T) {
	s := buildTestScene(t)

	// Lock (1 entry), collinear (3 entries), observation (2 entries): the
	// stacked vector is their concatenation in registration order.
	if err := s.AddConstraint(&PointLockConstraint{
		PointID: "axis", Mask: residuals.AxisMask{true, false, false},
		Target: r3.Vector{X: 3}, Tolerance: 1.0,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddConstraint(NewCollinear("origin", "axis", "free")); err != nil {
		t.Fatal(err)
	}
	if err := s.AddConstraint(&ObservationConstraint{
		PointID: "free", ViewpointID: "front",
		Observed: residuals.Pixel{U: 512, V: 384}, Sigma: 1.0,
	}); err != nil {
		t.Fatal(err)
	}

	vec := s.ResidualVector()
	if len(vec) != 6 {
		t.Fatalf("residual vector length %d, want 6", len(vec))
	}
	// Lock: (1-3)/1 = -2.
	if !almostEqual(vec[0], -2, 1e-12) {
		t.Errorf("lock residual = %f, want -2", vec[0])
	}
	// Collinear: AC=(0.5,0,1), AB=(1,0,0) -> (0,1,0).
	if !almostEqual(vec[1], 0, 1e-12) || !almostEqual(vec[2], 1, 1e-12) || !almostEqual(vec[3], 0, 1e-12) {
		t.Errorf("collinear residuals = %v, want [0 1 0]", vec[1:4])
	}
	// Observation: projects to (1000*0.5+512, 384) -> u residual 500.
	if !almostEqual(vec[4], 500, 1e-9) || !almostEqual(vec[5], 0, 1e-9) {
		t.Errorf("observation residuals = %v, want [500 0]", vec[4:6])
	}

	wantCost := 4.0 + 1.0 + 500*500.0
	if !almostEqual(s.Cost(), wantCost, 1e-6) {
		t.Errorf("cost = %f, want %f", s.Cost(), wantCost)
	}
}

func TestAddConstraintValidatesReferences(t *testing.T) {
	s := buildTestScene(t)
	if err := s.AddConstraint(NewPointLock("ghost", residuals.AxisMask{true, true, true}, r3.Vector{})); err == nil {
		t.Error("lock on unknown point should fail")
	}
	if err := s.AddConstraint(NewCollinear("origin", "axis", "ghost")); err == nil {
		t.Error("collinear with unknown point should fail")
	}
	if err := s.AddConstraint(NewObservation("free", "ghostcam", residuals.Pixel{})); err == nil {
		t.Error("observation with unknown viewpoint should fail")
	}
	if s.ConstraintCount() != 0 {
		t.Errorf("failed adds must not register, have %d constraints", s.ConstraintCount())
	}
}

func TestRemovePointCascades(t *testing.T) {
	s := buildTestScene(t)
	if err := s.AddConstraint(NewCollinear("origin", "axis", "free")); err != nil {
		t.Fatal(err)
	}
	if err := s.AddConstraint(NewObservation("free", "front", residuals.Pixel{U: 512, V: 384})); err != nil {
		t.Fatal(err)
	}
	if err := s.AddConstraint(NewPointLock("origin", residuals.AxisMask{true, true, true}, r3.Vector{})); err != nil {
		t.Fatal(err)
	}

	dropped, err := s.RemovePoint("free")
	if err != nil {
		t.Fatalf("RemovePoint failed: %v", err)
	}
	if dropped != 2 {
		t.Errorf("dropped %d constraints, want 2", dropped)
	}
	if s.ConstraintCount() != 1 {
		t.Errorf("have %d constraints, want 1", s.ConstraintCount())
	}
	if _, ok := s.Point("free"); ok {
		t.Error("point should be gone")
	}
	if _, err := s.RemovePoint("free"); err == nil {
		t.Error("removing a missing point should fail")
	}
}

func TestSetViewpointRejectsBadIntrinsics(t *testing.T) {
	s := NewScene()
	err := s.SetViewpoint("bad", &Viewpoint{
		Pose:       identityPose(),
		Intrinsics: residuals.Intrinsics{Fx: 0, Fy: 1000},
	})
	if err == nil {
		t.Error("zero focal length should be rejected at the scene boundary")
	}
	if err := s.SetViewpoint("nil", nil); err == nil {
		t.Error("nil viewpoint should be rejected")
	}
}

func TestProjectToPixelDisplayHelper(t *testing.T) {
	vp := &Viewpoint{Pose: identityPose(), Intrinsics: testIntrinsics}

	px := ProjectToPixel(r3.Vector{X: 1, Y: 2, Z: 10}, vp)
	if px == nil {
		t.Fatal("expected a pixel for a point in front of the camera")
	}
	if !almostEqual(px.U, 612, 1e-9) || !almostEqual(px.V, 584, 1e-9) {
		t.Errorf("got (%f, %f), want (612, 584)", px.U, px.V)
	}

	if ProjectToPixel(r3.Vector{Z: -1}, vp) != nil {
		t.Error("behind-camera point should yield nil, not a penalty value")
	}
	if ProjectToPixel(r3.Vector{Z: 1}, nil) != nil {
		t.Error("nil viewpoint should yield nil")
	}
	if ProjectToPixel(r3.Vector{Z: 1}, &Viewpoint{Intrinsics: testIntrinsics}) != nil {
		t.Error("viewpoint without pose should yield nil")
	}
	if HasValidCameraPose(vp) != true {
		t.Error("valid viewpoint reported invalid")
	}
	if HasValidCameraPose(&Viewpoint{Pose: identityPose()}) {
		t.Error("viewpoint with zero focal length reported valid")
	}
}

func TestWorldToCameraRotationMatchesPoseInverse(t *testing.T) {
	// The kernel convention R*(P-C) must agree with transforming the point
	// through the inverted pose via spatialmath composition.
	pose := spatialmath.NewPose(
		r3.Vector{X: 2, Y: -1, Z: 3},
		&spatialmath.Quaternion{Real: 0.9238795, Imag: 0, Jmag: 0.3826834, Kmag: 0},
	)
	world := r3.Vector{X: 4, Y: 5, Z: 6}

	rot := worldToCameraRotation(pose)
	got := rot.MulVec(world.Sub(pose.Point()))

	pointPose := spatialmath.NewPoseFromPoint(world)
	want := spatialmath.Compose(spatialmath.PoseInverse(pose), pointPose).Point()

	if !almostEqual(got.X, want.X, 1e-9) || !almostEqual(got.Y, want.Y, 1e-9) || !almostEqual(got.Z, want.Z, 1e-9) {
		t.Errorf("camera-frame point mismatch: got %+v, want %+v", got, want)
	}
}
