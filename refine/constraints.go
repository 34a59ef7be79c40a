package refine

import (
	"github.com/golang/geo/r3"

	"github.com/mfagerlund/Rotera-sub014/residuals"
)

// Constraint is one registered geometric constraint. Residuals evaluates it
// against the scene's current estimates; the returned length is fixed per
// constraint kind. Implementations delegate the math to package residuals
// and only do the id lookups.
type Constraint interface {
	Kind() string
	Residuals(s *Scene) []float64

	// pointIDs lists referenced point ids, used for existence validation
	// and for the RemovePoint cascade.
	pointIDs() []string
}

// PointLockConstraint drives a point toward a fixed target on the masked
// axes.
type PointLockConstraint struct {
	PointID   string
	Mask      residuals.AxisMask
	Target    r3.Vector
	Tolerance float64
}

// NewPointLock builds a lock with the default tolerance.
func NewPointLock(pointID string, mask residuals.AxisMask, target r3.Vector) *PointLockConstraint {
	return &PointLockConstraint{
		PointID:   pointID,
		Mask:      mask,
		Target:    target,
		Tolerance: residuals.DefaultLockTolerance,
	}
}

func (c *PointLockConstraint) Kind() string { return "point-lock" }

func (c *PointLockConstraint) Residuals(s *Scene) []float64 {
	p, ok := s.points[c.PointID]
	if !ok {
		return make([]float64, c.Mask.Count())
	}
	return residuals.PointLock(p, c.Mask, c.Target, c.Tolerance)
}

func (c *PointLockConstraint) pointIDs() []string { return []string{c.PointID} }

// CollinearConstraint drives point C toward the line through A and B.
type CollinearConstraint struct {
	AID   string
	BID   string
	CID   string
	Sigma float64
}

// NewCollinear builds a collinearity constraint with the default sigma.
func NewCollinear(aID, bID, cID string) *CollinearConstraint {
	return &CollinearConstraint{AID: aID, BID: bID, CID: cID, Sigma: residuals.DefaultSigma}
}

func (c *CollinearConstraint) Kind() string { return "collinear" }

func (c *CollinearConstraint) Residuals(s *Scene) []float64 {
	a, okA := s.points[c.AID]
	b, okB := s.points[c.BID]
	p, okC := s.points[c.CID]
	if !okA || !okB || !okC {
		return make([]float64, 3)
	}
	return residuals.LineConstraint(a, b, p, c.Sigma)
}

func (c *CollinearConstraint) pointIDs() []string { return []string{c.AID, c.BID, c.CID} }

// ObservationConstraint ties a world point to the pixel where it was marked
// in a viewpoint's image.
type ObservationConstraint struct {
	PointID     string
	ViewpointID string
	Observed    residuals.Pixel
	Sigma       float64
}

// NewObservation builds an image-point constraint with the default sigma.
func NewObservation(pointID, viewpointID string, observed residuals.Pixel) *ObservationConstraint {
	return &ObservationConstraint{
		PointID:     pointID,
		ViewpointID: viewpointID,
		Observed:    observed,
		Sigma:       residuals.DefaultSigma,
	}
}

func (c *ObservationConstraint) Kind() string { return "observation" }

func (c *ObservationConstraint) Residuals(s *Scene) []float64 {
	p, okP := s.points[c.PointID]
	vp, okV := s.viewpoints[c.ViewpointID]
	if !okP || !okV || vp.Pose == nil {
		return make([]float64, 2)
	}
	rot := worldToCameraRotation(vp.Pose)
	return residuals.ImagePoint(p, c.Observed, vp.Intrinsics, rot, vp.Pose.Point(), c.Sigma)
}

func (c *ObservationConstraint) pointIDs() []string { return []string{c.PointID} }
