package refine

import (
	"fmt"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"

	"github.com/mfagerlund/Rotera-sub014/residuals"
)

// Viewpoint is one captured image's camera: its pose in world coordinates
// plus pinhole intrinsics. Adjustable viewpoints become free parameters
// during refinement; the rest stay fixed.
type Viewpoint struct {
	Pose       spatialmath.Pose
	Intrinsics residuals.Intrinsics
	Adjustable bool
}

// Scene holds the current estimate of 3D structure and cameras together with
// the registered constraints. The residual kernels in package residuals stay
// pure; the scene is the mutable collaborator the external solver adjusts.
// Scene is not safe for concurrent mutation; the owning service serializes
// access.
type Scene struct {
	points     map[string]r3.Vector
	pointOrder []string

	viewpoints map[string]*Viewpoint
	vpOrder    []string

	// constraints in registration order. The residual vector concatenates
	// them in exactly this order, which is the contract the Jacobian-based
	// solver assembles against.
	constraints []Constraint
}

// NewScene returns an empty scene.
func NewScene() *Scene {
	return &Scene{
		points:     map[string]r3.Vector{},
		viewpoints: map[string]*Viewpoint{},
	}
}

// SetPoint inserts or moves a world point.
func (s *Scene) SetPoint(id string, p r3.Vector) {
	if _, ok := s.points[id]; !ok {
		s.pointOrder = append(s.pointOrder, id)
	}
	s.points[id] = p
}

// Point returns a world point by id.
func (s *Scene) Point(id string) (r3.Vector, bool) {
	p, ok := s.points[id]
	return p, ok
}

// PointIDs returns point ids in insertion order.
func (s *Scene) PointIDs() []string {
	out := make([]string, len(s.pointOrder))
	copy(out, s.pointOrder)
	return out
}

// RemovePoint deletes a point and every constraint that references it, so
// constraints never dangle. Returns the number of constraints dropped.
func (s *Scene) RemovePoint(id string) (int, error) {
	if _, ok := s.points[id]; !ok {
		return 0, fmt.Errorf("unknown point %q", id)
	}
	delete(s.points, id)
	for i, pid := range s.pointOrder {
		if pid == id {
			s.pointOrder = append(s.pointOrder[:i], s.pointOrder[i+1:]...)
			break
		}
	}

	kept := s.constraints[:0]
	dropped := 0
	for _, c := range s.constraints {
		references := false
		for _, pid := range c.pointIDs() {
			if pid == id {
				references = true
				break
			}
		}
		if references {
			dropped++
		} else {
			kept = append(kept, c)
		}
	}
	s.constraints = kept
	return dropped, nil
}

// SetViewpoint inserts or replaces a viewpoint.
func (s *Scene) SetViewpoint(id string, vp *Viewpoint) error {
	if vp == nil {
		return fmt.Errorf("viewpoint %q is nil", id)
	}
	if err := vp.Intrinsics.CheckValid(); err != nil {
		return fmt.Errorf("viewpoint %q: %w", id, err)
	}
	if _, ok := s.viewpoints[id]; !ok {
		s.vpOrder = append(s.vpOrder, id)
	}
	s.viewpoints[id] = vp
	return nil
}

// Viewpoint returns a viewpoint by id.
func (s *Scene) Viewpoint(id string) (*Viewpoint, bool) {
	vp, ok := s.viewpoints[id]
	return vp, ok
}

// SetViewpointPose updates the pose of an existing viewpoint.
func (s *Scene) SetViewpointPose(id string, pose spatialmath.Pose) error {
	vp, ok := s.viewpoints[id]
	if !ok {
		return fmt.Errorf("unknown viewpoint %q", id)
	}
	vp.Pose = pose
	return nil
}

// AddConstraint registers a constraint. Referenced points and viewpoints
// must already exist; together with the RemovePoint cascade this keeps every
// registered constraint evaluable.
func (s *Scene) AddConstraint(c Constraint) error {
	for _, id := range c.pointIDs() {
		if _, ok := s.points[id]; !ok {
			return fmt.Errorf("constraint references unknown point %q", id)
		}
	}
	if oc, ok := c.(*ObservationConstraint); ok {
		if _, found := s.viewpoints[oc.ViewpointID]; !found {
			return fmt.Errorf("constraint references unknown viewpoint %q", oc.ViewpointID)
		}
	}
	s.constraints = append(s.constraints, c)
	return nil
}

// ClearConstraints drops every registered constraint.
func (s *Scene) ClearConstraints() {
	s.constraints = nil
}

// ConstraintCount returns the number of registered constraints.
func (s *Scene) ConstraintCount() int {
	return len(s.constraints)
}

// ResidualVector evaluates every constraint against the current estimates
// and concatenates the results in registration order. Every element is
// finite for geometrically degenerate input; see package residuals.
func (s *Scene) ResidualVector() []float64 {
	out := make([]float64, 0, 2*len(s.constraints))
	for _, c := range s.constraints {
		out = append(out, c.Residuals(s)...)
	}
	return out
}

// Cost returns the sum of squared residuals.
func (s *Scene) Cost() float64 {
	sum := 0.0
	for _, r := range s.ResidualVector() {
		sum += r * r
	}
	return sum
}

// clone makes a copy deep enough for parameter perturbation: points and
// viewpoint structs are copied, intrinsics and constraints are shared
// (constraints only hold ids and weights, never estimates).
func (s *Scene) clone() *Scene {
	out := &Scene{
		points:      make(map[string]r3.Vector, len(s.points)),
		pointOrder:  s.pointOrder,
		viewpoints:  make(map[string]*Viewpoint, len(s.viewpoints)),
		vpOrder:     s.vpOrder,
		constraints: s.constraints,
	}
	for id, p := range s.points {
		out.points[id] = p
	}
	for id, vp := range s.viewpoints {
		cp := *vp
		out.viewpoints[id] = &cp
	}
	return out
}
