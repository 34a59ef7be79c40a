package refine

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// pointParams and viewpointParams are the per-entity parameter block widths:
// 3 coordinates per point, quaternion plus center per adjustable viewpoint.
const (
	pointParams     = 3
	viewpointParams = 7
)

// Options tune a refinement run.
type Options struct {
	// FuncEvaluations caps the number of cost evaluations; 0 means the
	// default of 50000.
	FuncEvaluations int
}

// layout returns the ids whose parameters are free, in the fixed order the
// vector packs them: all points first, then adjustable viewpoints.
func (s *Scene) layout() (pointIDs, vpIDs []string) {
	pointIDs = s.pointOrder
	for _, id := range s.vpOrder {
		if s.viewpoints[id].Adjustable && s.viewpoints[id].Pose != nil {
			vpIDs = append(vpIDs, id)
		}
	}
	return pointIDs, vpIDs
}

// packParams flattens the free parameters into a vector.
func (s *Scene) packParams() []float64 {
	pointIDs, vpIDs := s.layout()
	x := make([]float64, 0, pointParams*len(pointIDs)+viewpointParams*len(vpIDs))
	for _, id := range pointIDs {
		p := s.points[id]
		x = append(x, p.X, p.Y, p.Z)
	}
	for _, id := range vpIDs {
		vp := s.viewpoints[id]
		q := vp.Pose.Orientation().Quaternion()
		c := vp.Pose.Point()
		x = append(x, q.Real, q.Imag, q.Jmag, q.Kmag, c.X, c.Y, c.Z)
	}
	return x
}

// applyParams writes a parameter vector back into the scene. Viewpoint
// quaternions are renormalized, so the optimizer can wander off the unit
// sphere without producing an invalid pose.
func (s *Scene) applyParams(x []float64) {
	pointIDs, vpIDs := s.layout()
	i := 0
	for _, id := range pointIDs {
		p := s.points[id]
		p.X, p.Y, p.Z = x[i], x[i+1], x[i+2]
		s.points[id] = p
		i += pointParams
	}
	for _, id := range vpIDs {
		vp := s.viewpoints[id]
		qw, qx, qy, qz := x[i], x[i+1], x[i+2], x[i+3]
		qNorm := math.Sqrt(qw*qw + qx*qx + qy*qy + qz*qz)
		if qNorm == 0 {
			qw, qNorm = 1, 1
		}
		orientation := &spatialmath.Quaternion{
			Real: qw / qNorm,
			Imag: qx / qNorm,
			Jmag: qy / qNorm,
			Kmag: qz / qNorm,
		}
		vp.Pose = spatialmath.NewPose(
			r3.Vector{X: x[i+4], Y: x[i+5], Z: x[i+6]},
			orientation,
		)
		i += viewpointParams
	}
}

// BuildProblem assembles a gonum optimize.Problem whose objective is the sum
// of squared residuals over the scene's free parameters, with finite
// difference gradient and Hessian. Each evaluation perturbs a scratch copy
// of the scene, so the problem is safe to evaluate while the caller keeps
// reading the original.
func BuildProblem(s *Scene) (*optimize.Problem, []float64) {
	x0 := s.packParams()
	fcn := func(x []float64) float64 {
		scratch := s.clone()
		scratch.applyParams(x)
		return scratch.Cost()
	}
	grad := func(grad, x []float64) {
		fd.Gradient(grad, fcn, x, nil)
	}
	hess := func(h *mat.SymDense, x []float64) {
		fd.Hessian(h, fcn, x, nil)
	}
	return &optimize.Problem{Func: fcn, Grad: grad, Hess: hess}, x0
}

// Refine minimizes the scene's total squared residual and writes the
// optimized parameters back. Returns the final cost. The optimization loop
// itself belongs to gonum; the residual kernels stay pure evaluation.
func Refine(s *Scene, logger logging.Logger, opts Options) (float64, error) {
	if s.ConstraintCount() == 0 {
		return 0, fmt.Errorf("no constraints registered")
	}
	problem, x0 := BuildProblem(s)
	if len(x0) == 0 {
		return s.Cost(), fmt.Errorf("no free parameters to adjust")
	}

	funcEvals := opts.FuncEvaluations
	if funcEvals <= 0 {
		funcEvals = 50000
	}
	settings := &optimize.Settings{
		FuncEvaluations: funcEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-10,
			Iterations: 100,
		},
	}

	result, err := optimize.Minimize(*problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return math.Inf(1), fmt.Errorf("refinement failed: %w", err)
	}
	logger.Debugf("refinement stats: %+v", result.Stats)
	logger.Infof("refinement status %v, final cost %g", result.Status, result.F)

	s.applyParams(result.X)
	return result.F, nil
}
