package rotera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	genericservice "go.viam.com/rdk/services/generic"
	rdkutils "go.viam.com/utils"

	"github.com/mfagerlund/Rotera-sub014/refine"
	"github.com/mfagerlund/Rotera-sub014/residuals"
	"github.com/mfagerlund/Rotera-sub014/utils"
)

var (
	SceneAdjuster = resource.NewModel("viam", "bundle-adjust", "scene-adjuster")
)

func init() {
	resource.RegisterService(genericservice.API, SceneAdjuster,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newSceneAdjuster,
		},
	)
}

type Config struct {
	SigmaPx            float64 `json:"sigma_px"`             // Default pixel sigma for observations (default 1.0)
	LockTolerance      float64 `json:"lock_tolerance"`       // Default tolerance for point locks (default 0.001)
	MaxFuncEvaluations int     `json:"max_func_evaluations"` // Cost evaluation cap per refine run (default 50000)
	UpdateRateHz       float64 `json:"update_rate_hz"`       // Background refine rate when enable_on_start is set (default 1.0)
	EnableOnStart      bool    `json:"enable_on_start"`
}

// Validate ensures all parts of the config are valid and important fields exist.
// Returns implicit required (first return) and optional (second return) dependencies based on the config.
// The path is the JSON path in your robot's config (not the `Config` struct) to the
// resource being validated; e.g. "services.0".
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.SigmaPx < 0 {
		return nil, nil, errors.New("sigma_px must be greater than 0")
	}
	if cfg.LockTolerance < 0 {
		return nil, nil, errors.New("lock_tolerance must be greater than 0")
	}
	if cfg.MaxFuncEvaluations < 0 {
		return nil, nil, errors.New("max_func_evaluations must be greater than or equal to 0")
	}
	if cfg.UpdateRateHz < 0 {
		return nil, nil, errors.New("update_rate_hz must be greater than 0")
	}
	// Set defaults for optional parameters
	if cfg.SigmaPx == 0 {
		cfg.SigmaPx = residuals.DefaultSigma
	}
	if cfg.LockTolerance == 0 {
		cfg.LockTolerance = residuals.DefaultLockTolerance
	}
	if cfg.MaxFuncEvaluations == 0 {
		cfg.MaxFuncEvaluations = 50000
	}
	if cfg.UpdateRateHz == 0 {
		cfg.UpdateRateHz = 1.0
	}
	return nil, nil, nil
}

type sceneAdjuster struct {
	resource.AlwaysRebuild

	name resource.Name

	logger logging.Logger
	cfg    *Config

	mu       sync.Mutex
	scene    *refine.Scene
	lastCost float64
	refined  bool

	worker *rdkutils.StoppableWorkers
}

func newSceneAdjuster(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	return NewSceneAdjuster(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewSceneAdjuster(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (resource.Resource, error) {
	s := &sceneAdjuster{
		name:   name,
		logger: logger,
		cfg:    conf,
		scene:  refine.NewScene(),
		worker: rdkutils.NewBackgroundStoppableWorkers(),
	}

	if conf.EnableOnStart {
		s.worker.Add(s.refineLoop)
		s.logger.Info("background scene refinement started")
	}

	return s, nil
}

func (s *sceneAdjuster) Name() resource.Name {
	return s.name
}

func (s *sceneAdjuster) Close(context.Context) error {
	s.worker.Stop()
	return nil
}

// refineLoop re-refines the scene at the configured rate so that poses fed
// in from a live machine keep the structure estimate current.
func (s *sceneAdjuster) refineLoop(ctx context.Context) {
	var updateInterval time.Duration = time.Duration(1.0 / s.cfg.UpdateRateHz * float64(time.Second))
	s.logger.Infof("refine loop interval: %v", updateInterval)
	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.scene.ConstraintCount() == 0 {
				s.mu.Unlock()
				continue
			}
			cost, err := refine.Refine(s.scene, s.logger, refine.Options{FuncEvaluations: s.cfg.MaxFuncEvaluations})
			if err != nil {
				s.logger.Errorf("background refine failed: %v", err)
				s.mu.Unlock()
				continue
			}
			s.lastCost = cost
			s.refined = true
			s.mu.Unlock()
		}
	}
}

func (s *sceneAdjuster) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	s.logger.Debugf("DoCommand: %+v", cmd)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd["command"] {
	case "add-point":
		id, ok := cmd["id"].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("id field is required")
		}
		pos, err := utils.VectorFromMap(cmd["position"])
		if err != nil {
			return nil, fmt.Errorf("bad position: %w", err)
		}
		s.scene.SetPoint(id, pos)
		return map[string]interface{}{
			"status": "ok",
			"points": len(s.scene.PointIDs()),
		}, nil

	case "remove-point":
		id, ok := cmd["id"].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("id field is required")
		}
		dropped, err := s.scene.RemovePoint(id)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"status":              "ok",
			"constraints_dropped": dropped,
		}, nil

	case "get-points":
		points := map[string]interface{}{}
		for _, id := range s.scene.PointIDs() {
			p, _ := s.scene.Point(id)
			points[id] = utils.VectorToMap(p)
		}
		return map[string]interface{}{"points": points}, nil

	case "add-viewpoint":
		return s.addViewpoint(cmd)

	case "set-viewpoint-pose":
		id, ok := cmd["id"].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("id field is required")
		}
		pose, err := utils.PoseFromMap(cmd["pose"])
		if err != nil {
			return nil, fmt.Errorf("bad pose: %w", err)
		}
		if err := s.scene.SetViewpointPose(id, pose); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "ok"}, nil

	case "add-observation":
		return s.addObservation(cmd)

	case "lock-point":
		return s.lockPoint(cmd)

	case "add-line-constraint":
		return s.addLineConstraint(cmd)

	case "clear-constraints":
		s.scene.ClearConstraints()
		return map[string]interface{}{"status": "cleared"}, nil

	case "evaluate":
		vec := s.scene.ResidualVector()
		out := make([]interface{}, len(vec))
		for i, r := range vec {
			out[i] = r
		}
		return map[string]interface{}{
			"residuals": out,
			"cost":      s.scene.Cost(),
			"count":     len(vec),
		}, nil

	case "refine":
		if s.cfg.EnableOnStart {
			return nil, errors.New("cannot refine on demand while the background loop owns the scene")
		}
		var spread []r3.Vector
		for _, id := range s.scene.PointIDs() {
			p, _ := s.scene.Point(id)
			spread = append(spread, p)
		}
		for _, warning := range utils.ValidateSpread(spread) {
			s.logger.Warnf("scene quality: %s", warning)
		}
		cost, err := refine.Refine(s.scene, s.logger, refine.Options{FuncEvaluations: s.cfg.MaxFuncEvaluations})
		if err != nil {
			return nil, err
		}
		s.lastCost = cost
		s.refined = true
		points := map[string]interface{}{}
		for _, id := range s.scene.PointIDs() {
			p, _ := s.scene.Point(id)
			points[id] = utils.VectorToMap(p)
		}
		return map[string]interface{}{
			"status": "ok",
			"cost":   cost,
			"points": points,
		}, nil

	case "get-projections":
		return s.getProjections(cmd)

	case "status":
		return map[string]interface{}{
			"points":      len(s.scene.PointIDs()),
			"constraints": s.scene.ConstraintCount(),
			"refined":     s.refined,
			"last_cost":   s.lastCost,
		}, nil
	}

	return nil, fmt.Errorf("unknown command: %v", cmd["command"])
}

func (s *sceneAdjuster) addViewpoint(cmd map[string]interface{}) (map[string]interface{}, error) {
	id, ok := cmd["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("id field is required")
	}

	intrRaw, ok := cmd["intrinsics"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("intrinsics field is required")
	}
	var intr residuals.Intrinsics
	for key, dst := range map[string]*float64{
		"fx": &intr.Fx, "fy": &intr.Fy, "ppx": &intr.Ppx, "ppy": &intr.Ppy,
	} {
		val, ok := intrRaw[key].(float64)
		if !ok {
			return nil, fmt.Errorf("intrinsics %q is required and must be a number", key)
		}
		*dst = val
	}
	// Distortion coefficients are optional; absent means an undistorted lens.
	if k1, ok := intrRaw["k1"].(float64); ok {
		intr.Distortion.K1 = k1
	}
	if k2, ok := intrRaw["k2"].(float64); ok {
		intr.Distortion.K2 = k2
	}

	vp := &refine.Viewpoint{Intrinsics: intr}
	if poseRaw, ok := cmd["pose"]; ok {
		pose, err := utils.PoseFromMap(poseRaw)
		if err != nil {
			return nil, fmt.Errorf("bad pose: %w", err)
		}
		vp.Pose = pose
	}
	if adjustable, ok := cmd["adjustable"].(bool); ok {
		vp.Adjustable = adjustable
	}

	if err := s.scene.SetViewpoint(id, vp); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":   "ok",
		"has_pose": refine.HasValidCameraPose(vp),
	}, nil
}

func (s *sceneAdjuster) addObservation(cmd map[string]interface{}) (map[string]interface{}, error) {
	pointID, ok := cmd["point"].(string)
	if !ok || pointID == "" {
		return nil, fmt.Errorf("point field is required")
	}
	viewpointID, ok := cmd["viewpoint"].(string)
	if !ok || viewpointID == "" {
		return nil, fmt.Errorf("viewpoint field is required")
	}
	u, ok := cmd["u"].(float64)
	if !ok {
		return nil, fmt.Errorf("u field is required and must be a number")
	}
	v, ok := cmd["v"].(float64)
	if !ok {
		return nil, fmt.Errorf("v field is required and must be a number")
	}

	c := refine.NewObservation(pointID, viewpointID, residuals.Pixel{U: u, V: v})
	c.Sigma = s.cfg.SigmaPx
	if sigma, ok := cmd["sigma"].(float64); ok {
		if sigma <= 0 {
			return nil, fmt.Errorf("sigma must be greater than 0")
		}
		c.Sigma = sigma
	}

	if err := s.scene.AddConstraint(c); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":      "ok",
		"constraints": s.scene.ConstraintCount(),
	}, nil
}

func (s *sceneAdjuster) lockPoint(cmd map[string]interface{}) (map[string]interface{}, error) {
	id, ok := cmd["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("id field is required")
	}

	mask := residuals.AxisMask{true, true, true}
	if axesRaw, ok := cmd["axes"].(map[string]interface{}); ok {
		for i, key := range []string{"x", "y", "z"} {
			set, ok := axesRaw[key].(bool)
			if !ok {
				return nil, fmt.Errorf("axes %q must be a boolean", key)
			}
			mask[i] = set
		}
	}
	if mask.Count() == 0 {
		return nil, fmt.Errorf("at least one axis must be locked")
	}

	// Default target is the point's current position, i.e. "pin it here".
	target, found := s.scene.Point(id)
	if !found {
		return nil, fmt.Errorf("unknown point %q", id)
	}
	if targetRaw, ok := cmd["target"]; ok {
		var err error
		target, err = utils.VectorFromMap(targetRaw)
		if err != nil {
			return nil, fmt.Errorf("bad target: %w", err)
		}
	}

	c := refine.NewPointLock(id, mask, target)
	c.Tolerance = s.cfg.LockTolerance
	if tolerance, ok := cmd["tolerance"].(float64); ok {
		if tolerance <= 0 {
			return nil, fmt.Errorf("tolerance must be greater than 0")
		}
		c.Tolerance = tolerance
	}

	if err := s.scene.AddConstraint(c); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":      "ok",
		"axes_locked": mask.Count(),
		"constraints": s.scene.ConstraintCount(),
	}, nil
}

func (s *sceneAdjuster) addLineConstraint(cmd map[string]interface{}) (map[string]interface{}, error) {
	ids := [3]string{}
	for i, key := range []string{"a", "b", "c"} {
		id, ok := cmd[key].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("%s field is required", key)
		}
		ids[i] = id
	}

	c := refine.NewCollinear(ids[0], ids[1], ids[2])
	if sigma, ok := cmd["sigma"].(float64); ok {
		if sigma <= 0 {
			return nil, fmt.Errorf("sigma must be greater than 0")
		}
		c.Sigma = sigma
	}

	if err := s.scene.AddConstraint(c); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":      "ok",
		"constraints": s.scene.ConstraintCount(),
	}, nil
}

// getProjections projects every scene point into one viewpoint. Points
// behind the camera are listed separately instead of getting a penalty
// value; this path feeds display overlays, not the optimizer.
func (s *sceneAdjuster) getProjections(cmd map[string]interface{}) (map[string]interface{}, error) {
	viewpointID, ok := cmd["viewpoint"].(string)
	if !ok || viewpointID == "" {
		return nil, fmt.Errorf("viewpoint field is required")
	}
	vp, found := s.scene.Viewpoint(viewpointID)
	if !found {
		return nil, fmt.Errorf("unknown viewpoint %q", viewpointID)
	}
	if !refine.HasValidCameraPose(vp) {
		return nil, fmt.Errorf("viewpoint %q has no usable pose", viewpointID)
	}

	projections := map[string]interface{}{}
	behind := []interface{}{}
	for _, id := range s.scene.PointIDs() {
		p, _ := s.scene.Point(id)
		px := refine.ProjectToPixel(p, vp)
		if px == nil {
			behind = append(behind, id)
			continue
		}
		projections[id] = map[string]interface{}{"u": px.U, "v": px.V}
	}
	return map[string]interface{}{
		"projections": projections,
		"behind":      behind,
	}, nil
}
