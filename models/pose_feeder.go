package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erh/vmodutils"
	"github.com/erh/vmodutils/touch"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/robot"
	genericservice "go.viam.com/rdk/services/generic"

	"github.com/mfagerlund/Rotera-sub014/utils"
)

var (
	PoseFeeder = resource.NewModel("viam", "bundle-adjust", "pose-feeder")
)

func init() {
	resource.RegisterService(genericservice.API, PoseFeeder,
		resource.Registration[resource.Resource, *PoseFeederConfig]{
			Constructor: newPoseFeeder,
		},
	)
}

type PoseFeederConfig struct {
	resource.TriviallyValidateConfig
	AdjusterName  string   `json:"adjuster_name"`
	CameraFrames  []string `json:"camera_frames"`  // Frame names whose poses feed matching viewpoint ids
	UpdateRateHz  float64  `json:"update_rate_hz"` // How often to re-read camera poses
	EnableOnStart bool     `json:"enable_on_start"`
}

// Validate ensures all parts of the config are valid and important fields exist.
// Returns implicit dependencies based on the config.
func (cfg *PoseFeederConfig) Validate(path string) ([]string, []string, error) {
	if cfg.AdjusterName == "" {
		return nil, nil, errors.New("adjuster_name is required")
	}
	if len(cfg.CameraFrames) == 0 {
		return nil, nil, errors.New("camera_frames must name at least one frame")
	}
	// Set defaults for optional parameters
	if cfg.UpdateRateHz == 0 {
		cfg.UpdateRateHz = 1.0
	}
	if cfg.UpdateRateHz < 0 {
		return nil, nil, errors.New("update_rate_hz must be greater than 0")
	}
	return []string{cfg.AdjusterName}, nil, nil
}

type poseFeeder struct {
	resource.AlwaysRebuild

	name resource.Name

	logger logging.Logger
	cfg    *PoseFeederConfig

	cancelCtx  context.Context
	cancelFunc func()

	robotClient robot.Robot
	adjuster    resource.Resource
}

func newPoseFeeder(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*PoseFeederConfig](rawConf)
	if err != nil {
		return nil, err
	}
	return NewPoseFeeder(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewPoseFeeder(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *PoseFeederConfig, logger logging.Logger) (resource.Resource, error) {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())

	adjuster, err := deps.GetResource(resource.NewName(genericservice.API, conf.AdjusterName))
	if err != nil {
		cancelFunc()
		return nil, err
	}

	robotClient, err := vmodutils.ConnectToMachineFromEnv(ctx, logger)
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("failed to connect to robot: %w", err)
	}

	s := &poseFeeder{
		name:        name,
		logger:      logger,
		cfg:         conf,
		cancelCtx:   cancelCtx,
		cancelFunc:  cancelFunc,
		robotClient: robotClient,
		adjuster:    adjuster,
	}

	if conf.EnableOnStart {
		go s.feedLoop(s.cancelCtx)
		s.logger.Info("pose feeder started")
	}

	return s, nil
}

func (s *poseFeeder) Name() resource.Name {
	return s.name
}

func (s *poseFeeder) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	verb, ok := cmd["command"].(string)
	if !ok {
		return nil, errors.New("command must be a string")
	}
	switch verb {
	case "start":
		go s.feedLoop(s.cancelCtx)
		return map[string]interface{}{"started": true}, nil
	case "feed-once":
		pushed, err := s.feedOnce(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"pushed": pushed}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", verb)
	}
}

func (s *poseFeeder) Close(context.Context) error {
	s.cancelFunc()
	if s.robotClient != nil {
		return s.robotClient.Close(context.Background())
	}
	return nil
}

func (s *poseFeeder) feedLoop(ctx context.Context) {
	s.logger.Infof("starting pose feed loop at %f Hz", s.cfg.UpdateRateHz)
	updateInterval := time.Duration(1.0 / s.cfg.UpdateRateHz * float64(time.Second))
	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.feedOnce(ctx); err != nil {
				s.logger.Errorf("pose feed pass failed: %v", err)
			}
		}
	}
}

// feedOnce reads the current pose of every configured camera frame and pushes
// it into the adjuster as that viewpoint's pose. The frame name doubles as the
// viewpoint id. Returns how many poses were pushed.
func (s *poseFeeder) feedOnce(ctx context.Context) (int, error) {
	fsc, err := s.robotClient.FrameSystemConfig(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get frame system config: %w", err)
	}

	pushed := 0
	for _, frameName := range s.cfg.CameraFrames {
		part := touch.FindPart(fsc, frameName)
		if part == nil {
			s.logger.Errorf("can't find frame for %v", frameName)
			continue
		}
		poseInFrame, err := s.robotClient.GetPose(ctx, part.FrameConfig.Name(), "", []*referenceframe.LinkInFrame{}, map[string]interface{}{})
		if err != nil {
			s.logger.Errorf("failed to get pose for %v: %v", frameName, err)
			continue
		}

		_, err = s.adjuster.DoCommand(ctx, map[string]interface{}{
			"command": "set-viewpoint-pose",
			"id":      frameName,
			"pose":    utils.PoseToMap(poseInFrame.Pose()),
		})
		if err != nil {
			s.logger.Errorf("failed to push pose for %v: %v", frameName, err)
			continue
		}
		pushed++
	}
	return pushed, nil
}
