package models

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	genericservice "go.viam.com/rdk/services/generic"
	"go.viam.com/rdk/spatialmath"
)

var (
	GuideCamera = resource.NewModel("viam", "bundle-adjust", "guide-camera")
)

func init() {
	resource.RegisterComponent(camera.API, GuideCamera,
		resource.Registration[camera.Camera, *GuideCameraConfig]{
			Constructor: newGuideCamera,
		},
	)
}

type GuideCameraConfig struct {
	resource.TriviallyValidateConfig
	CameraName   string `json:"camera_name"`
	AdjusterName string `json:"adjuster_name"`
	ViewpointID  string `json:"viewpoint_id"` // Which scene viewpoint this camera corresponds to
	MarkSize     int    `json:"mark_size"`    // Half-length of guide cross arms in pixels
	MarkThick    int    `json:"mark_thick"`   // Thickness of guide cross arms
	MarkColor    string `json:"mark_color"`   // Color: "red", "green", "blue", "white", "black", "yellow", "cyan", "magenta"
}

// Validate ensures all parts of the config are valid and important fields exist.
// Returns implicit dependencies based on the config.
func (cfg *GuideCameraConfig) Validate(path string) ([]string, []string, error) {
	if cfg.CameraName == "" {
		return nil, nil, errors.New("camera_name is required")
	}
	if cfg.AdjusterName == "" {
		return nil, nil, errors.New("adjuster_name is required")
	}
	if cfg.ViewpointID == "" {
		return nil, nil, errors.New("viewpoint_id is required")
	}
	// Set defaults
	if cfg.MarkSize == 0 {
		cfg.MarkSize = 12
	}
	if cfg.MarkThick == 0 {
		cfg.MarkThick = 2
	}
	if cfg.MarkColor == "" {
		cfg.MarkColor = "green"
	}
	return []string{cfg.CameraName, cfg.AdjusterName}, nil, nil
}

type guideCamera struct {
	name          resource.Name
	logger        logging.Logger
	cfg           *GuideCameraConfig
	cancelCtx     context.Context
	cancelFunc    func()
	underlyingCam camera.Camera
	adjuster      resource.Resource
	markColor     color.Color
}

func newGuideCamera(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (camera.Camera, error) {
	conf, err := resource.NativeConfig[*GuideCameraConfig](rawConf)
	if err != nil {
		return nil, err
	}

	cam, err := camera.FromDependencies(deps, conf.CameraName)
	if err != nil {
		return nil, err
	}

	adjusterName := resource.NewName(genericservice.API, conf.AdjusterName)
	adjuster, err := deps.GetResource(adjusterName)
	if err != nil {
		return nil, err
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())

	s := &guideCamera{
		name:          rawConf.ResourceName(),
		logger:        logger,
		cfg:           conf,
		cancelCtx:     cancelCtx,
		cancelFunc:    cancelFunc,
		underlyingCam: cam,
		adjuster:      adjuster,
		markColor:     parseColor(conf.MarkColor),
	}
	return s, nil
}

func (s *guideCamera) Reconfigure(ctx context.Context, deps resource.Dependencies, rawConf resource.Config) error {
	conf, err := resource.NativeConfig[*GuideCameraConfig](rawConf)
	if err != nil {
		return err
	}

	cam, err := camera.FromDependencies(deps, conf.CameraName)
	if err != nil {
		return err
	}
	adjuster, err := deps.GetResource(resource.NewName(genericservice.API, conf.AdjusterName))
	if err != nil {
		return err
	}

	s.cfg = conf
	s.underlyingCam = cam
	s.adjuster = adjuster
	s.markColor = parseColor(conf.MarkColor)
	return nil
}

func (s *guideCamera) Name() resource.Name {
	return s.name
}

func (s *guideCamera) Close(context.Context) error {
	s.cancelFunc()
	return nil
}

func (s *guideCamera) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, nil
}

// guideMarks asks the adjuster for the projected pixel of every scene point
// in this camera's viewpoint. Points behind the camera are simply absent.
func (s *guideCamera) guideMarks(ctx context.Context) ([]image.Point, error) {
	resp, err := s.adjuster.DoCommand(ctx, map[string]interface{}{
		"command":   "get-projections",
		"viewpoint": s.cfg.ViewpointID,
	})
	if err != nil {
		return nil, err
	}
	projRaw, ok := resp["projections"].(map[string]interface{})
	if !ok {
		return nil, errors.New("adjuster returned no projections map")
	}

	marks := make([]image.Point, 0, len(projRaw))
	for _, pxRaw := range projRaw {
		pxMap, ok := pxRaw.(map[string]interface{})
		if !ok {
			continue
		}
		u, okU := pxMap["u"].(float64)
		v, okV := pxMap["v"].(float64)
		if !okU || !okV {
			continue
		}
		marks = append(marks, image.Point{X: int(u + 0.5), Y: int(v + 0.5)})
	}
	return marks, nil
}

func (s *guideCamera) GetImage(ctx context.Context) (image.Image, error) {
	imgs, _, err := s.underlyingCam.Images(ctx, []string{"color"}, nil)
	if err != nil {
		return nil, err
	}
	if len(imgs) == 0 {
		return nil, errors.New("no images returned from underlying camera")
	}

	img, err := imgs[0].Image(ctx)
	if err != nil {
		return nil, err
	}

	marks, err := s.guideMarks(ctx)
	if err != nil {
		s.logger.Warnf("could not fetch reprojection guides: %v", err)
		return img, nil
	}
	return s.drawGuides(img, marks), nil
}

// drawGuides overlays a cross at each projected point location
func (s *guideCamera) drawGuides(img image.Image, marks []image.Point) image.Image {
	bounds := img.Bounds()

	// Create a mutable copy of the image
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	size := s.cfg.MarkSize
	thick := s.cfg.MarkThick

	for _, mark := range marks {
		// Horizontal arm
		for x := mark.X - size; x <= mark.X+size; x++ {
			for dy := -thick / 2; dy <= thick/2; dy++ {
				if x >= 0 && x < bounds.Dx() && mark.Y+dy >= 0 && mark.Y+dy < bounds.Dy() {
					rgba.Set(x, mark.Y+dy, s.markColor)
				}
			}
		}
		// Vertical arm
		for y := mark.Y - size; y <= mark.Y+size; y++ {
			for dx := -thick / 2; dx <= thick/2; dx++ {
				if y >= 0 && y < bounds.Dy() && mark.X+dx >= 0 && mark.X+dx < bounds.Dx() {
					rgba.Set(mark.X+dx, y, s.markColor)
				}
			}
		}
	}

	return rgba
}

var namedColors = map[string]color.Color{
	"red":     color.RGBA{R: 255, A: 255},
	"green":   color.RGBA{G: 255, A: 255},
	"blue":    color.RGBA{B: 255, A: 255},
	"white":   color.RGBA{R: 255, G: 255, B: 255, A: 255},
	"black":   color.RGBA{A: 255},
	"yellow":  color.RGBA{R: 255, G: 255, A: 255},
	"cyan":    color.RGBA{G: 255, B: 255, A: 255},
	"magenta": color.RGBA{R: 255, B: 255, A: 255},
}

// parseColor converts a color name to color.Color, defaulting to green
func parseColor(colorName string) color.Color {
	if c, ok := namedColors[colorName]; ok {
		return c
	}
	return namedColors["green"]
}

func (s *guideCamera) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	return nil, nil
}

func (s *guideCamera) Image(ctx context.Context, mimeType string, extra map[string]interface{}) ([]byte, camera.ImageMetadata, error) {
	return nil, camera.ImageMetadata{}, nil
}

func (s *guideCamera) Images(ctx context.Context, mimeTypes []string, extra map[string]interface{}) ([]camera.NamedImage, resource.ResponseMetadata, error) {
	imgs, meta, err := s.underlyingCam.Images(ctx, mimeTypes, extra)
	if err != nil {
		return nil, resource.ResponseMetadata{}, err
	}

	marks, err := s.guideMarks(ctx)
	if err != nil {
		s.logger.Warnf("could not fetch reprojection guides: %v", err)
		return imgs, meta, nil
	}

	resultImgs := make([]camera.NamedImage, len(imgs))
	for i, namedImg := range imgs {
		img, err := namedImg.Image(ctx)
		if err != nil {
			return nil, resource.ResponseMetadata{}, err
		}

		imgWithGuides := s.drawGuides(img, marks)

		resultImg, err := camera.NamedImageFromImage(imgWithGuides, namedImg.SourceName, namedImg.MimeType())
		if err != nil {
			return nil, resource.ResponseMetadata{}, err
		}
		resultImgs[i] = resultImg
	}

	return resultImgs, meta, nil
}

func (s *guideCamera) NextPointCloud(ctx context.Context, extra map[string]interface{}) (pointcloud.PointCloud, error) {
	return nil, errors.New("next point cloud not implemented")
}

func (s *guideCamera) Properties(ctx context.Context) (camera.Properties, error) {
	return s.underlyingCam.Properties(ctx)
}
