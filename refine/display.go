package refine

import (
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"

	"github.com/mfagerlund/Rotera-sub014/residuals"
)

// worldToCameraRotation converts a viewpoint pose into the kernel's
// world-to-camera rotation. A pose orientation maps the camera frame into
// the world frame, so the transpose takes world coordinates into the camera.
func worldToCameraRotation(pose spatialmath.Pose) residuals.RotationMatrix {
	rm := pose.Orientation().RotationMatrix()
	var out residuals.RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = rm.At(j, i)
		}
	}
	return out
}

// HasValidCameraPose reports whether the viewpoint can project at all: it
// needs a pose and positive focal lengths.
func HasValidCameraPose(vp *Viewpoint) bool {
	return vp != nil && vp.Pose != nil && vp.Intrinsics.CheckValid() == nil
}

// ProjectToPixel projects a world point into a viewpoint's image for drawing
// reprojection guides. Returns nil when the viewpoint has no usable pose or
// the point is at or behind the camera. This is a display-only path; the
// optimizer goes through ObservationConstraint, which applies the
// large-penalty contract instead of returning nil.
func ProjectToPixel(world r3.Vector, vp *Viewpoint) *residuals.Pixel {
	if !HasValidCameraPose(vp) {
		return nil
	}
	rot := worldToCameraRotation(vp.Pose)
	px, ok := residuals.ProjectPoint(world, vp.Intrinsics, rot, vp.Pose.Point())
	if !ok {
		return nil
	}
	return &px
}
