package residuals

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
)

// RadialDistortion holds the even-order radial coefficients of the lens
// model. The zero value means an undistorted lens.
type RadialDistortion struct {
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
}

// Transform distorts normalized image coordinates x,y using the radial part
// of the Brown-Conrady model as described by OpenCV
// https://docs.opencv.org/3.4/da/d54/group__imgproc__transform.html#ga7dfb72c9cf9780a347fbe3d1c47e5d5a
func (rd RadialDistortion) Transform(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	factor := 1. + rd.K1*r2 + rd.K2*r2*r2
	return x * factor, y * factor
}

// Intrinsics are the internal pinhole parameters of one camera: focal
// lengths, principal point and lens distortion, all in pixel units.
type Intrinsics struct {
	Fx         float64          `json:"fx"`
	Fy         float64          `json:"fy"`
	Ppx        float64          `json:"ppx"`
	Ppy        float64          `json:"ppy"`
	Distortion RadialDistortion `json:"distortion"`
}

// CheckValid checks if the fields for Intrinsics have valid inputs. The
// projection functions themselves never call this; it is for the service
// boundary, where bad focal lengths arrive from config.
func (intr *Intrinsics) CheckValid() error {
	if intr == nil {
		return errors.New("pointer to Intrinsics is nil")
	}
	if intr.Fx <= 0 || intr.Fy <= 0 {
		return fmt.Errorf("focal lengths must be positive, got fx=%v fy=%v", intr.Fx, intr.Fy)
	}
	return nil
}

// RotationMatrix is a row-major 3x3 matrix taking world coordinates into the
// camera frame. Orthonormality is the caller's responsibility.
type RotationMatrix [3][3]float64

// IdentityRotation returns the identity world-to-camera rotation.
func IdentityRotation() RotationMatrix {
	return RotationMatrix{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// MulVec applies the rotation to v.
func (m RotationMatrix) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Transpose returns the transposed matrix, which for an orthonormal rotation
// is its inverse.
func (m RotationMatrix) Transpose() RotationMatrix {
	var out RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// Pixel is an image coordinate in pixel units.
type Pixel struct {
	U float64 `json:"u"`
	V float64 `json:"v"`
}

// ProjectPoint maps a world point to a pixel coordinate for a camera at
// center with world-to-camera rotation rot. The camera-space point is
// rot * (world - center); center is the camera's position in world
// coordinates, not an additive extrinsic translation. Returns ok=false when
// the point is at or behind the camera plane (camera-space Z <= 0), in which
// case no perspective division is performed.
func ProjectPoint(world r3.Vector, intr Intrinsics, rot RotationMatrix, center r3.Vector) (Pixel, bool) {
	cam := rot.MulVec(world.Sub(center))
	if cam.Z <= 0 {
		return Pixel{}, false
	}
	xn := cam.X / cam.Z
	yn := cam.Y / cam.Z
	xd, yd := intr.Distortion.Transform(xn, yn)
	return Pixel{
		U: intr.Fx*xd + intr.Ppx,
		V: intr.Fy*yd + intr.Ppy,
	}, true
}
