package utils

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
)

// Clamp clamps a value between min and max
func Clamp(value, min, max float64) float64 {
	return math.Max(min, math.Min(max, value))
}

// Helper to convert spatialmath.Pose to a user-friendly map
func PoseToMap(pose spatialmath.Pose) map[string]interface{} {
	if pose == nil {
		return nil
	}
	pos := pose.Point()
	ori := pose.Orientation().Quaternion()
	return map[string]interface{}{
		"translation": map[string]interface{}{
			"x": pos.X,
			"y": pos.Y,
			"z": pos.Z,
		},
		"orientation": map[string]interface{}{
			"Imag": ori.Imag,
			"Jmag": ori.Jmag,
			"Kmag": ori.Kmag,
			"Real": ori.Real,
		},
	}
}

// VectorToMap converts an r3.Vector to the map shape DoCommand responses use.
func VectorToMap(v r3.Vector) map[string]interface{} {
	return map[string]interface{}{"x": v.X, "y": v.Y, "z": v.Z}
}

// VectorFromMap parses an r3.Vector from a DoCommand payload. Keys are
// lowercase x, y, z and values must be numbers.
func VectorFromMap(raw interface{}) (r3.Vector, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return r3.Vector{}, fmt.Errorf("expected a map with x, y, z, got %T", raw)
	}
	var v r3.Vector
	for key, dst := range map[string]*float64{"x": &v.X, "y": &v.Y, "z": &v.Z} {
		val, ok := m[key]
		if !ok {
			return r3.Vector{}, fmt.Errorf("missing %q", key)
		}
		f, ok := val.(float64)
		if !ok {
			return r3.Vector{}, fmt.Errorf("%q is not a number, got %T", key, val)
		}
		*dst = f
	}
	return v, nil
}

// PoseFromMap parses a pose from the same translation/orientation map shape
// that PoseToMap emits. The orientation is a quaternion; it is normalized
// before use so hand-entered values do not have to be exact.
func PoseFromMap(raw interface{}) (spatialmath.Pose, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a pose map, got %T", raw)
	}
	translation, err := VectorFromMap(m["translation"])
	if err != nil {
		return nil, fmt.Errorf("bad translation: %w", err)
	}

	oriRaw, ok := m["orientation"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing orientation map")
	}
	q := spatialmath.Quaternion{}
	for key, dst := range map[string]*float64{
		"Real": &q.Real, "Imag": &q.Imag, "Jmag": &q.Jmag, "Kmag": &q.Kmag,
	} {
		val, ok := oriRaw[key].(float64)
		if !ok {
			return nil, fmt.Errorf("orientation %q is not a number", key)
		}
		*dst = val
	}
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n == 0 {
		return nil, fmt.Errorf("orientation quaternion has zero norm")
	}
	q.Real /= n
	q.Imag /= n
	q.Jmag /= n
	q.Kmag /= n

	return spatialmath.NewPose(translation, &q), nil
}
