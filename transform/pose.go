package transform

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// CamPose is a rigid camera pose: a 3x3 rotation and a translation. The solver
// reports poses in world-to-camera form; Invert turns them into camera-to-world
// form for export.
type CamPose struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

// NewCamPose builds a pose from a rotation matrix and translation vector. The
// rotation is not validated here; see Convention.CheckRotation.
func NewCamPose(rotation *mat.Dense, translation r3.Vector) *CamPose {
	return &CamPose{Rotation: rotation, Translation: translation}
}

// NewCamPoseFromQuat builds a pose from a unit quaternion (w, x, y, z) and a
// translation, the form the solver's sparse model uses.
func NewCamPoseFromQuat(q quat.Number, translation r3.Vector) *CamPose {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	rot := mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
	return &CamPose{Rotation: rot, Translation: translation}
}

// TransformPoint applies the pose to a point: R*p + t. For a world-to-camera
// pose this maps a world point into camera space.
func (cp *CamPose) TransformPoint(p r3.Vector) r3.Vector {
	return MulVec(cp.Rotation, p).Add(cp.Translation)
}

// Invert returns the inverse pose (Rᵗ, -Rᵗ*t). Applied to a world-to-camera
// pose, the result is the camera-to-world pose whose translation is the camera
// center in world space.
func (cp *CamPose) Invert() *CamPose {
	rotT := mat.DenseCopyOf(cp.Rotation.T())
	return &CamPose{
		Rotation:    rotT,
		Translation: MulVec(rotT, cp.Translation).Mul(-1),
	}
}

// Center is shorthand for the camera center in world space of a
// world-to-camera pose.
func (cp *CamPose) Center() r3.Vector {
	return cp.Invert().Translation
}

// MulVec multiplies a 3x3 matrix with an r3 vector.
func MulVec(m *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}
