package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateGeometry is returned when a transform input contains non-finite
// values or a rotation that is not orthonormal.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// rotationTol bounds the per-entry deviation of RᵗR from identity (and of
// det(R) from +1) accepted by CheckRotation.
const rotationTol = 1e-6

// Convention is a fixed pair of basis-change operators between two camera
// coordinate conventions: worldRot acts on world points and poses, cameraRot
// on the camera-local frame. Both are signed permutation matrices, so each is
// its own inverse under transpose.
type Convention struct {
	worldRot  *mat.Dense
	cameraRot *mat.Dense
}

// GLTF converts from the capture convention (x right, y down, z forward; the
// solver's frame) to the glTF interchange convention (x right, y up, z toward
// the viewer):
//
//	world:  X' = X, Y' = Z, Z' = -Y
//	camera: X' = X, Y' = -Y, Z' = -Z
var GLTF = Convention{
	worldRot: mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 0, 1,
		0, -1, 0,
	}),
	cameraRot: mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, -1, 0,
		0, 0, -1,
	}),
}

// TransformPoint maps a world point into the target convention.
func (c Convention) TransformPoint(p r3.Vector) (r3.Vector, error) {
	if !vecFinite(p) {
		return r3.Vector{}, errors.Wrapf(ErrDegenerateGeometry, "non-finite point %v", p)
	}
	return MulVec(c.worldRot, p), nil
}

// UntransformPoint maps a point from the target convention back into the
// capture convention, using the transpose of the world operator.
func (c Convention) UntransformPoint(p r3.Vector) (r3.Vector, error) {
	if !vecFinite(p) {
		return r3.Vector{}, errors.Wrapf(ErrDegenerateGeometry, "non-finite point %v", p)
	}
	return MulVec(mat.DenseCopyOf(c.worldRot.T()), p), nil
}

// TransformPose maps a camera-to-world pose into the target convention:
// R' = worldRot * R * cameraRot, center' = worldRot * center. The rotation
// must be camera-to-world and the center a camera position in world space; a
// world-to-camera pose must be inverted first (see CamPose.Invert).
func (c Convention) TransformPose(rotation *mat.Dense, center r3.Vector) (*mat.Dense, r3.Vector, error) {
	if err := CheckRotation(rotation); err != nil {
		return nil, r3.Vector{}, err
	}
	if !vecFinite(center) {
		return nil, r3.Vector{}, errors.Wrapf(ErrDegenerateGeometry, "non-finite camera center %v", center)
	}
	var out mat.Dense
	out.Mul(c.worldRot, rotation)
	out.Mul(&out, c.cameraRot)
	return &out, MulVec(c.worldRot, center), nil
}

// CheckRotation verifies that r is a finite, orthonormal 3x3 matrix with
// determinant +1, within rotationTol.
func CheckRotation(r *mat.Dense) error {
	if r == nil {
		return errors.Wrap(ErrDegenerateGeometry, "nil rotation")
	}
	rows, cols := r.Dims()
	if rows != 3 || cols != 3 {
		return errors.Wrapf(ErrDegenerateGeometry, "rotation must be 3x3, got %dx%d", rows, cols)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !finite(r.At(i, j)) {
				return errors.Wrap(ErrDegenerateGeometry, "non-finite rotation entry")
			}
		}
	}
	var gram mat.Dense
	gram.Mul(r.T(), r)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(gram.At(i, j)-want) > rotationTol {
				return errors.Wrap(ErrDegenerateGeometry, "rotation is not orthonormal")
			}
		}
	}
	if math.Abs(mat.Det(r)-1) > rotationTol {
		return errors.Wrap(ErrDegenerateGeometry, "rotation determinant is not +1")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func vecFinite(v r3.Vector) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}
