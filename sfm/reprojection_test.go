package sfm

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"github.com/pointgram/pointgram/correspond"
	"github.com/pointgram/pointgram/transform"
)

func identityCamera(imageIndex int) *RegisteredCamera {
	intr := transform.NewPinholeCameraIntrinsics(1920, 1080, 1000, 960, 540)
	w2c := transform.NewCamPoseFromQuat(quat.Number{Real: 1}, r3.Vector{})
	return &RegisteredCamera{
		ImageIndex: imageIndex,
		Intrinsics: &intr,
		PoseW2C:    w2c,
		PoseC2W:    w2c.Invert(),
	}
}

func TestReprojectionZeroError(t *testing.T) {
	s := correspond.NewStore()
	world := r3.Vector{X: 0.5, Y: 0.2, Z: 2}
	// exact pinhole projection of the world point
	id := s.CreateTrack(0, r2.Point{X: 1000*0.25 + 960, Y: 1000*0.1 + 540})

	res := &CalibrationResult{
		Registered: map[int]*RegisteredCamera{0: identityCamera(0)},
		Points:     []ScenePoint{{Position: world, TrackID: id}},
	}

	errs, diags := EvaluateReprojection(res, s)
	test.That(t, diags, test.ShouldHaveLength, 0)
	test.That(t, errs, test.ShouldHaveLength, 1)

	e := errs[ErrorKey{TrackID: id, ImageIndex: 0}]
	test.That(t, e.Dx, test.ShouldAlmostEqual, 0)
	test.That(t, e.Dy, test.ShouldAlmostEqual, 0)
	test.That(t, e.Magnitude, test.ShouldAlmostEqual, 0)
}

func TestReprojectionMeasuresOffset(t *testing.T) {
	s := correspond.NewStore()
	world := r3.Vector{X: 0, Y: 0, Z: 4}
	// observation displaced 3px right, 4px down from the projection
	id := s.CreateTrack(0, r2.Point{X: 963, Y: 544})

	res := &CalibrationResult{
		Registered: map[int]*RegisteredCamera{0: identityCamera(0)},
		Points:     []ScenePoint{{Position: world, TrackID: id}},
	}

	errs, _ := EvaluateReprojection(res, s)
	e := errs[ErrorKey{TrackID: id, ImageIndex: 0}]
	test.That(t, e.Dx, test.ShouldAlmostEqual, 3)
	test.That(t, e.Dy, test.ShouldAlmostEqual, 4)
	test.That(t, e.Magnitude, test.ShouldAlmostEqual, 5)
}

func TestReprojectionSkipsBehindCamera(t *testing.T) {
	s := correspond.NewStore()
	id := s.CreateTrack(0, r2.Point{X: 960, Y: 540})

	res := &CalibrationResult{
		Registered: map[int]*RegisteredCamera{0: identityCamera(0)},
		Points:     []ScenePoint{{Position: r3.Vector{X: 0, Y: 0, Z: -1}, TrackID: id}},
	}

	errs, diags := EvaluateReprojection(res, s)
	test.That(t, errs, test.ShouldHaveLength, 0)
	test.That(t, diags, test.ShouldHaveLength, 1)
	test.That(t, diags[0].Code, test.ShouldEqual, DiagBehindCamera)
	test.That(t, diags[0].TrackID, test.ShouldEqual, id)
}

func TestReprojectionSkipsUnresolvedAndUnobserved(t *testing.T) {
	s := correspond.NewStore()
	id := s.CreateTrack(1, r2.Point{X: 10, Y: 10}) // observed only in image 1

	res := &CalibrationResult{
		Registered: map[int]*RegisteredCamera{0: identityCamera(0)},
		Points: []ScenePoint{
			{Position: r3.Vector{Z: 2}, TrackID: -1}, // unresolved
			{Position: r3.Vector{Z: 2}, TrackID: id}, // no observation in image 0
		},
	}

	errs, diags := EvaluateReprojection(res, s)
	test.That(t, errs, test.ShouldHaveLength, 0)
	test.That(t, diags, test.ShouldHaveLength, 0)
}

func TestReprojectionSkipsMissingIntrinsics(t *testing.T) {
	s := correspond.NewStore()
	id := s.CreateTrack(0, r2.Point{X: 960, Y: 540})

	cam := identityCamera(0)
	cam.Intrinsics = nil
	res := &CalibrationResult{
		Registered: map[int]*RegisteredCamera{0: cam},
		Points:     []ScenePoint{{Position: r3.Vector{Z: 2}, TrackID: id}},
	}

	errs, diags := EvaluateReprojection(res, s)
	test.That(t, errs, test.ShouldHaveLength, 0)
	test.That(t, diags, test.ShouldHaveLength, 0)
}
