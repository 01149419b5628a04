package sfm

import (
	"math"

	"github.com/pointgram/pointgram/correspond"
)

// minReprojectionDepth is the smallest camera-space depth still considered in
// front of the camera.
const minReprojectionDepth = 1e-6

// ErrorKey identifies one evaluated observation.
type ErrorKey struct {
	TrackID    correspond.TrackID
	ImageIndex int
}

// ReprojectionError is the pixel-space discrepancy between an observed point
// and its predicted projection. Derived data: fully recomputed after every
// calibration run, never persisted.
type ReprojectionError struct {
	Dx        float64
	Dy        float64
	Magnitude float64
}

// EvaluateReprojection projects every resolved scene point into every
// registered image that has an observation for its track and measures the
// pixel error observed - projected. Observations behind the camera or in
// images without usable intrinsics are skipped and reported as diagnostics;
// track/image pairs with no resolved point simply have no entry.
func EvaluateReprojection(res *CalibrationResult, store *correspond.Store) (map[ErrorKey]ReprojectionError, []Diagnostic) {
	errs := map[ErrorKey]ReprojectionError{}
	var diags []Diagnostic

	for _, sp := range res.Points {
		if !sp.Resolved() {
			continue
		}
		tr := store.Track(sp.TrackID)
		if tr == nil {
			continue
		}
		for _, imageIndex := range res.RegisteredIndices() {
			cam := res.Registered[imageIndex]
			observed, ok := store.Observation(sp.TrackID, imageIndex)
			if !ok {
				continue
			}
			if cam.Intrinsics == nil {
				// unsupported camera model already reported by the mapper
				continue
			}
			inCam := cam.PoseW2C.TransformPoint(sp.Position)
			if inCam.Z <= minReprojectionDepth {
				diags = append(diags, Diagnostic{
					Code:       DiagBehindCamera,
					ImageIndex: imageIndex,
					TrackID:    sp.TrackID,
					Message:    "point projects behind the camera",
				})
				continue
			}
			projected := cam.Intrinsics.PointToPixel(inCam)
			dx := observed.X - projected.X
			dy := observed.Y - projected.Y
			errs[ErrorKey{TrackID: sp.TrackID, ImageIndex: imageIndex}] = ReprojectionError{
				Dx:        dx,
				Dy:        dy,
				Magnitude: math.Hypot(dx, dy),
			}
		}
	}
	return errs, diags
}
