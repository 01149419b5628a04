package sfm

import (
	"fmt"
	"sort"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/pointgram/pointgram/correspond"
	"github.com/pointgram/pointgram/transform"
)

// RegisteredCamera is the solver's estimate for one original image.
// Intrinsics is nil when the solver returned a camera model other than
// SIMPLE_PINHOLE for this image; the pose is kept either way.
type RegisteredCamera struct {
	ImageIndex int
	Intrinsics *transform.PinholeCameraIntrinsics
	// PoseW2C maps world points into camera space; PoseC2W is its inverse,
	// whose translation is the camera center in world space.
	PoseW2C *transform.CamPose
	PoseC2W *transform.CamPose
}

// ScenePoint is a reconstructed 3D point annotated with the track that
// produced it, or -1 when no observation resolved.
type ScenePoint struct {
	Position r3.Vector
	TrackID  correspond.TrackID
}

// Resolved reports whether the point was traced back to a user track.
func (p ScenePoint) Resolved() bool {
	return p.TrackID >= 0
}

// CalibrationResult maps one reconstruction back onto the session's original
// image indices and track ids. It is owned by a single calibration run and is
// replaced wholesale by the next run.
type CalibrationResult struct {
	// Registered is keyed by original image index.
	Registered  map[int]*RegisteredCamera
	Points      []ScenePoint
	Diagnostics []Diagnostic
}

// RegisteredIndices returns the original indices of all registered images in
// map iteration-independent ascending order.
func (res *CalibrationResult) RegisteredIndices() []int {
	idxs := make([]int, 0, len(res.Registered))
	for idx := range res.Registered {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	return idxs
}

func (res *CalibrationResult) addDiag(code DiagnosticCode, imageIndex int, trackID correspond.TrackID, format string, args ...interface{}) {
	res.Diagnostics = append(res.Diagnostics, Diagnostic{
		Code:       code,
		ImageIndex: imageIndex,
		TrackID:    trackID,
		Message:    fmt.Sprintf(format, args...),
	})
}

// MapResult selects the canonical reconstruction from the solver's output and
// translates it back into the session's identifier space: solver image ids
// become original image indices (matched by file basename), world-to-camera
// poses are inverted to camera-to-world, and solver points are resolved to
// track ids through the build's inverse index maps. Per-image and per-point
// anomalies become Diagnostics on the result; only structural failures return
// an error.
func MapResult(recs []*Reconstruction, input *SolverInput, logger golog.Logger) (*CalibrationResult, error) {
	rec, err := SelectReconstruction(recs)
	if err != nil {
		return nil, err
	}
	if len(recs) > 1 {
		logger.Infof("solver returned %d models, selected model %d with %d registered images",
			len(recs), rec.ID, len(rec.Images))
	}

	res := &CalibrationResult{Registered: map[int]*RegisteredCamera{}}

	// solver image id -> original image index, by basename
	nameToIndex := map[string]int{}
	for _, im := range input.Images {
		nameToIndex[im.Basename()] = im.Index
	}
	solverIDToIndex := map[int]int{}
	for _, img := range rec.Images {
		idx, ok := nameToIndex[img.Name]
		if !ok {
			res.addDiag(DiagUnmatchedImageName, -1, -1,
				"solver image %q (id %d) matches no stored image", img.Name, img.ID)
			continue
		}
		solverIDToIndex[img.ID] = idx

		cam := &RegisteredCamera{
			ImageIndex: idx,
			PoseW2C:    img.Pose,
			PoseC2W:    img.Pose.Invert(),
		}
		if sc, ok := rec.Camera(img.CameraID); !ok {
			res.addDiag(DiagUnsupportedCameraModel, idx, -1,
				"solver camera %d for image %d is missing", img.CameraID, idx)
		} else if sc.Model != SimplePinholeModel || len(sc.Params) != 3 {
			res.addDiag(DiagUnsupportedCameraModel, idx, -1,
				"image %d uses camera model %q with %d params; only %s(f, cx, cy) is supported",
				idx, sc.Model, len(sc.Params), SimplePinholeModel)
		} else {
			intr := transform.NewPinholeCameraIntrinsics(sc.Width, sc.Height, sc.Params[0], sc.Params[1], sc.Params[2])
			cam.Intrinsics = &intr
		}
		res.Registered[idx] = cam
	}

	// solver points -> track ids via the inverse index maps
	resolved := 0
	for _, pt := range rec.Points {
		var candidates []correspond.TrackID
		for _, obs := range pt.Observations {
			idx, ok := solverIDToIndex[obs.ImageID]
			if !ok {
				continue
			}
			idxMap, ok := input.IndexMaps[idx]
			if !ok {
				continue
			}
			id, ok := idxMap.TrackID(obs.KeypointIndex)
			if !ok {
				continue
			}
			candidates = appendUniqueTrack(candidates, id)
		}
		sp := ScenePoint{Position: pt.XYZ, TrackID: -1}
		switch {
		case len(candidates) == 0:
			res.addDiag(DiagUnresolvedPoint, -1, -1,
				"point at %v resolves to no track (%d observations)", pt.XYZ, len(pt.Observations))
		case len(candidates) > 1:
			// solver merged observations of distinct tracks; keep the first
			sp.TrackID = candidates[0]
			resolved++
			res.addDiag(DiagMappingInconsistency, -1, candidates[0],
				"point at %v resolves to multiple tracks %v; keeping %d", pt.XYZ, candidates, candidates[0])
			logger.Warnw("ambiguous track resolution", "point", pt.XYZ, "candidates", candidates)
		default:
			sp.TrackID = candidates[0]
			resolved++
		}
		res.Points = append(res.Points, sp)
	}

	logger.Debugf("mapped %d of %d solver points back to tracks across %d registered images",
		resolved, len(rec.Points), len(res.Registered))
	return res, nil
}

func appendUniqueTrack(ids []correspond.TrackID, id correspond.TrackID) []correspond.TrackID {
	for _, have := range ids {
		if have == id {
			return ids
		}
	}
	return append(ids, id)
}
