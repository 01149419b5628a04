package sfm

import (
	"context"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/pointgram/pointgram/transform"
)

// ErrNoReconstruction is returned when the solver produced no usable model.
var ErrNoReconstruction = errors.New("solver produced no usable reconstruction")

// Solver is the opaque external structure-from-motion engine. Solve is a
// single atomic, potentially long-running call: it returns either the
// reconstruction models it found or an error, never partial output.
// Cancellation is the caller's concern via ctx.
type Solver interface {
	Solve(ctx context.Context, input *SolverInput) ([]*Reconstruction, error)
}

// Reconstruction is one model returned by the solver, expressed purely in the
// solver's own identifier space.
type Reconstruction struct {
	ID      int
	Images  []RegisteredImage
	Cameras []SolverCamera
	Points  []SolverPoint
}

// Camera looks up a solver camera by its id.
func (r *Reconstruction) Camera(id int) (SolverCamera, bool) {
	for _, c := range r.Cameras {
		if c.ID == id {
			return c, true
		}
	}
	return SolverCamera{}, false
}

// RegisteredImage is an image the solver placed, with its world-to-camera pose.
type RegisteredImage struct {
	ID       int
	Name     string
	CameraID int
	Pose     *transform.CamPose
}

// SolverCamera holds the solver's estimated camera model parameters.
type SolverCamera struct {
	ID     int
	Model  string
	Width  int
	Height int
	Params []float64
}

// SolverPoint is a reconstructed 3D point together with the observation
// references the solver resolved internally.
type SolverPoint struct {
	XYZ          r3.Vector
	Observations []TrackObs
}

// TrackObs references one 2D observation of a solver point: the solver image
// id and the keypoint index within that image's keypoint list.
type TrackObs struct {
	ImageID       int
	KeypointIndex int
}

// SelectReconstruction picks the canonical model from the solver's output:
// most registered images, ties broken by more 3D points, then lowest model id.
func SelectReconstruction(recs []*Reconstruction) (*Reconstruction, error) {
	if len(recs) == 0 {
		return nil, ErrNoReconstruction
	}
	sorted := make([]*Reconstruction, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if len(a.Images) != len(b.Images) {
			return len(a.Images) > len(b.Images)
		}
		if len(a.Points) != len(b.Points) {
			return len(a.Points) > len(b.Points)
		}
		return a.ID < b.ID
	})
	best := sorted[0]
	if len(best.Images) < minImages {
		return nil, errors.Wrapf(ErrNoReconstruction,
			"largest model registered only %d of the required %d images", len(best.Images), minImages)
	}
	return best, nil
}
