package sfm

import (
	"github.com/pkg/errors"

	"github.com/pointgram/pointgram/correspond"
	"github.com/pointgram/pointgram/transform"
)

// ErrInsufficientData is returned when there are too few images or tracks for
// the solver to attempt a robust estimate.
var ErrInsufficientData = errors.New("not enough data to calibrate")

// The downstream solver needs at least two views and three correspondences for
// a robust two-view initialization.
const (
	minImages = 2
	minTracks = 3
)

// SimplePinholeModel is the only camera model this layer accepts, with
// parameters (f, cx, cy).
const SimplePinholeModel = "SIMPLE_PINHOLE"

// Keypoint is one solver-facing feature record. Tracked points carry no scale
// or orientation, so those stay at their neutral values.
type Keypoint struct {
	X           float64
	Y           float64
	Scale       float64
	Orientation float64
}

// IndexMap is the invertible mapping between track ids and the dense keypoint
// indices 0..n-1 assigned within one image for a single solver-input build.
type IndexMap struct {
	forward map[correspond.TrackID]int
	inverse []correspond.TrackID
}

func newIndexMap() *IndexMap {
	return &IndexMap{forward: map[correspond.TrackID]int{}}
}

func (m *IndexMap) assign(id correspond.TrackID) int {
	k := len(m.inverse)
	m.forward[id] = k
	m.inverse = append(m.inverse, id)
	return k
}

// KeypointIndex returns the keypoint index assigned to a track in this image.
func (m *IndexMap) KeypointIndex(id correspond.TrackID) (int, bool) {
	k, ok := m.forward[id]
	return k, ok
}

// TrackID resolves a keypoint index back to its track.
func (m *IndexMap) TrackID(keypointIndex int) (correspond.TrackID, bool) {
	if keypointIndex < 0 || keypointIndex >= len(m.inverse) {
		return -1, false
	}
	return m.inverse[keypointIndex], true
}

// Len is the number of keypoints in this image.
func (m *IndexMap) Len() int {
	return len(m.inverse)
}

// ImagePair is an unordered pair of image indices, stored with I < J.
type ImagePair struct {
	I int
	J int
}

// Match asserts that keypoint A in the pair's first image and keypoint B in
// its second observe the same track.
type Match struct {
	A int
	B int
}

// CameraDescriptor seeds the solver's per-image camera.
type CameraDescriptor struct {
	Model       string
	Width       int
	Height      int
	FocalLength float64
	Cx          float64
	Cy          float64
}

// SolverInput is everything the external solver consumes, and the index maps
// needed to interpret what it produces. It is owned by a single calibration
// run and replaced wholesale on the next.
type SolverInput struct {
	Images    []ImageRecord
	Keypoints map[int][]Keypoint
	IndexMaps map[int]*IndexMap
	Matches   map[ImagePair][]Match
	Cameras   map[int]CameraDescriptor
}

// BuildSolverInput converts the store's tracks into per-image keypoint lists
// and pairwise match lists. Keypoints are assigned by ascending track id, so
// repeated builds of unchanged tracks produce identical output regardless of
// insertion history.
func BuildSolverInput(store *correspond.Store, images []ImageRecord) (*SolverInput, error) {
	if len(images) < minImages {
		return nil, errors.Wrapf(ErrInsufficientData, "need at least %d images, have %d", minImages, len(images))
	}
	if store.Len() < minTracks {
		return nil, errors.Wrapf(ErrInsufficientData, "need at least %d tracks, have %d", minTracks, store.Len())
	}
	for i, im := range images {
		if im.Index != i {
			return nil, errors.Errorf("image record at position %d has index %d", i, im.Index)
		}
		if im.Width <= 0 || im.Height <= 0 {
			return nil, errors.Errorf("image %d (%s) has no valid dimensions", i, im.Basename())
		}
	}

	in := &SolverInput{
		Images:    images,
		Keypoints: map[int][]Keypoint{},
		IndexMaps: map[int]*IndexMap{},
		Matches:   map[ImagePair][]Match{},
		Cameras:   map[int]CameraDescriptor{},
	}

	ids := store.TracksSorted()
	for _, im := range images {
		idxMap := newIndexMap()
		var kps []Keypoint
		for _, id := range ids {
			pt, ok := store.Observation(id, im.Index)
			if !ok {
				continue
			}
			idxMap.assign(id)
			kps = append(kps, Keypoint{X: pt.X, Y: pt.Y, Scale: 1, Orientation: 0})
		}
		in.IndexMaps[im.Index] = idxMap
		in.Keypoints[im.Index] = kps

		seed := transform.SeedIntrinsics(im.Width, im.Height)
		in.Cameras[im.Index] = CameraDescriptor{
			Model:       SimplePinholeModel,
			Width:       im.Width,
			Height:      im.Height,
			FocalLength: seed.Fx,
			Cx:          seed.Ppx,
			Cy:          seed.Ppy,
		}
	}

	for i := 0; i < len(images); i++ {
		for j := i + 1; j < len(images); j++ {
			mapI, mapJ := in.IndexMaps[i], in.IndexMaps[j]
			var matches []Match
			for _, id := range ids {
				a, okI := mapI.KeypointIndex(id)
				b, okJ := mapJ.KeypointIndex(id)
				if okI && okJ {
					matches = append(matches, Match{A: a, B: b})
				}
			}
			if len(matches) > 0 {
				in.Matches[ImagePair{I: i, J: j}] = matches
			}
		}
	}

	return in, nil
}
