package sfm

import (
	"errors"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/pointgram/pointgram/correspond"
)

func twoImages() []ImageRecord {
	return []ImageRecord{
		{Index: 0, Path: "shots/left.jpg", Width: 1920, Height: 1080},
		{Index: 1, Path: "shots/right.jpg", Width: 1920, Height: 1080},
	}
}

func storeWithSharedTracks(t *testing.T, n int) *correspond.Store {
	t.Helper()
	s := correspond.NewStore()
	for i := 0; i < n; i++ {
		id := s.CreateTrack(0, r2.Point{X: float64(100 + i*10), Y: float64(200 + i*10)})
		test.That(t, s.AddObservation(id, 1, r2.Point{X: float64(110 + i*10), Y: float64(205 + i*10)}), test.ShouldBeNil)
	}
	return s
}

func TestBuildSolverInputTwoViews(t *testing.T) {
	// 2 images, 3 tracks observed in both: 3 keypoints per image, one matched
	// pair carrying 3 matches
	s := storeWithSharedTracks(t, 3)
	in, err := BuildSolverInput(s, twoImages())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, in.Keypoints[0], test.ShouldHaveLength, 3)
	test.That(t, in.Keypoints[1], test.ShouldHaveLength, 3)
	test.That(t, in.Matches, test.ShouldHaveLength, 1)
	test.That(t, in.Matches[ImagePair{I: 0, J: 1}], test.ShouldHaveLength, 3)

	cam := in.Cameras[0]
	test.That(t, cam.Model, test.ShouldEqual, SimplePinholeModel)
	test.That(t, cam.FocalLength, test.ShouldEqual, 1.2*1920)
	test.That(t, cam.Cx, test.ShouldEqual, 960.)
	test.That(t, cam.Cy, test.ShouldEqual, 540.)
}

func TestIndexMapInvertible(t *testing.T) {
	s := storeWithSharedTracks(t, 5)
	in, err := BuildSolverInput(s, twoImages())
	test.That(t, err, test.ShouldBeNil)

	for _, im := range in.Images {
		idxMap := in.IndexMaps[im.Index]
		test.That(t, idxMap.Len(), test.ShouldEqual, len(in.Keypoints[im.Index]))

		// values form a dense permutation of 0..n-1 and invert exactly
		seen := map[int]bool{}
		for _, id := range s.TracksSorted() {
			k, ok := idxMap.KeypointIndex(id)
			test.That(t, ok, test.ShouldBeTrue)
			test.That(t, k, test.ShouldBeGreaterThanOrEqualTo, 0)
			test.That(t, k, test.ShouldBeLessThan, idxMap.Len())
			test.That(t, seen[k], test.ShouldBeFalse)
			seen[k] = true

			back, ok := idxMap.TrackID(k)
			test.That(t, ok, test.ShouldBeTrue)
			test.That(t, back, test.ShouldEqual, id)
		}

		_, ok := idxMap.TrackID(idxMap.Len())
		test.That(t, ok, test.ShouldBeFalse)
		_, ok = idxMap.TrackID(-1)
		test.That(t, ok, test.ShouldBeFalse)
	}
}

func TestMatchSymmetry(t *testing.T) {
	s := storeWithSharedTracks(t, 4)
	in, err := BuildSolverInput(s, twoImages())
	test.That(t, err, test.ShouldBeNil)

	// each match joins keypoints of the same track, so swapping components
	// reproduces the (j, i) view of the pair
	for pair, matches := range in.Matches {
		for _, m := range matches {
			idI, ok := in.IndexMaps[pair.I].TrackID(m.A)
			test.That(t, ok, test.ShouldBeTrue)
			idJ, ok := in.IndexMaps[pair.J].TrackID(m.B)
			test.That(t, ok, test.ShouldBeTrue)
			test.That(t, idI, test.ShouldEqual, idJ)
		}
	}
}

func TestSingleObservationTrackNeverMatched(t *testing.T) {
	s := storeWithSharedTracks(t, 3)
	lone := s.CreateTrack(0, r2.Point{X: 500, Y: 500})

	in, err := BuildSolverInput(s, twoImages())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, in.Keypoints[0], test.ShouldHaveLength, 4)
	test.That(t, in.Keypoints[1], test.ShouldHaveLength, 3)

	loneKp, ok := in.IndexMaps[0].KeypointIndex(lone)
	test.That(t, ok, test.ShouldBeTrue)
	for pair, matches := range in.Matches {
		for _, m := range matches {
			if pair.I == 0 {
				test.That(t, m.A, test.ShouldNotEqual, loneKp)
			}
			if pair.J == 0 {
				test.That(t, m.B, test.ShouldNotEqual, loneKp)
			}
		}
	}
}

func TestBuildDeterministicAcrossInsertionOrder(t *testing.T) {
	// same track contents built up in a different observation order
	a := correspond.NewStore()
	t0 := a.CreateTrack(0, r2.Point{X: 1, Y: 1})
	t1 := a.CreateTrack(0, r2.Point{X: 2, Y: 2})
	t2 := a.CreateTrack(0, r2.Point{X: 3, Y: 3})
	for _, id := range []correspond.TrackID{t2, t0, t1} {
		pt, _ := a.Observation(id, 0)
		test.That(t, a.AddObservation(id, 1, pt), test.ShouldBeNil)
	}

	b := correspond.NewStore()
	u0 := b.CreateTrack(0, r2.Point{X: 1, Y: 1})
	u1 := b.CreateTrack(0, r2.Point{X: 2, Y: 2})
	u2 := b.CreateTrack(0, r2.Point{X: 3, Y: 3})
	for _, id := range []correspond.TrackID{u0, u1, u2} {
		pt, _ := b.Observation(id, 0)
		test.That(t, b.AddObservation(id, 1, pt), test.ShouldBeNil)
	}

	inA, err := BuildSolverInput(a, twoImages())
	test.That(t, err, test.ShouldBeNil)
	inB, err := BuildSolverInput(b, twoImages())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, inA.Keypoints, test.ShouldResemble, inB.Keypoints)
	test.That(t, inA.Matches, test.ShouldResemble, inB.Matches)
}

func TestBuildSolverInputInsufficientData(t *testing.T) {
	s := storeWithSharedTracks(t, 3)
	_, err := BuildSolverInput(s, twoImages()[:1])
	test.That(t, errors.Is(err, ErrInsufficientData), test.ShouldBeTrue)

	s = storeWithSharedTracks(t, 2)
	_, err = BuildSolverInput(s, twoImages())
	test.That(t, errors.Is(err, ErrInsufficientData), test.ShouldBeTrue)
}

func TestBuildSolverInputRejectsBadImages(t *testing.T) {
	s := storeWithSharedTracks(t, 3)

	images := twoImages()
	images[1].Width = 0
	_, err := BuildSolverInput(s, images)
	test.That(t, err, test.ShouldNotBeNil)

	images = twoImages()
	images[1].Index = 5
	_, err = BuildSolverInput(s, images)
	test.That(t, err, test.ShouldNotBeNil)
}
