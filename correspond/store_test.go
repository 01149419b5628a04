package correspond

import (
	"errors"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestCreateTrack(t *testing.T) {
	s := NewStore()
	id0 := s.CreateTrack(0, r2.Point{X: 10, Y: 20})
	id1 := s.CreateTrack(1, r2.Point{X: 30, Y: 40})
	test.That(t, id0, test.ShouldEqual, TrackID(0))
	test.That(t, id1, test.ShouldEqual, TrackID(1))
	test.That(t, s.Len(), test.ShouldEqual, 2)

	pt, ok := s.Observation(id0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pt, test.ShouldResemble, r2.Point{X: 10, Y: 20})
}

func TestAddObservation(t *testing.T) {
	s := NewStore()
	id := s.CreateTrack(0, r2.Point{X: 1, Y: 2})

	err := s.AddObservation(id, 1, r2.Point{X: 3, Y: 4})
	test.That(t, err, test.ShouldBeNil)

	err = s.AddObservation(id, 1, r2.Point{X: 5, Y: 6})
	test.That(t, errors.Is(err, ErrDuplicateObservation), test.ShouldBeTrue)

	err = s.AddObservation(TrackID(99), 0, r2.Point{})
	test.That(t, errors.Is(err, ErrUnknownTrack), test.ShouldBeTrue)
}

func TestMoveObservation(t *testing.T) {
	s := NewStore()
	id := s.CreateTrack(0, r2.Point{X: 1, Y: 2})

	err := s.MoveObservation(id, 0, r2.Point{X: 9, Y: 9})
	test.That(t, err, test.ShouldBeNil)
	pt, _ := s.Observation(id, 0)
	test.That(t, pt, test.ShouldResemble, r2.Point{X: 9, Y: 9})

	err = s.MoveObservation(id, 3, r2.Point{})
	test.That(t, errors.Is(err, ErrUnknownObservation), test.ShouldBeTrue)
}

func TestRemoveLastObservationDeletesTrack(t *testing.T) {
	s := NewStore()
	id := s.CreateTrack(0, r2.Point{X: 1, Y: 2})
	test.That(t, s.AddObservation(id, 1, r2.Point{X: 3, Y: 4}), test.ShouldBeNil)

	test.That(t, s.RemoveObservation(id, 0), test.ShouldBeNil)
	test.That(t, s.Track(id), test.ShouldNotBeNil)

	test.That(t, s.RemoveObservation(id, 1), test.ShouldBeNil)
	test.That(t, s.Track(id), test.ShouldBeNil)
	test.That(t, s.Len(), test.ShouldEqual, 0)

	// the retired id is gone for good
	err := s.AddObservation(id, 0, r2.Point{X: 5, Y: 6})
	test.That(t, errors.Is(err, ErrUnknownTrack), test.ShouldBeTrue)

	// and is never reassigned
	id2 := s.CreateTrack(0, r2.Point{X: 7, Y: 8})
	test.That(t, id2, test.ShouldEqual, TrackID(1))
}

func TestTracksSorted(t *testing.T) {
	s := NewStore()
	a := s.CreateTrack(2, r2.Point{X: 1, Y: 1})
	b := s.CreateTrack(0, r2.Point{X: 2, Y: 2})
	c := s.CreateTrack(1, r2.Point{X: 3, Y: 3})
	test.That(t, s.TracksSorted(), test.ShouldResemble, []TrackID{a, b, c})
}

func TestObservationsForImage(t *testing.T) {
	s := NewStore()
	a := s.CreateTrack(0, r2.Point{X: 1, Y: 1})
	b := s.CreateTrack(1, r2.Point{X: 2, Y: 2})
	test.That(t, s.AddObservation(b, 0, r2.Point{X: 3, Y: 3}), test.ShouldBeNil)

	obs := s.ObservationsForImage(0)
	test.That(t, obs, test.ShouldHaveLength, 2)
	test.That(t, obs[0].TrackID, test.ShouldEqual, a)
	test.That(t, obs[1].TrackID, test.ShouldEqual, b)
	test.That(t, s.ObservationsForImage(5), test.ShouldHaveLength, 0)
}

func TestRename(t *testing.T) {
	s := NewStore()
	id := s.CreateTrack(0, r2.Point{X: 1, Y: 1})
	test.That(t, s.Track(id).Label(), test.ShouldEqual, "0")

	test.That(t, s.Rename(id, "nose tip"), test.ShouldBeNil)
	test.That(t, s.Track(id).Label(), test.ShouldEqual, "nose tip")

	test.That(t, s.Rename(id, ""), test.ShouldBeNil)
	test.That(t, s.Track(id).Label(), test.ShouldEqual, "0")

	err := s.Rename(TrackID(42), "x")
	test.That(t, errors.Is(err, ErrUnknownTrack), test.ShouldBeTrue)
}

func TestRestoreNextID(t *testing.T) {
	s := NewStore()
	s.RestoreNextID(7)
	id := s.CreateTrack(0, r2.Point{X: 1, Y: 1})
	test.That(t, id, test.ShouldEqual, TrackID(7))

	// lowering is a no-op
	s.RestoreNextID(2)
	test.That(t, s.NextID(), test.ShouldEqual, TrackID(8))
}
