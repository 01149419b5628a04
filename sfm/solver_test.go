package sfm

import (
	"errors"
	"testing"

	"go.viam.com/test"
)

func recWithCounts(id, images, points int) *Reconstruction {
	rec := &Reconstruction{ID: id}
	for i := 0; i < images; i++ {
		rec.Images = append(rec.Images, RegisteredImage{ID: i})
	}
	for i := 0; i < points; i++ {
		rec.Points = append(rec.Points, SolverPoint{})
	}
	return rec
}

func TestSelectReconstruction(t *testing.T) {
	_, err := SelectReconstruction(nil)
	test.That(t, errors.Is(err, ErrNoReconstruction), test.ShouldBeTrue)

	// most registered images wins
	best, err := SelectReconstruction([]*Reconstruction{
		recWithCounts(0, 2, 50),
		recWithCounts(1, 4, 10),
		recWithCounts(2, 3, 90),
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, best.ID, test.ShouldEqual, 1)

	// image-count tie broken by point count
	best, err = SelectReconstruction([]*Reconstruction{
		recWithCounts(0, 3, 10),
		recWithCounts(1, 3, 20),
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, best.ID, test.ShouldEqual, 1)

	// full tie broken by lowest id
	best, err = SelectReconstruction([]*Reconstruction{
		recWithCounts(7, 3, 10),
		recWithCounts(2, 3, 10),
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, best.ID, test.ShouldEqual, 2)
}

func TestSelectReconstructionTooFewRegistered(t *testing.T) {
	_, err := SelectReconstruction([]*Reconstruction{recWithCounts(0, 1, 100)})
	test.That(t, errors.Is(err, ErrNoReconstruction), test.ShouldBeTrue)
}
