// Package correspond maintains user-defined point correspondence tracks across
// a set of photographs. A track groups the 2D pixel observations of one physical
// feature, at most one observation per image.
package correspond

import (
	"sort"
	"strconv"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// Sentinel errors returned by Store mutations.
var (
	ErrUnknownTrack         = errors.New("unknown track id")
	ErrUnknownObservation   = errors.New("track has no observation for that image")
	ErrDuplicateObservation = errors.New("track already has an observation for that image")
)

// TrackID identifies a point track. IDs are assigned monotonically and are
// never reused, even after the track is deleted.
type TrackID int

func (id TrackID) String() string {
	return strconv.Itoa(int(id))
}

// Track is one correspondence: the same physical point observed in one or more
// images. Observations are keyed by image index.
type Track struct {
	ID           TrackID
	DisplayName  string
	Observations map[int]r2.Point
}

// Label returns the display name if one was set, otherwise the numeric id.
func (tr *Track) Label() string {
	if tr.DisplayName != "" {
		return tr.DisplayName
	}
	return tr.ID.String()
}

// Observation is one (track, point) entry within a single image.
type Observation struct {
	TrackID TrackID
	Point   r2.Point
}

// Store owns all point tracks. It is not safe for concurrent use; the
// calibration pipeline mutates and reads it strictly sequentially.
type Store struct {
	tracks map[TrackID]*Track
	nextID TrackID
}

// NewStore returns an empty track store.
func NewStore() *Store {
	return &Store{tracks: map[TrackID]*Track{}}
}

// Len returns the number of live tracks.
func (s *Store) Len() int {
	return len(s.tracks)
}

// NextID returns the id the next created track will receive.
func (s *Store) NextID() TrackID {
	return s.nextID
}

// RestoreNextID raises the id counter, used when loading a saved project so
// that ids of deleted tracks are not reissued. Lowering the counter is ignored.
func (s *Store) RestoreNextID(id TrackID) {
	if id > s.nextID {
		s.nextID = id
	}
}

// CreateTrack allocates a fresh track with a single observation and returns
// its id.
func (s *Store) CreateTrack(imageIndex int, pt r2.Point) TrackID {
	id := s.nextID
	s.nextID++
	s.tracks[id] = &Track{
		ID:           id,
		Observations: map[int]r2.Point{imageIndex: pt},
	}
	return id
}

// AddObservation records pt as the track's observation in the given image.
func (s *Store) AddObservation(id TrackID, imageIndex int, pt r2.Point) error {
	tr, ok := s.tracks[id]
	if !ok {
		return errors.Wrapf(ErrUnknownTrack, "track %d", id)
	}
	if _, ok := tr.Observations[imageIndex]; ok {
		return errors.Wrapf(ErrDuplicateObservation, "track %d, image %d", id, imageIndex)
	}
	tr.Observations[imageIndex] = pt
	return nil
}

// MoveObservation repositions an existing observation.
func (s *Store) MoveObservation(id TrackID, imageIndex int, pt r2.Point) error {
	tr, ok := s.tracks[id]
	if !ok {
		return errors.Wrapf(ErrUnknownTrack, "track %d", id)
	}
	if _, ok := tr.Observations[imageIndex]; !ok {
		return errors.Wrapf(ErrUnknownObservation, "track %d, image %d", id, imageIndex)
	}
	tr.Observations[imageIndex] = pt
	return nil
}

// RemoveObservation deletes the track's observation in the given image. A track
// whose last observation is removed is deleted outright; its id is retired.
func (s *Store) RemoveObservation(id TrackID, imageIndex int) error {
	tr, ok := s.tracks[id]
	if !ok {
		return errors.Wrapf(ErrUnknownTrack, "track %d", id)
	}
	if _, ok := tr.Observations[imageIndex]; !ok {
		return errors.Wrapf(ErrUnknownObservation, "track %d, image %d", id, imageIndex)
	}
	delete(tr.Observations, imageIndex)
	if len(tr.Observations) == 0 {
		delete(s.tracks, id)
	}
	return nil
}

// Rename sets the track's display name. An empty name clears it.
func (s *Store) Rename(id TrackID, name string) error {
	tr, ok := s.tracks[id]
	if !ok {
		return errors.Wrapf(ErrUnknownTrack, "track %d", id)
	}
	tr.DisplayName = name
	return nil
}

// Track returns the track for id, or nil if it does not exist.
func (s *Store) Track(id TrackID) *Track {
	return s.tracks[id]
}

// Observation returns the track's observation in the given image.
func (s *Store) Observation(id TrackID, imageIndex int) (r2.Point, bool) {
	tr, ok := s.tracks[id]
	if !ok {
		return r2.Point{}, false
	}
	pt, ok := tr.Observations[imageIndex]
	return pt, ok
}

// TracksSorted returns all live track ids in ascending order.
func (s *Store) TracksSorted() []TrackID {
	ids := make([]TrackID, 0, len(s.tracks))
	for id := range s.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ObservationsForImage returns every (track, point) observed in the given
// image, ordered by ascending track id.
func (s *Store) ObservationsForImage(imageIndex int) []Observation {
	var obs []Observation
	for _, id := range s.TracksSorted() {
		if pt, ok := s.tracks[id].Observations[imageIndex]; ok {
			obs = append(obs, Observation{TrackID: id, Point: pt})
		}
	}
	return obs
}
