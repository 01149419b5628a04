// Package project reads and writes the correspondence project file: the list
// of session images, every track's per-image observations, optional track
// display names, and cached image dimensions. The on-disk format keys all
// numeric maps by decimal strings; loading parses and validates them.
package project

import (
	"encoding/json"
	"os"
	"sort"
	"strconv"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/pointgram/pointgram/correspond"
	"github.com/pointgram/pointgram/sfm"
)

// ErrInvalidFormat is returned when a project file is structurally unusable.
var ErrInvalidFormat = errors.New("invalid project file format")

// fileSchema is the JSON layout of a project file.
type fileSchema struct {
	ImagePaths      []string                       `json:"image_paths"`
	PointData       map[string]map[string][]float64 `json:"point_data"`
	PointSetNames   map[string]string              `json:"point_set_names"`
	ImageDimensions map[string][]int               `json:"image_dimensions"`
}

// Project is a loaded correspondence project.
type Project struct {
	Images []sfm.ImageRecord
	Store  *correspond.Store
}

// Load reads and validates a project file. Individually malformed entries
// (bad keys, bad coordinate arrays, non-positive dimensions) are skipped with
// a warning; a file without the required top-level fields is rejected.
func Load(path string, logger golog.Logger) (*Project, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening project file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var raw fileSchema
	dec := json.NewDecoder(f)
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "error parsing project JSON")
	}
	return parse(&raw, logger)
}

func parse(raw *fileSchema, logger golog.Logger) (*Project, error) {
	if raw.ImagePaths == nil || raw.PointData == nil {
		return nil, errors.Wrap(ErrInvalidFormat, "missing image_paths or point_data")
	}

	proj := &Project{Store: correspond.NewStore()}
	for i, p := range raw.ImagePaths {
		proj.Images = append(proj.Images, sfm.ImageRecord{Index: i, Path: p})
	}

	for key, dims := range raw.ImageDimensions {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(proj.Images) {
			logger.Warnf("skipping dimensions for invalid image key %q", key)
			continue
		}
		if len(dims) != 2 || dims[0] <= 0 || dims[1] <= 0 {
			logger.Warnf("skipping invalid dimensions %v for image %d", dims, idx)
			continue
		}
		proj.Images[idx].Width = dims[0]
		proj.Images[idx].Height = dims[1]
	}

	// tracks are restored with their saved ids by creating them in id order
	// and raising the id counter first
	maxID := correspond.TrackID(-1)
	trackIDs := make([]correspond.TrackID, 0, len(raw.PointData))
	byID := map[correspond.TrackID]map[string][]float64{}
	for key, obs := range raw.PointData {
		id, err := strconv.Atoi(key)
		if err != nil || id < 0 {
			logger.Warnf("skipping track with invalid id %q", key)
			continue
		}
		trackIDs = append(trackIDs, correspond.TrackID(id))
		byID[correspond.TrackID(id)] = obs
		if correspond.TrackID(id) > maxID {
			maxID = correspond.TrackID(id)
		}
	}
	sortTrackIDs(trackIDs)

	for _, id := range trackIDs {
		if err := restoreTrack(proj.Store, id, byID[id], logger); err != nil {
			return nil, err
		}
	}
	proj.Store.RestoreNextID(maxID + 1)

	for key, name := range raw.PointSetNames {
		id, err := strconv.Atoi(key)
		if err != nil {
			logger.Warnf("skipping name for invalid track key %q", key)
			continue
		}
		if name == "" {
			continue
		}
		if err := proj.Store.Rename(correspond.TrackID(id), name); err != nil {
			logger.Warnf("skipping name %q: %v", name, err)
		}
	}

	return proj, nil
}

// restoreTrack recreates one saved track so that it receives exactly its
// saved id.
func restoreTrack(
	store *correspond.Store,
	id correspond.TrackID,
	obs map[string][]float64,
	logger golog.Logger,
) error {
	type obsEntry struct {
		imageIndex int
		pt         r2.Point
	}
	var entries []obsEntry
	for key, coords := range obs {
		imageIndex, err := strconv.Atoi(key)
		if err != nil || imageIndex < 0 {
			logger.Warnf("track %d: skipping observation with invalid image key %q", id, key)
			continue
		}
		if len(coords) != 2 {
			logger.Warnf("track %d: skipping observation with %d coordinates", id, len(coords))
			continue
		}
		entries = append(entries, obsEntry{imageIndex: imageIndex, pt: r2.Point{X: coords[0], Y: coords[1]}})
	}
	if len(entries) == 0 {
		logger.Warnf("track %d has no valid observations, dropping it", id)
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].imageIndex < entries[j].imageIndex })

	store.RestoreNextID(id)
	created := store.CreateTrack(entries[0].imageIndex, entries[0].pt)
	if created != id {
		return errors.Errorf("track id mismatch restoring project: want %d, got %d", id, created)
	}
	var restoreErr error
	for _, e := range entries[1:] {
		restoreErr = multierr.Append(restoreErr, store.AddObservation(id, e.imageIndex, e.pt))
	}
	return restoreErr
}

// Save writes the project back out in the on-disk schema.
func Save(path string, proj *Project) (err error) {
	raw := fileSchema{
		PointData:       map[string]map[string][]float64{},
		PointSetNames:   map[string]string{},
		ImageDimensions: map[string][]int{},
	}
	raw.ImagePaths = make([]string, 0, len(proj.Images))
	for _, im := range proj.Images {
		raw.ImagePaths = append(raw.ImagePaths, im.Path)
		if im.Width > 0 && im.Height > 0 {
			raw.ImageDimensions[strconv.Itoa(im.Index)] = []int{im.Width, im.Height}
		}
	}
	for _, id := range proj.Store.TracksSorted() {
		tr := proj.Store.Track(id)
		obs := map[string][]float64{}
		for imageIndex, pt := range tr.Observations {
			obs[strconv.Itoa(imageIndex)] = []float64{pt.X, pt.Y}
		}
		raw.PointData[id.String()] = obs
		if tr.DisplayName != "" {
			raw.PointSetNames[id.String()] = tr.DisplayName
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrap(err, "error creating project file")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "    ")
	if err := enc.Encode(&raw); err != nil {
		return errors.Wrap(err, "error writing project JSON")
	}
	return nil
}

func sortTrackIDs(ids []correspond.TrackID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
