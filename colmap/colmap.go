// Package colmap drives the external COLMAP binary as the structure-from-motion
// solver. Manually tracked keypoints and matches are imported into a fresh
// COLMAP database, incremental mapping runs with thresholds relaxed for sparse
// hand-picked correspondences, and the resulting sparse models are converted to
// COLMAP's TXT format and parsed back into sfm.Reconstruction values.
package colmap

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pointgram/pointgram/sfm"
)

// DefaultBinary is the colmap executable looked up on PATH when none is
// configured.
const DefaultBinary = "colmap"

// mapperArgs relaxes the incremental mapper for very sparse manual input:
// initialization and absolute pose need only the 3-track minimum, the
// reprojection tolerance is generous, and no triangulated point is filtered
// for a poor angle.
var mapperArgs = []string{
	"--Mapper.min_num_matches", "3",
	"--Mapper.init_min_num_inliers", "3",
	"--Mapper.init_min_tri_angle", "1.0",
	"--Mapper.abs_pose_min_num_inliers", "3",
	"--Mapper.abs_pose_max_error", "24.0",
	"--Mapper.filter_min_tri_angle", "0.0",
}

// Solver runs COLMAP as one atomic Solve call. It satisfies sfm.Solver.
type Solver struct {
	// BinaryPath is the colmap executable; DefaultBinary when empty.
	BinaryPath string
	// WorkDir hosts the database, imported images and sparse models. A
	// temporary directory is used when empty. The directory is recreated on
	// every Solve and kept afterwards for inspection.
	WorkDir string
	Logger  golog.Logger
}

// Solve imports the keypoints and matches, runs incremental mapping, and
// parses every sparse model COLMAP produced. Model selection policy is the
// caller's concern (sfm.SelectReconstruction).
func (s *Solver) Solve(ctx context.Context, input *sfm.SolverInput) ([]*sfm.Reconstruction, error) {
	workDir, err := s.prepareWorkDir()
	if err != nil {
		return nil, err
	}
	var (
		dbPath      = filepath.Join(workDir, "database.db")
		imageDir    = filepath.Join(workDir, "images")
		featureDir  = filepath.Join(workDir, "features")
		sparseDir   = filepath.Join(workDir, "sparse")
		textDir     = filepath.Join(workDir, "text")
		matchesPath = filepath.Join(workDir, "matches.txt")
	)
	for _, dir := range []string{imageDir, featureDir, sparseDir, textDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "creating solver work directory")
		}
	}

	if err := copyImages(imageDir, input.Images); err != nil {
		return nil, err
	}
	if err := writeFeatures(featureDir, input); err != nil {
		return nil, err
	}
	if err := writeMatchList(matchesPath, input); err != nil {
		return nil, err
	}

	// COLMAP's default focal seed is the same 1.2*max(w, h) heuristic the
	// camera descriptors carry, so a per-image SIMPLE_PINHOLE camera needs no
	// explicit parameters.
	if err := s.run(ctx, "feature_importer",
		"--database_path", dbPath,
		"--image_path", imageDir,
		"--import_path", featureDir,
		"--ImageReader.camera_model", sfm.SimplePinholeModel,
		"--ImageReader.single_camera_per_image", "1",
	); err != nil {
		return nil, err
	}
	if err := s.run(ctx, "matches_importer",
		"--database_path", dbPath,
		"--match_list_path", matchesPath,
		"--match_type", "raw",
	); err != nil {
		return nil, err
	}
	mapper := append([]string{
		"--database_path", dbPath,
		"--image_path", imageDir,
		"--output_path", sparseDir,
	}, mapperArgs...)
	if err := s.run(ctx, "mapper", mapper...); err != nil {
		return nil, err
	}

	modelIDs, err := listModelIDs(sparseDir)
	if err != nil {
		return nil, err
	}
	recs := make([]*sfm.Reconstruction, 0, len(modelIDs))
	for _, id := range modelIDs {
		outDir := filepath.Join(textDir, strconv.Itoa(id))
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, errors.Wrap(err, "creating model text directory")
		}
		if err := s.run(ctx, "model_converter",
			"--input_path", filepath.Join(sparseDir, strconv.Itoa(id)),
			"--output_path", outDir,
			"--output_type", "TXT",
		); err != nil {
			return nil, err
		}
		rec, err := ParseModel(outDir, id)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing model %d", id)
		}
		recs = append(recs, rec)
	}
	s.logger().Infof("colmap produced %d sparse model(s) in %s", len(recs), workDir)
	return recs, nil
}

func (s *Solver) prepareWorkDir() (string, error) {
	if s.WorkDir == "" {
		return os.MkdirTemp("", "pointgram-colmap-")
	}
	// a stale work directory from a previous run would poison the database
	if err := os.RemoveAll(s.WorkDir); err != nil {
		return "", errors.Wrap(err, "removing previous solver work directory")
	}
	if err := os.MkdirAll(s.WorkDir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating solver work directory")
	}
	return s.WorkDir, nil
}

func (s *Solver) run(ctx context.Context, subcommand string, args ...string) error {
	binary := s.BinaryPath
	if binary == "" {
		binary = DefaultBinary
	}
	//nolint:gosec
	cmd := exec.CommandContext(ctx, binary, append([]string{subcommand}, args...)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	s.logger().Debugf("running %s %s", binary, subcommand)
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "colmap %s failed: %s", subcommand, tail(out.String(), 2000))
	}
	return nil
}

func (s *Solver) logger() golog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return golog.NewLogger("colmap")
}

// listModelIDs finds the numeric model subdirectories the mapper wrote.
func listModelIDs(sparseDir string) ([]int, error) {
	entries, err := os.ReadDir(sparseDir)
	if err != nil {
		return nil, errors.Wrap(err, "listing sparse models")
	}
	var ids []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// copyImages places each session image into dir under its basename, the name
// the solver will report back.
func copyImages(dir string, images []sfm.ImageRecord) error {
	for _, im := range images {
		if err := copyFile(filepath.Join(dir, im.Basename()), im.Path); err != nil {
			return errors.Wrapf(err, "copying image %d", im.Index)
		}
	}
	return nil
}

func copyFile(dst, src string) (err error) {
	//nolint:gosec
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, in.Close())
	}()
	//nolint:gosec
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, out.Close())
	}()
	_, err = io.Copy(out, in)
	return err
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
