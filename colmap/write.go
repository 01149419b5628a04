package colmap

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pointgram/pointgram/sfm"
)

// descriptorDim is the SIFT descriptor length COLMAP's feature importer
// expects. Manual correspondences carry no appearance, so descriptors are
// zeroed; matching is imported explicitly, never recomputed from them.
const descriptorDim = 128

// writeFeatures writes one feature text file per image into dir, named after
// the image basename. Keypoint order matches the solver input exactly; COLMAP
// preserves it, which is what keeps the index maps invertible end to end.
func writeFeatures(dir string, input *sfm.SolverInput) error {
	for _, im := range input.Images {
		kps := input.Keypoints[im.Index]
		if err := writeFeatureFile(filepath.Join(dir, im.Basename()+".txt"), kps); err != nil {
			return errors.Wrapf(err, "writing features for image %d", im.Index)
		}
	}
	return nil
}

func writeFeatureFile(path string, kps []sfm.Keypoint) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%d %d\n", len(kps), descriptorDim)
	for _, kp := range kps {
		fmt.Fprintf(w, "%g %g %g %g", kp.X, kp.Y, kp.Scale, kp.Orientation)
		for i := 0; i < descriptorDim; i++ {
			w.WriteString(" 0")
		}
		w.WriteByte('\n')
	}
	return w.Flush()
}

// writeMatchList writes the raw match list consumed by matches_importer:
// per image pair, a line with the two image names followed by one
// "indexA indexB" line per match and a blank separator.
func writeMatchList(path string, input *sfm.SolverInput) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	pairs := make([]sfm.ImagePair, 0, len(input.Matches))
	for pair := range input.Matches {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].I != pairs[j].I {
			return pairs[i].I < pairs[j].I
		}
		return pairs[i].J < pairs[j].J
	})

	w := bufio.NewWriter(f)
	for _, pair := range pairs {
		fmt.Fprintf(w, "%s %s\n", input.Images[pair.I].Basename(), input.Images[pair.J].Basename())
		for _, m := range input.Matches[pair] {
			fmt.Fprintf(w, "%d %d\n", m.A, m.B)
		}
		w.WriteByte('\n')
	}
	return w.Flush()
}
