package colmap

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"github.com/pointgram/pointgram/sfm"
	"github.com/pointgram/pointgram/transform"
)

// ParseModel reads one sparse reconstruction in COLMAP's TXT model format
// (cameras.txt, images.txt, points3D.txt) from dir.
func ParseModel(dir string, id int) (*sfm.Reconstruction, error) {
	rec := &sfm.Reconstruction{ID: id}

	if err := parseLines(filepath.Join(dir, "cameras.txt"), func(fields []string) error {
		// CAMERA_ID MODEL WIDTH HEIGHT PARAMS[]
		if len(fields) < 5 {
			return errors.Errorf("camera line has %d fields, need at least 5", len(fields))
		}
		camID, err := strconv.Atoi(fields[0])
		if err != nil {
			return errors.Wrap(err, "bad camera id")
		}
		width, err := strconv.Atoi(fields[2])
		if err != nil {
			return errors.Wrap(err, "bad camera width")
		}
		height, err := strconv.Atoi(fields[3])
		if err != nil {
			return errors.Wrap(err, "bad camera height")
		}
		params, err := parseFloats(fields[4:])
		if err != nil {
			return errors.Wrap(err, "bad camera params")
		}
		rec.Cameras = append(rec.Cameras, sfm.SolverCamera{
			ID:     camID,
			Model:  fields[1],
			Width:  width,
			Height: height,
			Params: params,
		})
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "parsing cameras.txt")
	}

	images, err := parseImages(filepath.Join(dir, "images.txt"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing images.txt")
	}
	rec.Images = images

	if err := parseLines(filepath.Join(dir, "points3D.txt"), func(fields []string) error {
		// POINT3D_ID X Y Z R G B ERROR TRACK[] as (IMAGE_ID POINT2D_IDX)*
		if len(fields) < 8 || (len(fields)-8)%2 != 0 {
			return errors.Errorf("point line has %d fields", len(fields))
		}
		xyz, err := parseFloats(fields[1:4])
		if err != nil {
			return errors.Wrap(err, "bad point position")
		}
		pt := sfm.SolverPoint{XYZ: r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}}
		for i := 8; i < len(fields); i += 2 {
			imgID, err := strconv.Atoi(fields[i])
			if err != nil {
				return errors.Wrap(err, "bad track image id")
			}
			kpIdx, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return errors.Wrap(err, "bad track point2d index")
			}
			pt.Observations = append(pt.Observations, sfm.TrackObs{ImageID: imgID, KeypointIndex: kpIdx})
		}
		rec.Points = append(rec.Points, pt)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "parsing points3D.txt")
	}

	return rec, nil
}

// parseImages reads the image list. Every image occupies two lines: the pose
// line (IMAGE_ID QW QX QY QZ TX TY TZ CAMERA_ID NAME) and the 2D point list,
// which may be completely empty. The point list is redundant with the tracks
// in points3D.txt, so only parity matters here.
func parseImages(path string) ([]sfm.RegisteredImage, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var images []sfm.RegisteredImage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	poseLine := true
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if !poseLine {
			// the 2D point list, possibly empty
			poseLine = true
			continue
		}
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 10 {
			return nil, errors.Errorf("line %d: image line has %d fields, need 10", lineNo, len(fields))
		}
		imgID, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: bad image id", lineNo)
		}
		vals, err := parseFloats(fields[1:8])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: bad image pose", lineNo)
		}
		camID, err := strconv.Atoi(fields[8])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: bad image camera id", lineNo)
		}
		images = append(images, sfm.RegisteredImage{
			ID:       imgID,
			Name:     strings.Join(fields[9:], " "),
			CameraID: camID,
			Pose: transform.NewCamPoseFromQuat(
				quat.Number{Real: vals[0], Imag: vals[1], Jmag: vals[2], Kmag: vals[3]},
				r3.Vector{X: vals[4], Y: vals[5], Z: vals[6]},
			),
		})
		poseLine = false
	}
	return images, scanner.Err()
}

// parseLines feeds every non-empty, non-comment line of path, split on
// whitespace, to fn.
func parseLines(path string, fn func(fields []string) error) error {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(strings.Fields(line)); err != nil {
			return errors.Wrapf(err, "line %d", lineNo)
		}
	}
	return scanner.Err()
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
