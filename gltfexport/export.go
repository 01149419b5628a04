// Package gltfexport writes a calibration run out as a glTF 2.0 scene: one
// perspective camera definition and node per registered image, and one
// translation-only node per resolved 3D point, labeled with its track. All
// geometry is converted from the capture convention to the glTF convention
// before writing.
package gltfexport

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"gonum.org/v1/gonum/mat"

	"github.com/pointgram/pointgram/correspond"
	"github.com/pointgram/pointgram/sfm"
	"github.com/pointgram/pointgram/transform"
)

const (
	generator = "pointgram"

	znear = 0.01
	zfar  = 1000.0

	// clamps keeping the perspective projection legal for viewers
	minYfov   = 1e-6
	maxYfov   = math.Pi - 1e-6
	minAspect = 1e-6
)

// CameraPerspective derives the glTF perspective parameters from pinhole
// intrinsics and image dimensions: yfov = 2*atan((h/2)/fy), aspect =
// (w*fy)/(h*fx), with the original tool's fallbacks for degenerate focals.
func CameraPerspective(intr *transform.PinholeCameraIntrinsics) (yfov, aspect float64) {
	w, h := float64(intr.Width), float64(intr.Height)
	if math.Abs(intr.Fy) < 1e-9 {
		yfov = math.Pi / 2
	} else {
		yfov = 2 * math.Atan((h/2)/intr.Fy)
	}
	yfov = math.Min(math.Max(yfov, minYfov), maxYfov)

	if math.Abs(intr.Fx) < 1e-9 || math.Abs(h*intr.Fx) < 1e-9 {
		if h > 0 {
			aspect = w / h
		} else {
			aspect = 1
		}
	} else {
		aspect = (w * intr.Fy) / (h * intr.Fx)
	}
	return yfov, math.Max(aspect, minAspect)
}

// Build assembles the glTF document for a calibration run. Cameras with
// missing intrinsics or degenerate poses are skipped with a warning; an error
// is returned only when nothing at all could be exported.
func Build(run *sfm.Run, store *correspond.Store, logger golog.Logger) (*gltf.Document, error) {
	doc := gltf.NewDocument()
	doc.Asset.Generator = generator
	scene := doc.Scenes[0]

	byIndex := map[int]sfm.ImageRecord{}
	for _, im := range run.Input.Images {
		byIndex[im.Index] = im
	}

	exportedCameras := 0
	for _, imageIndex := range run.Result.RegisteredIndices() {
		cam := run.Result.Registered[imageIndex]
		if cam.Intrinsics == nil {
			logger.Warnf("image %d has no usable intrinsics, skipping camera export", imageIndex)
			continue
		}
		if err := cam.Intrinsics.CheckValid(); err != nil {
			logger.Warnf("image %d intrinsics invalid: %v", imageIndex, err)
			continue
		}
		rot, center, err := transform.GLTF.TransformPose(cam.PoseC2W.Rotation, cam.PoseC2W.Translation)
		if err != nil {
			logger.Warnf("image %d pose unusable: %v", imageIndex, err)
			continue
		}

		yfov, aspect := CameraPerspective(cam.Intrinsics)
		name := nodeName(byIndex[imageIndex], imageIndex)
		doc.Cameras = append(doc.Cameras, &gltf.Camera{
			Name: name + "_Def",
			Perspective: &gltf.Perspective{
				AspectRatio: gltf.Float(aspect),
				Yfov:        yfov,
				Znear:       znear,
				Zfar:        gltf.Float(zfar),
			},
		})
		doc.Nodes = append(doc.Nodes, &gltf.Node{
			Name:   name,
			Camera: gltf.Index(len(doc.Cameras) - 1),
			Matrix: poseMatrix(rot, center),
		})
		scene.Nodes = append(scene.Nodes, len(doc.Nodes)-1)
		exportedCameras++
	}

	exportedPoints := 0
	for _, sp := range run.Result.Points {
		if !sp.Resolved() {
			continue
		}
		p, err := transform.GLTF.TransformPoint(sp.Position)
		if err != nil {
			logger.Warnf("track %d point unusable: %v", sp.TrackID, err)
			continue
		}
		label := sp.TrackID.String()
		if tr := store.Track(sp.TrackID); tr != nil {
			label = tr.Label()
		}
		doc.Nodes = append(doc.Nodes, &gltf.Node{
			Name:        "Point_" + label,
			Translation: [3]float64{p.X, p.Y, p.Z},
		})
		scene.Nodes = append(scene.Nodes, len(doc.Nodes)-1)
		exportedPoints++
	}

	if exportedCameras == 0 && exportedPoints == 0 {
		return nil, errors.New("nothing exportable: no valid cameras or resolved points")
	}
	logger.Infof("exported %d cameras and %d points", exportedCameras, exportedPoints)
	return doc, nil
}

// Export builds the document and saves it to path.
func Export(path string, run *sfm.Run, store *correspond.Store, logger golog.Logger) error {
	doc, err := Build(run, store, logger)
	if err != nil {
		return err
	}
	if err := gltf.Save(doc, path); err != nil {
		return errors.Wrap(err, "writing glTF file")
	}
	return nil
}

// poseMatrix lays the camera-to-world transform out in the column-major order
// glTF requires.
func poseMatrix(rot *mat.Dense, center r3.Vector) [16]float64 {
	return [16]float64{
		rot.At(0, 0), rot.At(1, 0), rot.At(2, 0), 0,
		rot.At(0, 1), rot.At(1, 1), rot.At(2, 1), 0,
		rot.At(0, 2), rot.At(1, 2), rot.At(2, 2), 0,
		center.X, center.Y, center.Z, 1,
	}
}

func nodeName(im sfm.ImageRecord, imageIndex int) string {
	if im.Path == "" {
		return "Camera_" + strconv.Itoa(imageIndex)
	}
	base := filepath.Base(im.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
