// Package sfm is the interchange layer between manually tracked point
// correspondences and an external structure-from-motion solver. It builds the
// solver's keypoint/match input from a correspond.Store, maps the solver's
// reconstruction back onto the original track and image identifiers, and
// evaluates per-observation reprojection error.
package sfm

import (
	"fmt"
	"path/filepath"

	"github.com/pointgram/pointgram/correspond"
)

// ImageRecord describes one session image. Index is 0-based and stable for the
// session; Width and Height must be positive before a solver input can be
// built.
type ImageRecord struct {
	Index  int
	Path   string
	Width  int
	Height int
}

// Basename is the file name the solver knows the image by.
func (im ImageRecord) Basename() string {
	return filepath.Base(im.Path)
}

// DiagnosticCode classifies a non-fatal anomaly encountered while mapping or
// evaluating a reconstruction.
type DiagnosticCode string

// Diagnostic codes. None of these abort a calibration run.
const (
	DiagUnmatchedImageName     DiagnosticCode = "unmatched_image_name"
	DiagUnsupportedCameraModel DiagnosticCode = "unsupported_camera_model"
	DiagUnresolvedPoint        DiagnosticCode = "unresolved_point"
	DiagMappingInconsistency   DiagnosticCode = "mapping_inconsistency"
	DiagBehindCamera           DiagnosticCode = "behind_camera"
)

// Diagnostic is one accumulated warning. ImageIndex and TrackID are -1 when
// they do not apply.
type Diagnostic struct {
	Code       DiagnosticCode
	ImageIndex int
	TrackID    correspond.TrackID
	Message    string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}
