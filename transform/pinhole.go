// Package transform holds the camera geometry used by the calibration
// pipeline: the simple pinhole projection model, rigid camera poses, and the
// fixed basis changes between the capture convention and the scene
// interchange convention.
package transform

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have usable intrinsic parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective
// projection of a 3D scene onto the 2D image plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// NewPinholeCameraIntrinsics builds single-focal-length intrinsics, the model
// the external solver estimates (params f, cx, cy).
func NewPinholeCameraIntrinsics(width, height int, f, cx, cy float64) PinholeCameraIntrinsics {
	return PinholeCameraIntrinsics{Width: width, Height: height, Fx: f, Fy: f, Ppx: cx, Ppy: cy}
}

// SeedIntrinsics returns the initial focal-length guess handed to the solver:
// f = 1.2 * max(width, height), principal point at the image center. It is a
// seed estimate, not a constraint.
func SeedIntrinsics(width, height int) PinholeCameraIntrinsics {
	f := 1.2 * float64(max(width, height))
	return NewPinholeCameraIntrinsics(width, height, f, float64(width)/2, float64(height)/2)
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// PointToPixel projects a 3D point in camera space to a sub-pixel location on
// the image plane. The caller must ensure z > 0; reprojection error needs the
// unrounded coordinates.
func (params *PinholeCameraIntrinsics) PointToPixel(p r3.Vector) r2.Point {
	return r2.Point{
		X: (p.X/p.Z)*params.Fx + params.Ppx,
		Y: (p.Y/p.Z)*params.Fy + params.Ppy,
	}
}

// PixelToPoint transforms a pixel with depth to a 3D point in camera space.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) r3.Vector {
	return r3.Vector{
		X: (x - params.Ppx) / params.Fx * z,
		Y: (y - params.Ppy) / params.Fy * z,
		Z: z,
	}
}

// CameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) CameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}
