package sfm

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/pointgram/pointgram/correspond"
)

// Run bundles everything one calibration produced. A new calibration replaces
// the whole Run; nothing is merged across runs.
type Run struct {
	Input        *SolverInput
	Result       *CalibrationResult
	Reprojection map[ErrorKey]ReprojectionError
}

// Calibrate executes the full synchronous pipeline: build solver input from
// the store, run the external solver, map its output back onto track and image
// identifiers, and evaluate reprojection errors. The solver call is the only
// blocking stage; everything else is sequential and single-threaded.
func Calibrate(
	ctx context.Context,
	store *correspond.Store,
	images []ImageRecord,
	solver Solver,
	logger golog.Logger,
) (*Run, error) {
	input, err := BuildSolverInput(store, images)
	if err != nil {
		return nil, err
	}
	logger.Infof("solver input: %d images, %d tracks, %d matched pairs",
		len(input.Images), store.Len(), len(input.Matches))

	recs, err := solver.Solve(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "external solver failed")
	}

	result, err := MapResult(recs, input, logger)
	if err != nil {
		return nil, err
	}

	reproj, diags := EvaluateReprojection(result, store)
	result.Diagnostics = append(result.Diagnostics, diags...)
	for _, d := range result.Diagnostics {
		logger.Debugf("diagnostic %s", d)
	}
	logger.Infof("calibration mapped %d images, %d points, %d reprojection errors, %d diagnostics",
		len(result.Registered), len(result.Points), len(reproj), len(result.Diagnostics))

	return &Run{Input: input, Result: result, Reprojection: reproj}, nil
}
