// Package main runs a saved correspondence project through an external COLMAP
// solve and exports the calibrated scene as glTF.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/pointgram/pointgram/colmap"
	"github.com/pointgram/pointgram/correspond"
	"github.com/pointgram/pointgram/gltfexport"
	"github.com/pointgram/pointgram/project"
	"github.com/pointgram/pointgram/sfm"
)

var logger = golog.NewDevelopmentLogger("pointgram")

func main() {
	if err := realMain(os.Args[1:]); err != nil {
		logger.Fatal(err)
	}
}

func realMain(args []string) error {
	flags := flag.NewFlagSet("pointgram", flag.ContinueOnError)
	projectPath := flags.String("project", "", "saved project file (JSON)")
	colmapBin := flags.String("colmap", colmap.DefaultBinary, "path to the COLMAP binary")
	workDir := flags.String("workdir", "", "solver working directory (default: a temp dir)")
	outPath := flags.String("out", "", "output glTF file (optional)")
	debug := flags.Bool("debug", false, "enable debug logging")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *projectPath == "" {
		return errors.New("-project is required")
	}
	if *debug {
		logger = golog.NewDebugLogger("pointgram")
	}

	proj, err := project.Load(*projectPath, logger)
	if err != nil {
		return errors.Wrapf(err, "loading project %q", *projectPath)
	}
	logger.Infow("project loaded",
		"images", len(proj.Images),
		"tracks", proj.Store.Len(),
	)

	solver := &colmap.Solver{
		BinaryPath: *colmapBin,
		WorkDir:    *workDir,
		Logger:     logger,
	}
	run, err := sfm.Calibrate(context.Background(), proj.Store, proj.Images, solver, logger)
	if err != nil {
		return err
	}

	for _, d := range run.Result.Diagnostics {
		logger.Warn(d.String())
	}
	printReport(run, proj.Store)

	if *outPath != "" {
		if err := gltfexport.Export(*outPath, run, proj.Store, logger); err != nil {
			return err
		}
		logger.Infow("scene exported", "path", *outPath)
	}
	return nil
}

// printReport writes the registered images and per-track RMS reprojection
// errors to stdout.
func printReport(run *sfm.Run, store *correspond.Store) {
	registered := run.Result.RegisteredIndices()
	fmt.Printf("registered %d of %d images: %v\n", len(registered), len(run.Input.Images), registered)

	sums := map[correspond.TrackID]float64{}
	counts := map[correspond.TrackID]int{}
	for key, re := range run.Reprojection {
		sums[key.TrackID] += re.Magnitude * re.Magnitude
		counts[key.TrackID]++
	}
	ids := make([]correspond.TrackID, 0, len(sums))
	for id := range sums {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	w := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
	fmt.Fprintln(w, "track\tobservations\trms error (px)")
	for _, id := range ids {
		label := id.String()
		if tr := store.Track(id); tr != nil {
			label = tr.Label()
		}
		rms := math.Sqrt(sums[id] / float64(counts[id]))
		fmt.Fprintf(w, "%s\t%d\t%.3f\n", label, counts[id], rms)
	}
	if err := w.Flush(); err != nil {
		logger.Warn(err)
	}
}
