package tasks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/d3ud3u-ntp2/spherize/appconfig"
	"github.com/d3ud3u-ntp2/spherize/deps"
	"github.com/d3ud3u-ntp2/spherize/detect"
	"github.com/d3ud3u-ntp2/spherize/imageio"
	"github.com/d3ud3u-ntp2/spherize/jobqueue"
	"github.com/d3ud3u-ntp2/spherize/raster"
)

// detectTask finds the subject box with the ONNX detector and writes a
// box file render jobs can point at.
//
// Arguments:
//
//	model=<path>     ONNX model (default from config detector.modelPath)
//	threshold=<0..1> heatmap probability floor
//	out=<path>       box file path (default next to the input)
func detectTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	args := parseArgs(j.Arguments)
	cfg := appconfig.Get()

	fail := func(err error) error {
		q.PushJobStdout(j.ID, "detect: "+err.Error())
		_ = q.ErrorJob(j.ID)
		return err
	}

	input := strings.TrimSpace(j.Input)
	if input == "" {
		return fail(errors.New("needs an input image"))
	}
	p, err := resolveInput(input)
	if err != nil {
		return fail(err)
	}
	img, err := imageio.Load(p)
	if err != nil {
		return fail(err)
	}

	modelPath := argString(args, "model", cfg.Detector.ModelPath)
	if modelPath == "" {
		return fail(errors.New("needs a model (set detector.modelPath or pass model=)"))
	}

	opts := detect.DefaultOptions()
	opts.ORTSharedLibraryPath = deps.LibraryPath(cfg.Detector.SharedLibraryPath)
	if cfg.Detector.Threshold > 0 {
		opts.Threshold = float32(cfg.Detector.Threshold)
	}
	if cfg.Detector.InputSize > 0 {
		opts.InputWidth = cfg.Detector.InputSize
		opts.InputHeight = cfg.Detector.InputSize
	}
	threshold, err := argFloat(args, "threshold", float64(opts.Threshold))
	if err != nil {
		return fail(err)
	}
	opts.Threshold = float32(threshold)

	box, err := detect.Subject(modelPath, img, opts)
	if err != nil {
		if errors.Is(err, detect.ErrCGORequired) {
			q.PushJobStdout(j.ID, "detect: this build has no ONNX support; use box= on the render instead")
		}
		return fail(err)
	}

	outPath := argString(args, "out", "")
	if outPath == "" {
		outPath = imageio.OutputName(p, filepath.Dir(p), "", "box")
	}
	if err := writeBoxFile(outPath, filepath.Base(p), box); err != nil {
		return fail(err)
	}
	q.PushJobStdout(j.ID, fmt.Sprintf("detect: %s -> %s", box.String(), outPath))
	q.CompleteJob(j.ID)
	return nil
}

// writeBoxFile writes the box in the comment-plus-coordinates form the
// box resolver reads back.
func writeBoxFile(path, source string, b raster.Box) error {
	if err := imageio.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	content := fmt.Sprintf("# spherize detect %s\n%d,%d,%d,%d\n", source, b.MinX, b.MinY, b.MaxX, b.MaxY)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write box file: %w", err)
	}
	return nil
}
