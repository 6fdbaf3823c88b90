package tasks

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/d3ud3u-ntp2/spherize/appconfig"
	"github.com/d3ud3u-ntp2/spherize/imageio"
	"github.com/d3ud3u-ntp2/spherize/jobqueue"
	"github.com/d3ud3u-ntp2/spherize/kits"
	"github.com/d3ud3u-ntp2/spherize/pipeline"
	"github.com/d3ud3u-ntp2/spherize/raster"
)

// renderTask runs the warp-and-composite pipeline for one job. Input is
// the primary layer path, or empty when kit= supplies the layers.
//
// Arguments:
//
//	kit=<dir|archive|url>  background, layers, and defaults from a kit
//	bg=<path>              background image (required without kit)
//	layers=<a,b>           extra layers painted after the primary
//	box=<spec>             inline "x0,y0,x1,y1" or a box file path
//	strength=<0..1>        warp amount
//	smooth=<bool>          soften the shared mask
//	threshold=<int>        detection intensity floor
//	levels=<lo,hi>         stretch shared-mask contrast percentiles
//	workers=<n>            pixel-loop goroutines
//	out=<path>             output path (default under the output dir)
//	thumb=<bool>           also write a thumbnail
//	quality=<1..100>       JPEG quality for .jpg outputs
func renderTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	ctx := j.Ctx
	args := parseArgs(j.Arguments)
	cfg := appconfig.Get()

	fail := func(err error) error {
		q.PushJobStdout(j.ID, "render: "+err.Error())
		_ = q.ErrorJob(j.ID)
		return err
	}

	opts := pipeline.DefaultOptions()
	if cfg.DefaultStrength > 0 {
		opts.Strength = cfg.DefaultStrength
	}
	opts.Smooth = !cfg.DisableSmoothing
	if cfg.BoxThreshold > 0 {
		opts.Threshold = cfg.BoxThreshold
	}
	if cfg.Workers > 0 {
		opts.Workers = cfg.Workers
	}

	var (
		background *raster.Raster
		layers     []pipeline.Layer
	)

	kitSrc := argString(args, "kit", "")
	if kitSrc != "" {
		if strings.TrimSpace(j.Input) != "" {
			q.PushJobStdout(j.ID, "render: ignoring input, kit supplies the layers")
		}
		k, err := kits.Open(ctx, kitSrc, kitProgress(q, j.ID))
		if err != nil {
			return fail(err)
		}
		req, err := k.Resolve(opts)
		if err != nil {
			return fail(err)
		}
		background = req.Background
		layers = req.Layers
		opts = req.Options
		q.PushJobStdout(j.ID, fmt.Sprintf("render: kit %s with %d layer(s)", kitSrc, len(layers)))
	} else {
		bgPath := argString(args, "bg", "")
		if bgPath == "" {
			return fail(errors.New("needs kit= or bg="))
		}
		input := strings.TrimSpace(j.Input)
		if input == "" {
			return fail(errors.New("needs an input layer"))
		}

		p, err := resolveInput(bgPath)
		if err != nil {
			return fail(err)
		}
		background, err = imageio.Load(p)
		if err != nil {
			return fail(err)
		}

		for _, src := range append([]string{input}, splitList(argString(args, "layers", ""))...) {
			p, err := resolveInput(src)
			if err != nil {
				return fail(err)
			}
			img, err := imageio.Load(p)
			if err != nil {
				return fail(err)
			}
			layers = append(layers, pipeline.Layer{Image: img})
		}
	}

	// Job arguments win over kit and config defaults.
	if v := argString(args, "box", ""); v != "" {
		opts.BoxSource = v
	}
	strength, err := argFloat(args, "strength", opts.Strength)
	if err != nil {
		return fail(err)
	}
	opts.Strength = strength
	smooth, err := argBool(args, "smooth", opts.Smooth)
	if err != nil {
		return fail(err)
	}
	opts.Smooth = smooth
	threshold, err := argInt(args, "threshold", opts.Threshold)
	if err != nil {
		return fail(err)
	}
	opts.Threshold = threshold
	workers, err := argInt(args, "workers", opts.Workers)
	if err != nil {
		return fail(err)
	}
	opts.Workers = workers
	if v := argString(args, "levels", ""); v != "" {
		levels, err := parseLevels(v)
		if err != nil {
			return fail(err)
		}
		opts.MaskLevels = levels
	}

	select {
	case <-ctx.Done():
		q.PushJobStdout(j.ID, "render: task canceled")
		_ = q.CancelJob(j.ID)
		return ctx.Err()
	default:
	}

	q.PushJobStdout(j.ID, fmt.Sprintf("render: warping %d layer(s) at strength %.2f", len(layers), opts.Strength))
	res, err := pipeline.Run(background, layers, opts)
	if err != nil {
		return fail(err)
	}
	for _, note := range res.Notes {
		q.PushJobStdout(j.ID, "render: "+note)
	}
	q.PushJobStdout(j.ID, "render: box "+res.Box.String())

	outPath := argString(args, "out", "")
	if outPath == "" {
		src := strings.TrimSpace(j.Input)
		if src == "" {
			src = kitSrc
		}
		outPath = imageio.OutputName(src, outputDir(cfg.OutputPath), "spherized", "png")
	}
	quality, err := argInt(args, "quality", cfg.JPEGQuality)
	if err != nil {
		return fail(err)
	}
	if err := imageio.Save(outPath, res.Image, quality); err != nil {
		return fail(err)
	}
	q.PushJobStdout(j.ID, "render: wrote "+outPath)

	thumb, err := argBool(args, "thumb", false)
	if err != nil {
		return fail(err)
	}
	if thumb {
		size := cfg.ThumbnailSize
		if size <= 0 {
			size = 512
		}
		tnPath := imageio.OutputName(outPath, filepath.Dir(outPath), "thumb", "")
		if err := imageio.SavePNG(tnPath, imageio.Thumbnail(res.Image, size)); err != nil {
			return fail(err)
		}
		q.PushJobStdout(j.ID, "render: wrote "+tnPath)
	}

	q.CompleteJob(j.ID)
	return nil
}

func outputDir(configured string) string {
	if configured != "" {
		return configured
	}
	return "output"
}
