package tasks

import (
	"errors"
	"strings"
	"sync"

	"github.com/d3ud3u-ntp2/spherize/appconfig"
	"github.com/d3ud3u-ntp2/spherize/imageio"
	"github.com/d3ud3u-ntp2/spherize/jobqueue"
	"github.com/d3ud3u-ntp2/spherize/keyout"
)

// keyoutTask cuts the card color out of the input and writes an RGBA
// PNG with the subject isolated.
//
// Arguments:
//
//	key=<#rrggbb|auto>  key color (default auto)
//	tolerance=<n>       channel distance, or Lab distance with lab=
//	lab=<bool>          perceptual Lab keying
//	out=<path>
func keyoutTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	args := parseArgs(j.Arguments)

	fail := func(err error) error {
		q.PushJobStdout(j.ID, "keyout: "+err.Error())
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

	key, err := keyout.Parse(argString(args, "key", "auto"))
	if err != nil {
		return fail(err)
	}
	lab, err := argBool(args, "lab", false)
	if err != nil {
		return fail(err)
	}
	defTol := float64(keyout.DefaultTolerance)
	if lab {
		defTol = 0.15
	}
	tolerance, err := argFloat(args, "tolerance", defTol)
	if err != nil {
		return fail(err)
	}

	mask := keyout.Build(img, key, tolerance, lab)
	cut := keyout.Cut(img, mask)

	outPath := argString(args, "out", "")
	if outPath == "" {
		outPath = imageio.OutputName(p, outputDir(appconfig.Get().OutputPath), "cutout", "png")
	}
	if err := imageio.SavePNG(outPath, cut); err != nil {
		return fail(err)
	}
	q.PushJobStdout(j.ID, "keyout: wrote "+outPath)
	q.CompleteJob(j.ID)
	return nil
}
