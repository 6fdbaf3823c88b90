package tasks

import (
	"errors"
	"strings"
	"sync"

	"github.com/d3ud3u-ntp2/spherize/appconfig"
	"github.com/d3ud3u-ntp2/spherize/imageio"
	"github.com/d3ud3u-ntp2/spherize/jobqueue"
)

// invertTask inverts the input image's colors, preserving alpha, and
// writes the result to out= or the output directory.
func invertTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	args := parseArgs(j.Arguments)

	fail := func(err error) error {
		q.PushJobStdout(j.ID, "invert: "+err.Error())
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

	outPath := argString(args, "out", "")
	if outPath == "" {
		outPath = imageio.OutputName(p, outputDir(appconfig.Get().OutputPath), "inverted", "")
	}
	quality, err := argInt(args, "quality", appconfig.Get().JPEGQuality)
	if err != nil {
		return fail(err)
	}
	if err := imageio.Save(outPath, img.Inverted(), quality); err != nil {
		return fail(err)
	}
	q.PushJobStdout(j.ID, "invert: wrote "+outPath)
	q.CompleteJob(j.ID)
	return nil
}
