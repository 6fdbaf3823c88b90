package tasks

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/d3ud3u-ntp2/spherize/downloads"
	"github.com/d3ud3u-ntp2/spherize/jobqueue"
	"github.com/d3ud3u-ntp2/spherize/kits"
)

// unpackTask fetches and extracts a kit so a later render can open it
// straight from the cache.
func unpackTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	fail := func(err error) error {
		q.PushJobStdout(j.ID, "unpack: "+err.Error())
		_ = q.ErrorJob(j.ID)
		return err
	}

	source := strings.TrimSpace(j.Input)
	if source == "" {
		return fail(errors.New("needs a kit directory, archive, or URL as input"))
	}

	k, err := kits.Open(j.Ctx, source, kitProgress(q, j.ID))
	if err != nil {
		select {
		case <-j.Ctx.Done():
			q.PushJobStdout(j.ID, "unpack: task canceled")
			q.CancelJob(j.ID)
			return j.Ctx.Err()
		default:
		}
		return fail(err)
	}
	q.PushJobStdout(j.ID, fmt.Sprintf("unpack: kit ready at %s (%d layers)", k.Dir, len(k.Manifest.Layers)))
	q.CompleteJob(j.ID)
	return nil
}

// kitProgress adapts download progress into job stdout lines, deduped
// so the ledger does not fill up with identical messages.
func kitProgress(q *jobqueue.Queue, jobID string) downloads.ProgressCallback {
	var last string
	return func(p downloads.Progress) {
		if p.Message == "" || p.Message == last {
			return
		}
		last = p.Message
		q.PushJobStdout(jobID, "unpack: "+p.Message)
	}
}
