package tasks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/d3ud3u-ntp2/spherize/appconfig"
	"github.com/d3ud3u-ntp2/spherize/jobqueue"
	"github.com/d3ud3u-ntp2/spherize/storage"
)

// publishTask uploads a finished render to the configured object
// store.
//
// Arguments:
//
//	to=<s3://bucket/key or key>  destination (default: basename in the
//	                             configured bucket)
func publishTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	args := parseArgs(j.Arguments)
	cfg := appconfig.Get()

	fail := func(err error) error {
		q.PushJobStdout(j.ID, "publish: "+err.Error())
		_ = q.ErrorJob(j.ID)
		return err
	}

	src := strings.TrimSpace(j.Input)
	if src == "" {
		return fail(errors.New("needs a file to publish as input"))
	}
	if _, err := os.Stat(src); err != nil {
		return fail(fmt.Errorf("publish input missing: %w", err))
	}

	dest := argString(args, "to", "")
	if dest == "" {
		if cfg.S3.Bucket == "" {
			return fail(errors.New("publish needs to= or a configured s3 bucket"))
		}
		dest = filepath.Base(src)
	}

	client, err := storageClient(j.Ctx)
	if err != nil {
		return fail(err)
	}
	if err := client.Put(j.Ctx, src, dest, ""); err != nil {
		select {
		case <-j.Ctx.Done():
			q.PushJobStdout(j.ID, "publish: task canceled")
			q.CancelJob(j.ID)
			return j.Ctx.Err()
		default:
		}
		return fail(err)
	}

	uri := dest
	if !storage.IsURI(uri) {
		uri = "s3://" + cfg.S3.Bucket + "/" + strings.TrimPrefix(dest, "/")
	}
	q.PushJobStdout(j.ID, "publish: uploaded "+uri)
	if u, err := storage.PublicURL(storageOptions(), uri); err == nil {
		q.PushJobStdout(j.ID, "publish: available at "+u)
	}
	q.CompleteJob(j.ID)
	return nil
}
