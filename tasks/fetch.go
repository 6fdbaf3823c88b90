package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/d3ud3u-ntp2/spherize/appconfig"
	"github.com/d3ud3u-ntp2/spherize/jobqueue"
	"github.com/d3ud3u-ntp2/spherize/storage"
)

// fetchTask downloads an s3:// object into the local cache so later
// jobs in the workflow can read it as a plain file.
func fetchTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	fail := func(err error) error {
		q.PushJobStdout(j.ID, "fetch: "+err.Error())
		_ = q.ErrorJob(j.ID)
		return err
	}

	uri := strings.TrimSpace(j.Input)
	if !storage.IsURI(uri) {
		return fail(fmt.Errorf("fetch needs an s3:// input, got %q", uri))
	}

	local := storage.CachePath(uri)
	if _, err := os.Stat(local); err == nil {
		q.PushJobStdout(j.ID, "fetch: cached at "+local)
		q.CompleteJob(j.ID)
		return nil
	}

	client, err := storageClient(j.Ctx)
	if err != nil {
		return fail(err)
	}
	q.PushJobStdout(j.ID, "fetch: downloading "+uri)
	if err := client.Fetch(j.Ctx, uri, local); err != nil {
		select {
		case <-j.Ctx.Done():
			q.PushJobStdout(j.ID, "fetch: task canceled")
			q.CancelJob(j.ID)
			return j.Ctx.Err()
		default:
		}
		return fail(err)
	}
	q.PushJobStdout(j.ID, "fetch: saved to "+local)
	q.CompleteJob(j.ID)
	return nil
}

// storageOptions maps the s3 section of the config onto storage
// client options.
func storageOptions() storage.Options {
	cfg := appconfig.Get()
	return storage.Options{
		Endpoint:     cfg.S3.Endpoint,
		Region:       cfg.S3.Region,
		Bucket:       cfg.S3.Bucket,
		AccessKey:    cfg.S3.AccessKey,
		SecretKey:    cfg.S3.SecretKey,
		UsePathStyle: cfg.S3.UsePathStyle,
	}
}

func storageClient(ctx context.Context) (*storage.Client, error) {
	return storage.New(ctx, storageOptions())
}

// resolveInput maps s3:// inputs to their cached local file. A fetch
// job must have run first; plain paths pass through untouched.
func resolveInput(p string) (string, error) {
	if !storage.IsURI(p) {
		return p, nil
	}
	local := storage.CachePath(p)
	if _, err := os.Stat(local); err != nil {
		return "", errors.New("remote input not fetched: " + p)
	}
	return local, nil
}
