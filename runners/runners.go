package runners

import (
	"context"
	"sync"
	"time"

	"github.com/d3ud3u-ntp2/spherize/jobqueue"
	"github.com/d3ud3u-ntp2/spherize/tasks"
)

// Runners manages a pool of concurrent job runners.
type Runners struct {
	queue   *jobqueue.Queue
	mu      sync.Mutex
	running int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new Runners instance.
func New(queue *jobqueue.Queue) *Runners {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runners{
		queue:  queue,
		ctx:    ctx,
		cancel: cancel,
	}

	// Start a goroutine to listen to the signal channel.
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.ctx.Done():
				// Shutdown requested
				return
			case <-r.queue.Signal:
				// When a signal is received, attempt to pick up a new job.
				r.CheckForJobs()
			}
		}
	}()

	return r
}

// Shutdown stops the runners from accepting new jobs and waits for running jobs to complete.
func (r *Runners) Shutdown() {
	// Cancel the context to stop the signal listener
	r.cancel()
	// Wait for the signal listener goroutine to finish
	r.wg.Wait()
}

// CheckForJobs attempts to claim and run a new job if the runners are not at capacity.
// This can be called externally or triggered by signals.
func (r *Runners) CheckForJobs() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tryFetchJobAndRun()
}

// Drain claims and runs jobs until every job in the queue has reached a
// terminal state, then returns. Pending jobs whose dependencies failed
// or were cancelled are cancelled rather than left stuck. This is the
// one-shot CLI mode; the signal listener keeps working alongside it.
func (r *Runners) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		r.CheckForJobs()
		r.cancelDoomedJobs()
		if r.idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.queue.Signal:
		case <-ticker.C:
		}
	}
}

// idle reports whether nothing is running and nothing is left to claim.
func (r *Runners) idle() bool {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if running > 0 {
		return false
	}
	for _, j := range r.queue.GetJobs() {
		if j.State == jobqueue.StatePending || j.State == jobqueue.StateInProgress {
			return false
		}
	}
	return true
}

// cancelDoomedJobs cancels pending jobs that wait on a dependency which
// can no longer complete.
func (r *Runners) cancelDoomedJobs() {
	for _, j := range r.queue.GetJobs() {
		if j.State != jobqueue.StatePending {
			continue
		}
		for _, dep := range j.Dependencies {
			d := r.queue.GetJob(dep)
			if d == nil || d.State == jobqueue.StateError || d.State == jobqueue.StateCancelled {
				_ = r.queue.CancelJob(j.ID)
				break
			}
		}
	}
}

// runJob starts a single job in a separate goroutine. Once it completes,
// we decrement the running count and attempt to fetch the next job.
func (r *Runners) runJob(j *jobqueue.Job) {
	r.running++
	go func() {
		defer func() {
			r.mu.Lock()
			r.running--
			// After finishing this job, try fetching another one
			r.tryFetchJobAndRun()
			r.mu.Unlock()
		}()

		tasksMap := tasks.GetTasks()
		if task, exists := tasksMap[j.Op]; exists {
			// Ensure job state is finalized even if task forgets
			if err := task.Fn(j, r.queue, &r.mu); err != nil {
				// If context is canceled, prefer Cancelled state
				select {
				case <-j.Ctx.Done():
					_ = r.queue.CancelJob(j.ID)
				default:
					_ = r.queue.ErrorJob(j.ID)
				}
			}
		} else {
			// If the task is not found, we should mark the job as failed.
			r.queue.PushJobStdout(j.ID, "Task not found: "+j.Op)
			r.queue.ErrorJob(j.ID)
			return
		}
	}()
}

// tryFetchJobAndRun tries to fetch a new job if capacity allows.
func (r *Runners) tryFetchJobAndRun() {
	job, err := r.queue.ClaimJob()
	if err != nil || job == nil {
		// No job available or error encountered.
		return
	}

	r.runJob(job)
}
