package jobqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState represents the current state of a job in the queue.
type JobState int

const (
	StatePending JobState = iota
	StateInProgress
	StateCompleted
	StateCancelled
	StateError
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateInProgress:
		return "InProgress"
	case StateCompleted:
		return "Completed"
	case StateCancelled:
		return "Cancelled"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// MarshalJSON serializes JobState as a lowercase string for JSON.
func (s JobState) MarshalJSON() ([]byte, error) {
	var str string
	switch s {
	case StatePending:
		str = "pending"
	case StateInProgress:
		str = "in_progress"
	case StateCompleted:
		str = "completed"
	case StateCancelled:
		str = "cancelled"
	case StateError:
		str = "error"
	default:
		str = "unknown"
	}
	return json.Marshal(str)
}

// UnmarshalJSON deserializes JobState from a string.
func (s *JobState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	switch str {
	case "pending":
		*s = StatePending
	case "in_progress":
		*s = StateInProgress
	case "completed":
		*s = StateCompleted
	case "cancelled":
		*s = StateCancelled
	case "error":
		*s = StateError
	default:
		*s = StatePending
	}
	return nil
}

// Job represents an individual operation in the queue.
type Job struct {
	ID           string             `json:"id"` // Unique identifier for the job
	Op           string             `json:"op"`
	Arguments    []string           `json:"arguments"`
	Input        string             `json:"input"`
	Stdout       []string           `json:"-"`
	Dependencies []string           `json:"dependencies"` // IDs of jobs that must complete before this one
	State        JobState           `json:"state"`
	Ctx          context.Context    `json:"-"`
	Cancel       context.CancelFunc `json:"-"`

	// Timestamps for various states
	CreatedAt   time.Time `json:"created_at"`
	ClaimedAt   time.Time `json:"claimed_at"`
	CompletedAt time.Time `json:"completed_at"`
	ErroredAt   time.Time `json:"errored_at"`
}

// Workflow is a tree of jobs; children complete before their parent runs.
type Workflow struct {
	Op        string `json:"op"`
	Arguments []string
	Input     string     `json:"input"`
	Children  []Workflow `json:"children"`
}

// Event describes a queue change delivered to the Notify observer.
type Event struct {
	Type string `json:"type"` // create, update, delete, stdout
	Job  Job    `json:"job"`
	Line string `json:"line,omitempty"`
}

// Queue is a thread-safe structure that manages Jobs with dependencies.
type Queue struct {
	mu            sync.Mutex
	Jobs          map[string]*Job
	JobOrder      []string // Keep track of the order in which jobs are added
	Signal        chan string
	Db            *sql.DB // Database connection for persistence
	OpLimits      map[string]int
	RunningCounts map[string]int

	// Notify, when set, observes queue changes. It is called with the
	// queue lock held and must not call back into the queue.
	Notify func(Event)
}

// NewQueue initializes and returns a new Queue.
func NewQueue() *Queue {
	return &Queue{
		Jobs:          make(map[string]*Job),
		Signal:        make(chan string, 100),
		OpLimits:      make(map[string]int),
		RunningCounts: make(map[string]int),
	}
}

// NewQueueWithDB initializes and returns a new Queue backed by the
// ledger database.
func NewQueueWithDB(db *sql.DB) *Queue {
	q := &Queue{
		Jobs:          make(map[string]*Job),
		Signal:        make(chan string, 100),
		Db:            db,
		OpLimits:      make(map[string]int),
		RunningCounts: make(map[string]int),
	}

	// Create the jobs table if it doesn't exist
	if err := q.createJobsTable(); err != nil {
		log.Printf("Failed to create jobs table: %v", err)
	}

	// Load existing jobs from database
	if err := q.loadJobsFromDB(); err != nil {
		log.Printf("Failed to load jobs from database: %v", err)
	}

	return q
}

// createJobsTable creates the jobs table if it doesn't exist
func (q *Queue) createJobsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		op TEXT NOT NULL,
		arguments TEXT, -- JSON array
		input TEXT,
		stdout TEXT, -- JSON array
		dependencies TEXT, -- JSON array
		state INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		claimed_at DATETIME,
		completed_at DATETIME,
		errored_at DATETIME,
		job_order_position INTEGER
	)`

	_, err := q.Db.Exec(query)
	return err
}

// saveJobToDB saves a single job to the database
func (q *Queue) saveJobToDB(job *Job) error {
	if q.Db == nil {
		return nil // No database connection
	}

	// Serialize arrays to JSON
	argumentsJSON, _ := json.Marshal(job.Arguments)
	stdoutJSON, _ := json.Marshal(job.Stdout)
	dependenciesJSON, _ := json.Marshal(job.Dependencies)

	// Find position in job order
	position := -1
	for i, id := range q.JobOrder {
		if id == job.ID {
			position = i
			break
		}
	}

	query := `
	INSERT OR REPLACE INTO jobs (
		id, op, arguments, input, stdout, dependencies, state,
		created_at, claimed_at, completed_at, errored_at, job_order_position
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.Db.Exec(query,
		job.ID,
		job.Op,
		string(argumentsJSON),
		job.Input,
		string(stdoutJSON),
		string(dependenciesJSON),
		int(job.State),
		job.CreatedAt,
		job.ClaimedAt,
		job.CompletedAt,
		job.ErroredAt,
		position,
	)

	return err
}

// loadJobsFromDB loads all jobs from the database
func (q *Queue) loadJobsFromDB() error {
	if q.Db == nil {
		return nil // No database connection
	}

	query := `
	SELECT id, op, arguments, input, stdout, dependencies, state,
		   created_at, claimed_at, completed_at, errored_at, job_order_position
	FROM jobs
	ORDER BY job_order_position`

	rows, err := q.Db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	var resumedJobs []string

	for rows.Next() {
		var job Job
		var argumentsJSON, stdoutJSON, dependenciesJSON string
		var state int
		var position int

		err := rows.Scan(
			&job.ID,
			&job.Op,
			&argumentsJSON,
			&job.Input,
			&stdoutJSON,
			&dependenciesJSON,
			&state,
			&job.CreatedAt,
			&job.ClaimedAt,
			&job.CompletedAt,
			&job.ErroredAt,
			&position,
		)
		if err != nil {
			log.Printf("Error scanning job row: %v", err)
			continue
		}

		// Deserialize JSON arrays
		if err := json.Unmarshal([]byte(argumentsJSON), &job.Arguments); err != nil {
			job.Arguments = []string{}
		}
		if err := json.Unmarshal([]byte(stdoutJSON), &job.Stdout); err != nil {
			job.Stdout = []string{}
		}
		if err := json.Unmarshal([]byte(dependenciesJSON), &job.Dependencies); err != nil {
			job.Dependencies = []string{}
		}

		job.State = JobState(state)

		// If job was in progress when the process died, reset it to
		// pending so it can be resumed
		if job.State == StateInProgress {
			job.State = StatePending
			job.ClaimedAt = time.Time{} // Reset claimed time
			resumedJobs = append(resumedJobs, job.ID)
		}

		// Recreate context and cancel function
		ctx, cancel := context.WithCancel(context.Background())
		job.Ctx = ctx
		job.Cancel = cancel

		q.Jobs[job.ID] = &job
		q.JobOrder = append(q.JobOrder, job.ID)
	}

	if len(resumedJobs) > 0 {
		log.Printf("Resumed %d jobs that were in progress: %v", len(resumedJobs), resumedJobs)
		// Signal that jobs are available
		for _, jobID := range resumedJobs {
			select {
			case q.Signal <- jobID:
			default:
				// Channel full, skip
			}
		}
	}

	return rows.Err()
}

// removeJobFromDB removes a job from the database
func (q *Queue) removeJobFromDB(jobID string) error {
	if q.Db == nil {
		return nil // No database connection
	}

	_, err := q.Db.Exec("DELETE FROM jobs WHERE id = ?", jobID)
	return err
}

// SaveAllJobsToDB saves all current jobs to the database
func (q *Queue) SaveAllJobsToDB() error {
	if q.Db == nil {
		return nil // No database connection
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.Jobs {
		if err := q.saveJobToDB(job); err != nil {
			log.Printf("Failed to save job %s to database: %v", job.ID, err)
		}
	}

	return nil
}

// AddJob adds a new job to the queue with the given dependencies and
// returns its ID. An empty id asks the queue to generate one.
func (q *Queue) AddJob(id string, op string, arguments []string, input string, dependencies []string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := q.Jobs[id]; exists {
		return "", errors.New("job with given ID already exists")
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:           id,
		Input:        input,
		Op:           op,
		Arguments:    arguments,
		Dependencies: dependencies,
		State:        StatePending,
		Ctx:          ctx,
		Cancel:       cancel,
		CreatedAt:    time.Now(),
	}
	q.Jobs[id] = job
	q.JobOrder = append(q.JobOrder, id)

	// Save to database
	if err := q.saveJobToDB(job); err != nil {
		log.Printf("Failed to save job to database: %v", err)
	}

	// Broadcast the new job to the Signal channel
	select {
	case q.Signal <- id:
	default:
		// Channel full, runners will find the job on their next claim
	}
	q.notifyLocked("create", job)

	return id, nil
}

// AddWorkflow recurses through the workflow and adds each job from the
// bottom up, wiring the children in as dependencies of their parent.
// Returns the ID of the root job.
func (q *Queue) AddWorkflow(w Workflow) (string, error) {
	dependencies := []string{}

	for _, child := range w.Children {
		id, err := q.AddWorkflow(child)
		if err != nil {
			return "", err
		}
		dependencies = append(dependencies, id)
	}
	return q.AddJob("", w.Op, w.Arguments, w.Input, dependencies)
}

// CopyJob clones an existing job back into the pending state and
// returns the new ID.
func (q *Queue) CopyJob(id string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.Jobs[id]
	if !exists {
		return "", errors.New("job not found")
	}

	newID := uuid.NewString()
	if _, exists := q.Jobs[newID]; exists {
		return "", errors.New("job with given ID already exists")
	}
	ctx, cancel := context.WithCancel(context.Background())

	newJob := *job
	newJob.ID = newID
	newJob.Stdout = []string{}
	newJob.State = StatePending
	newJob.CreatedAt = time.Now()
	newJob.ClaimedAt = time.Time{}
	newJob.CompletedAt = time.Time{}
	newJob.ErroredAt = time.Time{}
	newJob.Cancel = cancel
	newJob.Ctx = ctx

	q.Jobs[newID] = &newJob
	q.JobOrder = append(q.JobOrder, newID)

	// Save to database
	if err := q.saveJobToDB(&newJob); err != nil {
		log.Printf("Failed to save copied job to database: %v", err)
	}

	// Broadcast the new job to the Signal channel
	select {
	case q.Signal <- newID:
	default:
	}
	q.notifyLocked("create", &newJob)

	return newID, nil
}

// ClaimJob tries to find a pending job whose dependencies are all completed,
// in FIFO order. If successful, it returns the job and marks it as InProgress.
// If no suitable job is found, it returns nil and no error.
func (q *Queue) ClaimJob() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, jobID := range q.JobOrder {
		job := q.Jobs[jobID]
		if job.State == StatePending && q.canClaim(job) {
			// Check op limits
			limit := q.getOpLimitLocked(job.Op)
			if q.RunningCounts[job.Op] >= limit {
				continue
			}

			job.State = StateInProgress
			job.ClaimedAt = time.Now()
			q.RunningCounts[job.Op]++

			// Save to database
			if err := q.saveJobToDB(job); err != nil {
				log.Printf("Failed to save job state to database: %v", err)
			}

			q.notifyLocked("update", job)
			return job, nil
		}
	}

	// No claimable job found
	return nil, nil
}

// canClaim checks if a job's dependencies are all completed.
func (q *Queue) canClaim(job *Job) bool {
	for _, dep := range job.Dependencies {
		depJob, exists := q.Jobs[dep]
		if !exists {
			// If dependency doesn't exist, can't claim
			return false
		}
		if depJob.State != StateCompleted {
			// If any dependency is not completed, can't claim
			return false
		}
	}
	return true
}

// ErrorJob sets a job's state to error if it is currently in progress.
func (q *Queue) ErrorJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.Jobs[id]
	if !exists {
		return errors.New("job not found")
	}

	if job.State != StateInProgress {
		return errors.New("job is not in progress, cannot set error")
	}

	job.State = StateError
	job.ErroredAt = time.Now()
	q.RunningCounts[job.Op]--

	// Save to database
	if err := q.saveJobToDB(job); err != nil {
		log.Printf("Failed to save job error state to database: %v", err)
	}

	q.notifyLocked("update", job)
	return nil
}

// CancelJob sets a job's state to cancelled if it is currently pending
// or in progress.
func (q *Queue) CancelJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.Jobs[id]
	if !exists {
		return errors.New("job not found")
	}

	if job.State != StatePending && job.State != StateInProgress {
		return errors.New("job is not pending or in progress, cannot cancel")
	}
	job.Cancel()

	if job.State == StateInProgress {
		q.RunningCounts[job.Op]--
	}

	job.State = StateCancelled

	// Save to database
	if err := q.saveJobToDB(job); err != nil {
		log.Printf("Failed to save job cancellation to database: %v", err)
	}

	q.notifyLocked("update", job)
	return nil
}

// PushJobStdout appends a line to the job's stdout log.
func (q *Queue) PushJobStdout(id string, stdout string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.Jobs[id]
	if !exists {
		return errors.New("job not found")
	}

	job.Stdout = append(job.Stdout, stdout)

	// Save to database
	if err := q.saveJobToDB(job); err != nil {
		log.Printf("Failed to save job stdout to database: %v", err)
	}

	if q.Notify != nil {
		q.Notify(Event{Type: "stdout", Job: Job{ID: id}, Line: stdout})
	}
	return nil
}

// CompleteJob marks the specified job as completed if it is currently InProgress.
// Returns an error if the job does not exist, or if it's not in a valid state to be completed.
func (q *Queue) CompleteJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.Jobs[id]
	if !exists {
		return errors.New("job not found")
	}

	if job.State != StateInProgress {
		return errors.New("job is not in progress, cannot complete")
	}

	job.State = StateCompleted
	job.CompletedAt = time.Now()
	q.RunningCounts[job.Op]--

	// Save to database
	if err := q.saveJobToDB(job); err != nil {
		log.Printf("Failed to save job completion to database: %v", err)
	}

	q.notifyLocked("update", job)
	return nil
}

// GetJobs returns a slice of all jobs in the queue, most recent first.
func (q *Queue) GetJobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	length := len(q.Jobs)
	jobs := make([]Job, 0, length)
	for i := length - 1; i >= 0; i-- {
		jobs = append(jobs, *q.Jobs[q.JobOrder[i]])
	}
	return jobs
}

func (q *Queue) GetJob(id string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, exists := q.Jobs[id]
	if !exists {
		return nil
	}
	return job
}

func (q *Queue) RemoveJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, exists := q.Jobs[id]
	if !exists {
		return errors.New("job not found")
	}

	if job.State == StateInProgress {
		q.RunningCounts[job.Op]--
	}

	delete(q.Jobs, id)
	for i, jobId := range q.JobOrder {
		if jobId == id {
			q.JobOrder = append(q.JobOrder[:i], q.JobOrder[i+1:]...)
			break
		}
	}

	// Remove from database
	if err := q.removeJobFromDB(id); err != nil {
		log.Printf("Failed to remove job from database: %v", err)
	}

	q.notifyLocked("delete", &Job{ID: id})
	return nil
}

// ClearNonRunningJobs removes all jobs that are not currently running (StateInProgress).
// This includes jobs in states: Pending, Completed, Cancelled, and Error.
// Returns the number of jobs cleared and any error that occurred.
func (q *Queue) ClearNonRunningJobs() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var clearedCount int
	var jobsToRemove []string

	// Collect IDs of jobs to remove (not currently running)
	for _, jobID := range q.JobOrder {
		job := q.Jobs[jobID]
		if job.State != StateInProgress {
			jobsToRemove = append(jobsToRemove, jobID)
		}
	}

	// Remove the jobs
	for _, jobID := range jobsToRemove {
		delete(q.Jobs, jobID)

		// Remove from job order
		for i, id := range q.JobOrder {
			if id == jobID {
				q.JobOrder = append(q.JobOrder[:i], q.JobOrder[i+1:]...)
				break
			}
		}

		// Remove from database
		if err := q.removeJobFromDB(jobID); err != nil {
			log.Printf("Failed to remove job %s from database: %v", jobID, err)
		}

		q.notifyLocked("delete", &Job{ID: jobID})
		clearedCount++
	}

	return clearedCount, nil
}

// notifyLocked reports a queue change to the observer. The queue lock
// is held at every call site.
func (q *Queue) notifyLocked(updateType string, job *Job) {
	if q.Notify == nil {
		return
	}
	q.Notify(Event{Type: updateType, Job: *job})
}

// Helper methods

func (q *Queue) getOpLimitLocked(op string) int {
	if limit, ok := q.OpLimits[op]; ok {
		return limit
	}
	// Default limit for all ops
	return 1
}

func (q *Queue) SetOpLimit(op string, limit int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.OpLimits[op] = limit
}
