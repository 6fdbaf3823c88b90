// Package tasks holds the runnable operations the job runners execute:
// the render pipeline, its helper transforms, and the fetch/publish
// plumbing around it.
package tasks

import (
	"sync"

	"github.com/d3ud3u-ntp2/spherize/jobqueue"
)

// Task represents a runnable unit bound to the jobqueue.
type Task struct {
	ID   string                                                        `json:"id"`
	Name string                                                        `json:"name"`
	Fn   func(j *jobqueue.Job, q *jobqueue.Queue, r *sync.Mutex) error `json:"-"`
}

type TaskMap map[string]Task

var tasks = make(TaskMap)

func init() {
	// Register built-in tasks
	RegisterTask("render", "Spherize Render", renderTask)
	RegisterTask("invert", "Invert Colors", invertTask)
	RegisterTask("keyout", "Key Out Card", keyoutTask)
	RegisterTask("detect", "Detect Subject Box", detectTask)
	RegisterTask("unpack", "Unpack Kit", unpackTask)
	RegisterTask("fetch", "Fetch Remote Input", fetchTask)
	RegisterTask("publish", "Publish Output", publishTask)
	RegisterTask("hook", "Run Hook Command", hookTask)
	RegisterTask("wait", "Wait", waitFn)
}

func RegisterTask(id, name string, fn func(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error) {
	tasks[id] = Task{
		ID:   id,
		Name: name,
		Fn:   fn,
	}
}

func GetTasks() TaskMap {
	return tasks
}
