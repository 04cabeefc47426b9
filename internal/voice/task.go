package voice

import (
	"fmt"
	"log"
	"sync"
)

// Task runs a function on its own goroutine. Errors and panics inside the
// function are logged and kept on the task; they never reach the caller.
type Task struct {
	name string
	fn   func() error

	mu      sync.Mutex
	running bool
	done    chan struct{}
	err     error
}

func NewTask(name string, fn func() error) *Task {
	return &Task{name: name, fn: fn, done: make(chan struct{})}
}

// Start launches the task. It returns false, and does nothing, while a
// previous run is still in progress.
func (t *Task) Start() bool {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		log.Printf("[task] %s is already running", t.name)
		return false
	}
	select {
	case <-t.done:
		t.done = make(chan struct{})
	default:
	}
	t.running = true
	t.err = nil
	done := t.done
	t.mu.Unlock()

	go t.run(done)
	return true
}

func (t *Task) run(done chan struct{}) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
			log.Printf("[task] %v", err)
		}
		t.mu.Lock()
		t.err = err
		t.running = false
		close(done)
		t.mu.Unlock()
	}()

	if err = t.fn(); err != nil {
		log.Printf("[task] %s: %v", t.name, err)
	}
}

// Done is closed when the current run finishes.
func (t *Task) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Err is the outcome of the last finished run.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Task) Name() string {
	return t.name
}
