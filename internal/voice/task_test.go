package voice

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for completion")
	}
}

func TestTaskRefusesSecondStartWhileRunning(t *testing.T) {
	release := make(chan struct{})
	var runs int
	var mu sync.Mutex
	task := NewTask("blocker", func() error {
		mu.Lock()
		runs++
		mu.Unlock()
		<-release
		return nil
	})

	if !task.Start() {
		t.Fatalf("Start() = false, want true")
	}
	if task.Start() {
		t.Fatalf("second Start() = true, want false while running")
	}
	if !task.Running() {
		t.Fatalf("Running() = false, want true")
	}
	close(release)
	waitDone(t, task.Done())

	if task.Running() {
		t.Fatalf("Running() = true after completion")
	}
	if err := task.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}

	if !task.Start() {
		t.Fatalf("Start() after completion = false, want true")
	}
	waitDone(t, task.Done())
	mu.Lock()
	defer mu.Unlock()
	if runs != 2 {
		t.Fatalf("runs = %d, want 2", runs)
	}
}

func TestTaskRecoversPanic(t *testing.T) {
	task := NewTask("panicky", func() error { panic("boom") })
	task.Start()
	waitDone(t, task.Done())
	if err := task.Err(); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Err() = %v, want recovered panic", err)
	}
}

func TestTaskKeepsError(t *testing.T) {
	want := errors.New("tts down")
	task := NewTask("failing", func() error { return want })
	task.Start()
	waitDone(t, task.Done())
	if !errors.Is(task.Err(), want) {
		t.Fatalf("Err() = %v, want %v", task.Err(), want)
	}
}

func TestTasksRunInParallel(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	fn := func() error {
		started.Done()
		<-release
		return nil
	}
	a, b := NewTask("a", fn), NewTask("b", fn)
	a.Start()
	b.Start()

	both := make(chan struct{})
	go func() {
		started.Wait()
		close(both)
	}()
	waitDone(t, both)
	close(release)
	waitDone(t, a.Done())
	waitDone(t, b.Done())
}
