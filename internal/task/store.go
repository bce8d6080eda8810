package task

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a task ID is unknown to the store.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a lifecycle transition is
	// attempted from the wrong state. The store mutates nothing in that case.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the in-memory task map shared by the API handlers and the
// worker. All lifecycle transitions go through it so the state-machine
// invariants hold under concurrent access. Records live for the lifetime
// of the process; a restart starts empty.
type Store struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func NewStore() *Store {
	return &Store{tasks: make(map[string]*Task)}
}

// Create registers a new pending task. The ID must not already exist.
func (s *Store) Create(id string, req Request) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; ok {
		return Task{}, fmt.Errorf("create task %s: id already exists", id)
	}
	t := &Task{
		ID:        id,
		Status:    StatusPending,
		Request:   req,
		CreatedAt: time.Now(),
	}
	s.tasks[id] = t
	return *t, nil
}

// Get returns a snapshot copy of the task.
func (s *Store) Get(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return *t, nil
}

// Delete removes a task record. Only used to roll back a submission that
// failed admission; a task that ever reached the queue is retained forever.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

// MarkProcessing transitions pending -> processing and records started_at.
func (s *Store) MarkProcessing(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	if t.Status != StatusPending {
		return Task{}, fmt.Errorf("task %s: %s -> processing: %w", id, t.Status, ErrInvalidTransition)
	}
	now := time.Now()
	t.Status = StatusProcessing
	t.StartedAt = &now
	return *t, nil
}

// Complete transitions processing -> completed and records the artifact
// reference and completed_at.
func (s *Store) Complete(id string, resultRef string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	if t.Status != StatusProcessing {
		return Task{}, fmt.Errorf("task %s: %s -> completed: %w", id, t.Status, ErrInvalidTransition)
	}
	now := time.Now()
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.ResultRef = resultRef
	return *t, nil
}

// Fail transitions processing -> failed and records the error message and
// completed_at.
func (s *Store) Fail(id string, message string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	if t.Status != StatusProcessing {
		return Task{}, fmt.Errorf("task %s: %s -> failed: %w", id, t.Status, ErrInvalidTransition)
	}
	now := time.Now()
	t.Status = StatusFailed
	t.CompletedAt = &now
	t.ErrorMessage = message
	return *t, nil
}

// Counts scans the store and tallies tasks per status.
func (s *Store) Counts() (pending, processing, completed, failed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		switch t.Status {
		case StatusPending:
			pending++
		case StatusProcessing:
			processing++
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	return pending, processing, completed, failed, len(s.tasks)
}
