// Package task runs detached background work: sync rounds, catalog refreshes
// and definition enrichment all execute off the caller's goroutine through a
// small worker pool. Failures surface on an error channel instead of a
// callback, so the owner decides how loudly each task type fails.
package task

import (
	"context"

	"github.com/google/uuid"
)

// Task is one unit of background work.
type Task interface {
	// ID identifies the task instance in logs and errors.
	ID() uuid.UUID

	// Type names the kind of work, e.g. "sync_round".
	Type() string

	// Execute runs the task. The context is cancelled when the runner stops.
	Execute(ctx context.Context) error
}

type funcTask struct {
	id       uuid.UUID
	taskType string
	fn       func(ctx context.Context) error
}

// NewFunc wraps a plain function as a Task.
func NewFunc(taskType string, fn func(ctx context.Context) error) Task {
	return &funcTask{id: uuid.New(), taskType: taskType, fn: fn}
}

func (t *funcTask) ID() uuid.UUID                     { return t.id }
func (t *funcTask) Type() string                      { return t.taskType }
func (t *funcTask) Execute(ctx context.Context) error { return t.fn(ctx) }
