package tasks

import (
	"context"
	"errors"
	"strings"
)

var ErrStoreNotFound = errors.New("task not found in archive")

// Store archives terminal task snapshots. It is a write-mostly audit sink:
// the live registry is authoritative and is never rebuilt from it.
type Store interface {
	SaveTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, taskID string) (Task, error)
	ListTasks(ctx context.Context, limit int) ([]Task, error)
	Close() error
}

// NewStore returns a Postgres-backed archive when a database URL is set,
// and nil (archiving disabled) otherwise.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
