package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	// GetTaskByID returns ErrTaskNotFound when no task has the id.
	GetTaskByID(ctx context.Context, id string) (*Task, error)
	// Save inserts task and returns ErrTaskExists when the id is in use.
	Save(ctx context.Context, task *Task) error
	Delete(ctx context.Context, id string) error
	// ListByOwner returns the owner's tasks, oldest first.
	ListByOwner(ctx context.Context, ownerID snowflake.ID) ([]Task, error)
}
