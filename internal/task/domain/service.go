package domain

import (
	"context"

	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
)

type Service interface {
	AddTask(ctx context.Context, user userdomain.CurrentUser, req AddTaskRequest) (*Task, error)
	DeleteTask(ctx context.Context, user userdomain.CurrentUser, taskID string) error
	ListMyTasks(ctx context.Context, user userdomain.CurrentUser) ([]Task, error)
}

type AddTaskRequest struct {
	// ID is optional; a UUID is generated when empty.
	ID          string
	Description string
}
