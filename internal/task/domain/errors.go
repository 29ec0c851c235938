package domain

import "errors"

var (
	ErrTaskNotFound       = errors.New("task_not_found")
	ErrNotYourTask        = errors.New("not_your_task")
	ErrTaskExists         = errors.New("task_exists")
	ErrInvalidTaskID      = errors.New("invalid_task_id")
	ErrInvalidDescription = errors.New("invalid_description")
)
