package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/smallbiznis/tasklane/internal/clock"
	taskdomain "github.com/smallbiznis/tasklane/internal/task/domain"
	"github.com/smallbiznis/tasklane/internal/uow"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxTaskIDLength = 64

type Params struct {
	fx.In

	Log   *zap.Logger
	UOW   uow.UnitOfWork
	Clock clock.Clock
}

type Service struct {
	log   *zap.Logger
	uow   uow.UnitOfWork
	clock clock.Clock
}

func New(p Params) taskdomain.Service {
	return &Service{
		log:   p.Log.Named("task.service"),
		uow:   p.UOW,
		clock: p.Clock,
	}
}

func (s *Service) AddTask(ctx context.Context, user userdomain.CurrentUser, req taskdomain.AddTaskRequest) (*taskdomain.Task, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > maxTaskIDLength {
		return nil, taskdomain.ErrInvalidTaskID
	}

	description := strings.TrimSpace(req.Description)
	if description == "" || utf8.RuneCountInString(description) > taskdomain.MaxDescriptionLength {
		return nil, taskdomain.ErrInvalidDescription
	}

	task := &taskdomain.Task{
		ID:          id,
		OwnerID:     user.ID,
		Description: description,
		CreatedAt:   s.clock.Now(),
	}
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		return repos.Tasks.Save(ctx, task)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Service) DeleteTask(ctx context.Context, user userdomain.CurrentUser, taskID string) error {
	return s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		task, err := repos.Tasks.GetTaskByID(ctx, taskID)
		if err != nil {
			return err
		}
		if task.OwnerID != user.ID {
			s.log.Info("refused to delete task of another user",
				zap.String("task_id", taskID),
				zap.String("actor_id", user.ID.String()),
			)
			return taskdomain.ErrNotYourTask
		}
		return repos.Tasks.Delete(ctx, taskID)
	})
}

func (s *Service) ListMyTasks(ctx context.Context, user userdomain.CurrentUser) ([]taskdomain.Task, error) {
	var tasks []taskdomain.Task
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		tasks, err = repos.Tasks.ListByOwner(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}
