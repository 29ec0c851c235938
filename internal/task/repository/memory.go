package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tasklane/internal/task/domain"
)

type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]domain.Task)}
}

var _ domain.Repository = (*MemoryStore)(nil)

func (s *MemoryStore) GetTaskByID(_ context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return &task, nil
}

func (s *MemoryStore) Save(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return domain.ErrTaskExists
	}
	s.tasks[task.ID] = *task
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID snowflake.ID) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]domain.Task, 0)
	for _, task := range s.tasks {
		if task.OwnerID == ownerID {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}
