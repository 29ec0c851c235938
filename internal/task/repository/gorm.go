package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tasklane/internal/task/domain"
	"github.com/smallbiznis/tasklane/pkg/db"
	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{db: conn}
}

func (r *GormStore) WithTx(tx *gorm.DB) *GormStore {
	return &GormStore{db: tx}
}

var _ domain.Repository = (*GormStore)(nil)

func (r *GormStore) GetTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (r *GormStore) Save(ctx context.Context, task *domain.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrTaskExists
		}
		return err
	}
	return nil
}

func (r *GormStore) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *GormStore) ListByOwner(ctx context.Context, ownerID snowflake.ID) ([]domain.Task, error) {
	var tasks []domain.Task
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC, id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}
