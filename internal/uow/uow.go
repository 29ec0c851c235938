// Package uow runs use cases against a consistent set of repositories.
package uow

import (
	"context"
	"errors"
	"sync"

	"github.com/smallbiznis/tasklane/internal/config"
	taskdomain "github.com/smallbiznis/tasklane/internal/task/domain"
	taskrepository "github.com/smallbiznis/tasklane/internal/task/repository"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
	userrepository "github.com/smallbiznis/tasklane/internal/user/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("uow",
	fx.Provide(New),
)

// Repositories are bound to the unit of work they were handed out by and must
// not be used after Do returns.
type Repositories struct {
	UserQueries userdomain.Queries
	Users       userdomain.Repository
	Tasks       taskdomain.Repository
}

type UnitOfWork interface {
	// Do runs fn. Writes made by fn are committed when it returns nil and
	// discarded, where the store supports it, when it returns an error.
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type Params struct {
	fx.In

	Config config.Config
	DB     *gorm.DB `optional:"true"`
}

// New picks the implementation named by STORE_DRIVER.
func New(p Params) (UnitOfWork, error) {
	if p.Config.StoreDriver == config.StoreDriverMemory {
		return NewMemory(), nil
	}
	if p.DB == nil {
		return nil, errors.New("uow: gorm store driver requires a database")
	}
	return NewGorm(p.DB), nil
}

type gormUnitOfWork struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db}
}

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := userrepository.NewGormStore(tx)
		return fn(ctx, Repositories{
			UserQueries: users,
			Users:       users,
			Tasks:       taskrepository.NewGormStore(tx),
		})
	})
}

// MemoryUnitOfWork serializes units of work over in-process stores. It
// cannot roll back, and Do must not be called from inside fn.
type MemoryUnitOfWork struct {
	mu    sync.Mutex
	users *userrepository.MemoryStore
	tasks *taskrepository.MemoryStore
}

func NewMemory() *MemoryUnitOfWork {
	return &MemoryUnitOfWork{
		users: userrepository.NewMemoryStore(),
		tasks: taskrepository.NewMemoryStore(),
	}
}

func (u *MemoryUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	return fn(ctx, Repositories{
		UserQueries: u.users,
		Users:       u.users,
		Tasks:       u.tasks,
	})
}
