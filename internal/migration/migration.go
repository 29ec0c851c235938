package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smallbiznis/tasklane/internal/event"
	taskdomain "github.com/smallbiznis/tasklane/internal/task/domain"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table the application owns, in dependency order.
func Models() []any {
	return []any{
		&userdomain.User{},
		&userdomain.Organization{},
		&userdomain.OrganizationMember{},
		&userdomain.OrganizationInvitation{},
		&taskdomain.Task{},
		&event.OrganizationEvent{},
	}
}

// Run brings the schema up to date. Postgres uses the versioned SQL
// migrations; other dialects fall back to AutoMigrate.
func Run(conn *gorm.DB, dbType string) error {
	if dbType != "postgres" {
		return conn.AutoMigrate(Models()...)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	src, err := newSource()
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.

	return nil
}

func newSource() (source.Driver, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	driver, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return driver, nil
}
