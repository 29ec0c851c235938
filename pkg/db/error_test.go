package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/tasklane/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"pgconn unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pgconn other", &pgconn.PgError{Code: "23503"}, false},
		{"postgres", errors.New(`ERROR: duplicate key value violates unique constraint "ux_organizations_slug"`), true},
		{"mysql", errors.New("Error 1062: Duplicate entry"), true},
		{"sqlite", errors.New("UNIQUE constraint failed: organizations.slug"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}

func TestNewTestIsolated(t *testing.T) {
	type row struct {
		ID int64 `gorm:"primaryKey"`
	}

	first, err := NewTest()
	assert.NoError(t, err)
	second, err := NewTest()
	assert.NoError(t, err)

	assert.NoError(t, first.AutoMigrate(&row{}))
	assert.NoError(t, first.Create(&row{ID: 1}).Error)

	assert.False(t, second.Migrator().HasTable(&row{}))
}

func TestDialect(t *testing.T) {
	d, err := Dialect(config.Config{DBType: "postgres", DBHost: "db", DBPort: "5432", DBUser: "app", DBName: "tasklane"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = Dialect(config.Config{DBType: "sqlite"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	_, err = Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestDSNs(t *testing.T) {
	cfg := config.Config{DBHost: "db", DBPort: "3306", DBUser: "app", DBPassword: "pw", DBName: "tasklane"}
	assert.Equal(t, "app:pw@tcp(db:3306)/tasklane?charset=utf8mb4&loc=UTC&parseTime=True", mysqlDSN(cfg))
	assert.Contains(t, postgresDSN(cfg), "sslmode=disable")
	assert.Equal(t, "tasklane.db?_foreign_keys=on", sqliteDSN(config.Config{}))
	assert.Equal(t, "file::memory:?cache=shared&_foreign_keys=on", sqliteDSN(config.Config{DBName: "file::memory:?cache=shared"}))
}
