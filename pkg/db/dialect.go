package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/smallbiznis/tasklane/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const defaultSQLiteFile = "tasklane.db"

// Dialect picks the gorm driver for cfg.DBType. All connections run in UTC.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "postgres":
		return postgres.Open(postgresDSN(cfg)), nil
	case "mysql":
		return mysql.Open(mysqlDSN(cfg)), nil
	case "sqlite":
		return sqlite.Open(sqliteDSN(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}

func postgresDSN(cfg config.Config) string {
	sslMode := cfg.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, sslMode)
}

func mysqlDSN(cfg config.Config) string {
	params := url.Values{}
	params.Set("charset", "utf8mb4")
	params.Set("parseTime", "True")
	params.Set("loc", "UTC")
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName, params.Encode())
}

func sqliteDSN(cfg config.Config) string {
	name := strings.TrimSpace(cfg.DBName)
	if name == "" {
		name = defaultSQLiteFile
	}
	sep := "?"
	if strings.Contains(name, "?") {
		sep = "&"
	}
	return name + sep + "_foreign_keys=on"
}
