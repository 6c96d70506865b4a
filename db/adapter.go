package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/friendhub/server/config"
	dbmysql "github.com/friendhub/server/db/mysql"
	dbpostgres "github.com/friendhub/server/db/postgres"
	dbsqlite "github.com/friendhub/server/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite   = "sqlite"
	ModeMySQL    = "mysql"
	ModePostgres = "postgres"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MaxOpen, cfg.MaxIdle, cfg.MaxLife)
	case ModePostgres:
		return dbpostgres.Open(cfg.PostgresDSN, cfg.MaxOpen, cfg.MaxIdle, cfg.MaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}

// IsUniqueViolation detects duplicate-key errors. Dialectors that support
// TranslateError report gorm.ErrDuplicatedKey; the message check covers the rest.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}

// ContainsExpr returns a case-sensitive substring predicate for column,
// expecting one bind argument (the needle).
func ContainsExpr(db *gorm.DB, column string) string {
	switch db.Dialector.Name() {
	case "postgres":
		return fmt.Sprintf("strpos(%s, ?) > 0", column)
	case "mysql":
		return fmt.Sprintf("INSTR(BINARY %s, ?) > 0", column)
	default:
		// sqlite's instr() compares bytes, unlike LIKE which folds ASCII case.
		return fmt.Sprintf("instr(%s, ?) > 0", column)
	}
}
