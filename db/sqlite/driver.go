package sqlite

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open creates a GORM *DB backed by SQLite. The parent directory of a file
// path is created if absent; URIs ("file:...") are passed through untouched.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); path != "" && !isURI(path) && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
}

func isURI(path string) bool {
	return len(path) >= 5 && path[:5] == "file:" || path == ":memory:"
}
