// Package session persists the "last run" record: the files and
// options from the most recent invocation, read back by `--last` and
// rewritten on every other invocation.
//
// Grounded on an internal/cache GORM+SQLite singleton style
// (gorm_db.go): a single *gorm.DB opened in WAL mode with a
// busy_timeout pragma, guarded by a package-level write mutex. A
// dual-pool read/write split is dropped here — a "last session"
// record is a single small row touched by one process at a time, so
// the extra connection pool buys nothing and is unjustified
// complexity for this domain (documented in the design ledger). SQL
// logging is gated on commonsLogger.IsLevelEnabled(3), the same
// verbosity check a NewDB constructor would use to decide whether
// GORM's query logger runs.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	commonsLogger "github.com/flanksource/commons/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Record is the persisted shape of a single run: the resolved file
// list and the options passed to Save, serialized as JSON
// into a single TEXT column so the schema never needs migrating when
// the option set grows.
type Record struct {
	ID          uint      `gorm:"primarykey"`
	RanAt       time.Time `gorm:"autoUpdateTime"`
	Files       string    // JSON-encoded []string
	OptionsJSON string    // JSON-encoded map[string]any
}

var (
	instance *gorm.DB
	once     sync.Once
	openErr  error
	writeMu  sync.Mutex
)

// EnvDisable is the environment variable that suppresses reading and
// writing the last-session record entirely.
const EnvDisable = "GROKTEST_NO_SESSION"

func dbPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("session: home directory: %w", err)
	}
	dir := filepath.Join(home, ".cache", "groktest")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("session: cache directory: %w", err)
	}
	return filepath.Join(dir, "session.db"), nil
}

func open() (*gorm.DB, error) {
	once.Do(func() {
		path, err := dbPath()
		if err != nil {
			openErr = err
			return
		}
		logMode := gormlogger.Silent
		if commonsLogger.IsLevelEnabled(3) {
			logMode = gormlogger.Info
		}
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: gormlogger.Default.LogMode(logMode),
		})
		if err != nil {
			openErr = fmt.Errorf("session: open %s: %w", path, err)
			return
		}
		sqlDB, err := db.DB()
		if err != nil {
			openErr = fmt.Errorf("session: underlying sql.DB: %w", err)
			return
		}
		sqlDB.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
		} {
			if _, err := sqlDB.Exec(pragma); err != nil {
				openErr = fmt.Errorf("session: %s: %w", pragma, err)
				return
			}
		}
		if err := db.AutoMigrate(&Record{}); err != nil {
			openErr = fmt.Errorf("session: migrate: %w", err)
			return
		}
		instance = db
	})
	return instance, openErr
}

// Save writes the most recent run's files and options as the new last
// session, replacing any prior record. A no-op when EnvDisable is set.
func Save(files []string, options map[string]any) error {
	if os.Getenv(EnvDisable) != "" {
		return nil
	}
	db, err := open()
	if err != nil {
		return err
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("session: encode files: %w", err)
	}
	optsJSON, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("session: encode options: %w", err)
	}

	writeMu.Lock()
	defer writeMu.Unlock()

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("1 = 1").Delete(&Record{}).Error; err != nil {
			return fmt.Errorf("session: clear previous record: %w", err)
		}
		rec := Record{Files: string(filesJSON), OptionsJSON: string(optsJSON)}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("session: save record: %w", err)
		}
		return nil
	})
}

// Load returns the most recently saved files and options, or
// (nil, nil, nil) if nothing has been recorded yet or EnvDisable is set.
func Load() (files []string, options map[string]any, err error) {
	if os.Getenv(EnvDisable) != "" {
		return nil, nil, nil
	}
	db, err := open()
	if err != nil {
		return nil, nil, err
	}

	var rec Record
	result := db.Order("ran_at desc").First(&rec)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("session: load record: %w", result.Error)
	}

	if err := json.Unmarshal([]byte(rec.Files), &files); err != nil {
		return nil, nil, fmt.Errorf("session: decode files: %w", err)
	}
	if err := json.Unmarshal([]byte(rec.OptionsJSON), &options); err != nil {
		return nil, nil, fmt.Errorf("session: decode options: %w", err)
	}
	return files, options, nil
}

// Clear removes any persisted session record.
func Clear() error {
	db, err := open()
	if err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := db.Unscoped().Where("1 = 1").Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	commonsLogger.Debugf("session: cleared last-run record")
	return nil
}

// Reset drops the cached singleton connection. Tests use this to force
// a fresh database at a new path between cases.
func Reset() {
	writeMu.Lock()
	defer writeMu.Unlock()
	if instance != nil {
		if sqlDB, err := instance.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	instance = nil
	openErr = nil
	once = sync.Once{}
}
