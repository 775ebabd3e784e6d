// Package testutil provides shared test databases and fixtures for backend tests.
package testutil

import (
	"testing"
	"time"

	"community/internal/database"
	"community/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database private to t.
//
// The pool is pinned to one connection because every new SQLite in-memory
// connection sees an empty database. Code under test must therefore not
// query outside an open transaction until it finishes.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// Date returns a UTC timestamp on the given day at noon.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}

// MustCreate inserts value or fails the test.
func MustCreate(t testing.TB, db *gorm.DB, value interface{}) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("create %T: %v", value, err)
	}
}

// WithdrawnMember builds a member that withdrew at deletedAt.
func WithdrawnMember(email, nickname string, deletedAt time.Time) *models.Member {
	m := &models.Member{
		Email:            email,
		Nickname:         nickname,
		PasswordHash:     "x",
		OriginalEmail:    email,
		OriginalNickname: nickname,
	}
	m.SetState(models.DeletedState(deletedAt))
	return m
}
