package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ProfileDBName is the profile database file inside the state directory
const ProfileDBName = "profile.sqlite"

// StoredToken is one credential slot in the profile database
type StoredToken struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// SQLiteStore persists credentials in a per-user SQLite profile database,
// shared by every process using the same state directory.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLiteStore opens (and migrates) the profile database in stateDir
func OpenSQLiteStore(stateDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	dsn := filepath.Join(stateDir, ProfileDBName) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open profile database: %w", err)
	}

	if err := db.AutoMigrate(&StoredToken{}); err != nil {
		return nil, fmt.Errorf("failed to migrate profile database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveToken upserts the credential for scope; the last write wins
func (s *SQLiteStore) SaveToken(scope, token string) error {
	row := StoredToken{Key: getKeyringKey(scope), Value: token, UpdatedAt: time.Now()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken returns the credential for scope
func (s *SQLiteStore) LoadToken(scope string) (string, error) {
	var row StoredToken
	err := s.db.Where(&StoredToken{Key: getKeyringKey(scope)}).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return row.Value, nil
}

// DeleteToken removes the credential for scope. Deleting a missing entry is not an error.
func (s *SQLiteStore) DeleteToken(scope string) error {
	if err := s.db.Where(&StoredToken{Key: getKeyringKey(scope)}).Delete(&StoredToken{}).Error; err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Close closes the underlying database handle
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
