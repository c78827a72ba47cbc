package server

import (
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SessionRecord struct {
	ID            uint `gorm:"primaryKey"`
	Session       uint32
	Remote        string
	BytesSent     int64
	BytesReceived int64
	StartedAt     time.Time
	EndedAt       time.Time
}

// TransferRecord describes one accepted PUT. Incomplete transfers are kept
// as well, their partial file stays in the storage root.
type TransferRecord struct {
	ID        uint `gorm:"primaryKey"`
	Session   uint32
	Remote    string
	Name      string `gorm:"index"`
	Size      int64
	Received  int64
	Digest    string
	Complete  bool
	CreatedAt time.Time
}

// Journal persists sessions and transfers in a SQLite database. A nil
// *Journal records nothing.
type Journal struct {
	db *gorm.DB
}

func OpenJournal(path string) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Handlers write concurrently; SQLite wants a single writer.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&SessionRecord{}, &TransferRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

func (j *Journal) RecordSession(record *SessionRecord) error {
	if j == nil {
		return nil
	}
	return j.db.Create(record).Error
}

func (j *Journal) RecordTransfer(record *TransferRecord) error {
	if j == nil {
		return nil
	}
	return j.db.Create(record).Error
}

func (j *Journal) Sessions() ([]SessionRecord, error) {
	var records []SessionRecord
	if j == nil {
		return records, nil
	}
	err := j.db.Order("id").Find(&records).Error
	return records, err
}

func (j *Journal) Transfers() ([]TransferRecord, error) {
	var records []TransferRecord
	if j == nil {
		return records, nil
	}
	err := j.db.Order("id").Find(&records).Error
	return records, err
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
