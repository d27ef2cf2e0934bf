package history

import (
	"context"
	"fmt"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultRecentLimit = 20

// callRecord is the persisted form of ports.CallRecord.
type callRecord struct {
	ID               string    `gorm:"type:varchar(36);primaryKey"`
	Channel          string    `gorm:"type:varchar(64);not null;index"`
	LocalUID         string    `gorm:"type:varchar(32)"`
	DisplayName      string    `gorm:"type:varchar(100)"`
	StartedAt        time.Time `gorm:"not null"`
	EndedAt          time.Time `gorm:"not null;index"`
	DurationSeconds  int
	EndReason        string `gorm:"type:varchar(32)"`
	PeakParticipants int
	ErrorCount       int
}

func (callRecord) TableName() string { return "call_records" }

func (r *callRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

func fromPort(rec *ports.CallRecord) *callRecord {
	return &callRecord{
		ID:               rec.ID,
		Channel:          rec.Channel,
		LocalUID:         rec.LocalUID,
		DisplayName:      rec.DisplayName,
		StartedAt:        rec.StartedAt.UTC(),
		EndedAt:          rec.EndedAt.UTC(),
		DurationSeconds:  rec.DurationSeconds,
		EndReason:        rec.EndReason,
		PeakParticipants: rec.PeakParticipants,
		ErrorCount:       rec.ErrorCount,
	}
}

func (r *callRecord) toPort() *ports.CallRecord {
	return &ports.CallRecord{
		ID:               r.ID,
		Channel:          r.Channel,
		LocalUID:         r.LocalUID,
		DisplayName:      r.DisplayName,
		StartedAt:        r.StartedAt,
		EndedAt:          r.EndedAt,
		DurationSeconds:  r.DurationSeconds,
		EndReason:        r.EndReason,
		PeakParticipants: r.PeakParticipants,
		ErrorCount:       r.ErrorCount,
	}
}

// Open opens (creating if needed) the sqlite history database at path.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.AutoMigrate(&callRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return db, nil
}

// Repository stores finished calls with gorm.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Save inserts rec, assigning an id when it has none.
func (r *Repository) Save(ctx context.Context, rec *ports.CallRecord) error {
	row := fromPort(rec)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to save call record: %w", err)
	}
	rec.ID = row.ID
	return nil
}

// Recent returns the most recently ended calls, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]*ports.CallRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	var rows []callRecord
	if err := r.db.WithContext(ctx).Order("ended_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list call records: %w", err)
	}
	return toPorts(rows), nil
}

// ByChannel returns every call on channel, newest first.
func (r *Repository) ByChannel(ctx context.Context, channel string) ([]*ports.CallRecord, error) {
	var rows []callRecord
	err := r.db.WithContext(ctx).
		Where("channel = ?", channel).
		Order("started_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list call records for %s: %w", channel, err)
	}
	return toPorts(rows), nil
}

func toPorts(rows []callRecord) []*ports.CallRecord {
	out := make([]*ports.CallRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toPort())
	}
	return out
}

var _ ports.CallHistoryRepository = (*Repository)(nil)
