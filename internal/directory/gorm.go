package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"ragdesk/internal/util"
	"ragdesk/pkg/domain"
)

// SessionRecordModel is the persisted ownership row.
type SessionRecordModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"not null;index;uniqueIndex:idx_user_session,priority:1"`
	SessionID   string `gorm:"not null;uniqueIndex:idx_user_session,priority:2"`
	Kind        string `gorm:"not null"`
	SourceLabel string
	Snapshot    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"not null;index"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

// GormDirectory implements Directory on Postgres via GORM.
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory opens the database and runs auto-migration.
func NewGormDirectory(dsn string) (*GormDirectory, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&SessionRecordModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormDirectory{db: db}, nil
}

// Record upserts ownership and the cached snapshot.
func (d *GormDirectory) Record(ctx context.Context, userID string, sess domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return &Error{Op: "encode snapshot", Err: err}
	}
	now := time.Now().UTC()
	row := SessionRecordModel{
		ID:          util.NewID(),
		UserID:      userID,
		SessionID:   sess.ID,
		Kind:        string(sess.Kind),
		SourceLabel: sess.SourceLabel,
		Snapshot:    datatypes.JSON(raw),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"snapshot", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return &Error{Op: "record session", Err: err}
	}
	return nil
}

// List returns the user's session ids, oldest first.
func (d *GormDirectory) List(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := d.db.WithContext(ctx).
		Model(&SessionRecordModel{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("session_id", &ids).Error
	if err != nil {
		return nil, &Error{Op: "list sessions", Err: err}
	}
	return ids, nil
}

// Snapshot returns the cached session record, if one is stored.
func (d *GormDirectory) Snapshot(ctx context.Context, sessionID string) (domain.Session, bool, error) {
	var row SessionRecordModel
	err := d.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("updated_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, &Error{Op: "load snapshot", Err: err}
	}
	var sess domain.Session
	if err := json.Unmarshal(row.Snapshot, &sess); err != nil {
		return domain.Session{}, false, &Error{Op: "decode snapshot", Err: err}
	}
	return sess, true, nil
}

// Remove drops ownership of a session.
func (d *GormDirectory) Remove(ctx context.Context, userID, sessionID string) error {
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Delete(&SessionRecordModel{}).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Op: "remove session", Err: err}
	}
	return nil
}
