// Package auditlog keeps a queryable SQLite index of sideband command
// dispatches and arbitration denials. It is a derived index over events
// the daemon already logs: losing or deleting it loses nothing the WAL
// can't reconstruct, so writes are best-effort and never gate the hot
// path. The store is a gorm sqlite.Dialector over modernc.org/sqlite's
// pure-Go driver, with WAL journal mode and a single-connection pool.
package auditlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// SidebandCommand records one command extracted from a pane's PTY
// stream and handed to the executor.
type SidebandCommand struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	PaneID    string `gorm:"column:pane_id;not null;index"`
	SessionID string `gorm:"column:session_id;not null;default:'';index"`
	Command   string `gorm:"column:command;not null"`
	Attrs     string `gorm:"column:attrs;not null;default:''"`
	BodyBytes int    `gorm:"column:body_bytes;not null;default:0"`
	CreatedAt int64  `gorm:"column:created_at;not null;default:0"`
}

func (SidebandCommand) TableName() string { return "sideband_commands" }

// ArbitrationDenial records one agent request refused because a human
// had recently touched the same resource.
type ArbitrationDenial struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ClientID     string `gorm:"column:client_id;not null"`
	ResourceKind string `gorm:"column:resource_kind;not null"`
	ResourceID   string `gorm:"column:resource_id;not null;index"`
	Action       string `gorm:"column:action;not null"`
	RemainingMs  int64  `gorm:"column:remaining_ms;not null;default:0"`
	CreatedAt    int64  `gorm:"column:created_at;not null;default:0"`
}

func (ArbitrationDenial) TableName() string { return "arbitration_denials" }

// Store wraps the gorm connection. A nil *Store is a valid no-op sink,
// so callers can wire audit logging unconditionally and let
// configuration decide whether a database exists.
type Store struct {
	db  *gorm.DB
	log *slog.Logger
	now func() time.Time
}

// Open creates (or reopens) the audit database at path and migrates its
// schema. The parent directory is created if needed.
func Open(path string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("auditlog: mkdir: %w", err)
	}
	gdb, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	if err := gdb.Exec(`PRAGMA journal_mode=WAL;`).Error; err != nil {
		return nil, fmt.Errorf("auditlog: journal_mode: %w", err)
	}
	if err := gdb.Exec(`PRAGMA busy_timeout=5000;`).Error; err != nil {
		return nil, fmt.Errorf("auditlog: busy_timeout: %w", err)
	}
	if err := gdb.AutoMigrate(&SidebandCommand{}, &ArbitrationDenial{}); err != nil {
		return nil, fmt.Errorf("auditlog: migrate: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return &Store{db: gdb, log: log, now: time.Now}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordSideband implements sideband.AuditSink.
func (s *Store) RecordSideband(paneID, sessionID, command, attrs string, bodyBytes int) {
	if s == nil {
		return
	}
	rec := SidebandCommand{
		PaneID:    paneID,
		SessionID: sessionID,
		Command:   command,
		Attrs:     attrs,
		BodyBytes: bodyBytes,
		CreatedAt: s.now().UnixMilli(),
	}
	if err := s.db.Create(&rec).Error; err != nil && s.log != nil {
		s.log.Warn("auditlog: record sideband failed", "error", err)
	}
}

// RecordDenial implements handlers.AuditSink.
func (s *Store) RecordDenial(clientID, resourceKind, resourceID, action string, remainingMs int64) {
	if s == nil {
		return
	}
	rec := ArbitrationDenial{
		ClientID:     clientID,
		ResourceKind: resourceKind,
		ResourceID:   resourceID,
		Action:       action,
		RemainingMs:  remainingMs,
		CreatedAt:    s.now().UnixMilli(),
	}
	if err := s.db.Create(&rec).Error; err != nil && s.log != nil {
		s.log.Warn("auditlog: record denial failed", "error", err)
	}
}

// RecentSideband returns up to limit most-recent sideband commands,
// newest first, optionally filtered to one session.
func (s *Store) RecentSideband(sessionID string, limit int) ([]SidebandCommand, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	q := s.db.Order("id DESC").Limit(limit)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	var out []SidebandCommand
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// RecentDenials returns up to limit most-recent arbitration denials,
// newest first.
func (s *Store) RecentDenials(limit int) ([]ArbitrationDenial, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var out []ArbitrationDenial
	if err := s.db.Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
