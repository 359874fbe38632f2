// Package auditstore persists execution and approval records to SQLite so
// audit history survives process restarts.
package auditstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/aishell/aishell/pkg/safety"
	"github.com/aishell/aishell/pkg/tools"
)

// Config holds audit store configuration
type Config struct {
	DBPath          string
	RetentionDays   int    // 0 disables cleanup
	CleanupSchedule string // cron expression, defaults to daily at 03:00
}

// Store is a SQLite-backed sink for execution and approval records. It
// implements tools.AuditSink and safety.ApprovalSink.
type Store struct {
	db            *sql.DB
	retentionDays int
	schedule      string

	mu        sync.Mutex
	scheduler *cron.Cron
}

// NewStore opens the database and initializes the schema
func NewStore(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schedule := cfg.CleanupSchedule
	if schedule == "" {
		schedule = "0 3 * * *"
	}

	s := &Store{
		db:            db,
		retentionDays: cfg.RetentionDays,
		schedule:      schedule,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", cfg.DBPath).Msg("Audit store initialized")
	return s, nil
}

// initSchema creates database tables
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			tool TEXT NOT NULL,
			params TEXT NOT NULL,
			result TEXT,
			success INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_executions_timestamp ON executions(timestamp);
		CREATE INDEX IF NOT EXISTS idx_executions_tool ON executions(tool);

		CREATE TABLE IF NOT EXISTS approvals (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			tool TEXT NOT NULL,
			approved INTEGER NOT NULL,
			approver TEXT,
			reason TEXT,
			requirement TEXT NOT NULL,
			risk_level TEXT NOT NULL,
			record TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_approvals_timestamp ON approvals(timestamp);
		CREATE INDEX IF NOT EXISTS idx_approvals_tool ON approvals(tool);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return nil
}

// RecordExecution persists one execution record
func (s *Store) RecordExecution(record tools.ExecutionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO executions (timestamp, tool, params, result, success, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp.UnixMilli(),
		record.Tool,
		record.Params,
		record.Result,
		record.Success,
		record.Duration.Milliseconds(),
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution record: %w", err)
	}
	return nil
}

// RecordApproval persists one approval record. The full record is stored as
// JSON alongside the queryable columns.
func (s *Store) RecordApproval(record safety.ApprovalRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal approval record: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO approvals (id, timestamp, tool, approved, approver, reason, requirement, risk_level, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Decision.Timestamp.UnixMilli(),
		record.Request.Step.Tool,
		record.Decision.Approved,
		record.Decision.Approver,
		record.Decision.Reason,
		record.Request.Validation.ApprovalRequirement.String(),
		record.Request.Validation.RiskLevel.String(),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval record: %w", err)
	}
	return nil
}

// Executions returns persisted execution records, newest first. An empty tool
// name matches all tools; limit <= 0 means no limit.
func (s *Store) Executions(tool string, limit int) ([]tools.ExecutionRecord, error) {
	query := `SELECT timestamp, tool, params, result, success, duration_ms, error
		FROM executions`
	args := []interface{}{}

	if tool != "" {
		query += " WHERE tool = ?"
		args = append(args, tool)
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var records []tools.ExecutionRecord
	for rows.Next() {
		var (
			record     tools.ExecutionRecord
			ts         int64
			durationMs int64
			result     sql.NullString
			execErr    sql.NullString
		)
		if err := rows.Scan(&ts, &record.Tool, &record.Params, &result, &record.Success, &durationMs, &execErr); err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}
		record.Timestamp = time.UnixMilli(ts)
		record.Duration = time.Duration(durationMs) * time.Millisecond
		record.Result = result.String
		record.Error = execErr.String
		records = append(records, record)
	}

	return records, rows.Err()
}

// Approvals returns persisted approval records, newest first. limit <= 0 means
// no limit.
func (s *Store) Approvals(limit int, approvedOnly bool) ([]safety.ApprovalRecord, error) {
	query := `SELECT record FROM approvals`
	args := []interface{}{}

	if approvedOnly {
		query += " WHERE approved = 1"
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var records []safety.ApprovalRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan approval record: %w", err)
		}
		var record safety.ApprovalRecord
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal approval record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Cleanup deletes records older than the retention window and returns how many
// rows were removed. A zero retention keeps everything.
func (s *Store) Cleanup() (int64, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UnixMilli()

	var total int64
	res, err := s.db.Exec("DELETE FROM executions WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean executions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.Exec("DELETE FROM approvals WHERE timestamp < ?", cutoff)
	if err != nil {
		return total, fmt.Errorf("failed to clean approvals: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}

// StartRetentionSweeper schedules periodic cleanup of expired records
func (s *Store) StartRetentionSweeper() error {
	if s.retentionDays <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler != nil {
		return nil
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(s.schedule, func() {
		removed, err := s.Cleanup()
		if err != nil {
			log.Error().Err(err).Msg("Audit retention sweep failed")
			return
		}
		if removed > 0 {
			log.Info().
				Int64("removed", removed).
				Int("retention_days", s.retentionDays).
				Msg("Audit retention sweep completed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	scheduler.Start()
	s.scheduler = scheduler

	log.Info().
		Str("schedule", s.schedule).
		Int("retention_days", s.retentionDays).
		Msg("Audit retention sweeper started")

	return nil
}

// Close stops the sweeper and closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler = nil
	}
	s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
