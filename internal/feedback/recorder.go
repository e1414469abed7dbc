// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package feedback provides persistent storage for cascade outcomes.
// It records each draft/verifier decision to enable acceptance-rate
// priors and cost accounting across runs.
package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"
)

// OutcomeRecord represents a single cascade decision outcome.
type OutcomeRecord struct {
	ID            int64                  `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	DecisionID    string                 `json:"decision_id"`
	Query         string                 `json:"query"`
	Complexity    string                 `json:"complexity"`
	DraftModel    string                 `json:"draft_model"`
	DraftProvider string                 `json:"draft_provider"`
	VerifierModel string                 `json:"verifier_model,omitempty"`
	Confidence    float64                `json:"confidence"`
	Method        string                 `json:"method"`
	Accepted      bool                   `json:"accepted"`
	FloorApplied  bool                   `json:"floor_applied"`
	FailureReason string                 `json:"failure_reason,omitempty"`
	DraftCents    float64                `json:"draft_cents"`
	VerifierCents float64                `json:"verifier_cents"`
	SavedCents    float64                `json:"saved_cents"`
	LatencyMs     int64                  `json:"latency_ms"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Recorder manages outcome collection and storage.
type Recorder struct {
	db            *sql.DB
	dbPath        string
	retentionDays int
	enabled       bool
	mu            sync.RWMutex
}

// NewRecorder creates a new outcome recorder instance.
//
// Parameters:
//   - dbPath: Path to the SQLite database file (can be relative or absolute)
//   - retentionDays: Number of days to retain outcome records
//
// Returns:
//   - *Recorder: A new recorder instance
//   - error: Any error encountered during creation
func NewRecorder(dbPath string, retentionDays int) (*Recorder, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if retentionDays <= 0 {
		retentionDays = 90 // Default to 90 days
	}

	return &Recorder{
		dbPath:        dbPath,
		retentionDays: retentionDays,
		enabled:       false,
	}, nil
}

// Initialize sets up the database and creates necessary tables.
//
// Parameters:
//   - ctx: Context for initialization operations
//
// Returns:
//   - error: Any error encountered during initialization
func (r *Recorder) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", r.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS cascade_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		decision_id TEXT NOT NULL,
		query TEXT NOT NULL,
		complexity TEXT NOT NULL,
		draft_model TEXT NOT NULL,
		draft_provider TEXT NOT NULL,
		verifier_model TEXT,
		confidence REAL,
		method TEXT,
		accepted INTEGER NOT NULL DEFAULT 0,
		floor_applied INTEGER NOT NULL DEFAULT 0,
		failure_reason TEXT,
		draft_cents REAL,
		verifier_cents REAL,
		saved_cents REAL,
		latency_ms INTEGER NOT NULL,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_timestamp ON cascade_outcomes(timestamp);
	CREATE INDEX IF NOT EXISTS idx_outcomes_decision ON cascade_outcomes(decision_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_model ON cascade_outcomes(draft_model);
	CREATE INDEX IF NOT EXISTS idx_outcomes_complexity ON cascade_outcomes(complexity);
	CREATE INDEX IF NOT EXISTS idx_outcomes_created_at ON cascade_outcomes(created_at);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Infof("Outcome recorder initialized (db: %s, retention: %d days)", r.dbPath, r.retentionDays)

	// Run initial cleanup in the background
	r.db = db
	r.enabled = true
	go r.cleanupOldRecords(context.Background())

	return nil
}

// IsEnabled returns whether the recorder is active.
func (r *Recorder) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Record stores an outcome record in the database.
//
// Parameters:
//   - ctx: Context for the operation
//   - record: The outcome record to store
//
// Returns:
//   - error: Any error encountered during storage
func (r *Recorder) Record(ctx context.Context, record *OutcomeRecord) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.enabled {
		return fmt.Errorf("outcome recorder not enabled")
	}

	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	var metadataJSON []byte
	var err error
	if record.Metadata != nil {
		metadataJSON, err = json.Marshal(record.Metadata)
		if err != nil {
			log.Warnf("Failed to marshal metadata: %v", err)
			metadataJSON = []byte("{}")
		}
	}

	query := `
	INSERT INTO cascade_outcomes (
		timestamp, decision_id, query, complexity, draft_model, draft_provider,
		verifier_model, confidence, method, accepted, floor_applied,
		failure_reason, draft_cents, verifier_cents, saved_cents, latency_ms, metadata
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		record.Timestamp,
		record.DecisionID,
		record.Query,
		record.Complexity,
		record.DraftModel,
		record.DraftProvider,
		record.VerifierModel,
		record.Confidence,
		record.Method,
		boolToInt(record.Accepted),
		boolToInt(record.FloorApplied),
		record.FailureReason,
		record.DraftCents,
		record.VerifierCents,
		record.SavedCents,
		record.LatencyMs,
		string(metadataJSON),
	)

	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		record.ID = id
	}

	return nil
}

// GetRecent retrieves the most recent outcome records.
//
// Parameters:
//   - ctx: Context for the operation
//   - limit: Maximum number of records to retrieve
//
// Returns:
//   - []*OutcomeRecord: The retrieved records
//   - error: Any error encountered during retrieval
func (r *Recorder) GetRecent(ctx context.Context, limit int) ([]*OutcomeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.enabled {
		return nil, fmt.Errorf("outcome recorder not enabled")
	}

	if limit <= 0 {
		limit = 100
	}

	query := `
	SELECT id, timestamp, decision_id, query, complexity, draft_model, draft_provider,
	       verifier_model, confidence, method, accepted, floor_applied,
	       failure_reason, draft_cents, verifier_cents, saved_cents, latency_ms, metadata
	FROM cascade_outcomes
	ORDER BY timestamp DESC
	LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var records []*OutcomeRecord
	for rows.Next() {
		record, err := scanOutcomeRecord(rows)
		if err != nil {
			log.Warnf("Failed to scan outcome record: %v", err)
			continue
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome records: %w", err)
	}

	return records, nil
}

// ModelAcceptance returns the draft acceptance rate for a model and the
// number of recorded outcomes it is based on. Callers should require a
// minimum sample size before treating the rate as a prior.
func (r *Recorder) ModelAcceptance(ctx context.Context, model string) (float64, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.enabled {
		return 0, 0, fmt.Errorf("outcome recorder not enabled")
	}

	var total, accepted int64
	query := `
	SELECT COUNT(*), COALESCE(SUM(accepted), 0)
	FROM cascade_outcomes
	WHERE draft_model = ?
	`
	if err := r.db.QueryRowContext(ctx, query, model).Scan(&total, &accepted); err != nil {
		return 0, 0, fmt.Errorf("failed to get acceptance rate: %w", err)
	}

	if total == 0 {
		return 0, 0, nil
	}
	return float64(accepted) / float64(total), total, nil
}

// GetStats returns aggregated statistics about recorded outcomes.
//
// Parameters:
//   - ctx: Context for the operation
//
// Returns:
//   - map[string]interface{}: Statistics including counts, acceptance rate, savings
//   - error: Any error encountered during retrieval
func (r *Recorder) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.enabled {
		return nil, fmt.Errorf("outcome recorder not enabled")
	}

	stats := make(map[string]interface{})

	var totalCount int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cascade_outcomes").Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}
	stats["total_records"] = totalCount

	var acceptedCount int64
	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cascade_outcomes WHERE accepted = 1").Scan(&acceptedCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get accepted count: %w", err)
	}
	if totalCount > 0 {
		stats["acceptance_rate"] = float64(acceptedCount) / float64(totalCount)
	} else {
		stats["acceptance_rate"] = 0.0
	}

	var floorCount int64
	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cascade_outcomes WHERE floor_applied = 1").Scan(&floorCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get floor count: %w", err)
	}
	if totalCount > 0 {
		stats["floor_rate"] = float64(floorCount) / float64(totalCount)
	} else {
		stats["floor_rate"] = 0.0
	}

	complexityQuery := `
	SELECT complexity, COUNT(*) as count
	FROM cascade_outcomes
	GROUP BY complexity
	`
	rows, err := r.db.QueryContext(ctx, complexityQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to get complexity distribution: %w", err)
	}
	defer rows.Close()

	complexityDist := make(map[string]int64)
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			continue
		}
		complexityDist[bucket] = count
	}
	stats["complexity_distribution"] = complexityDist

	var avgConfidence, totalSaved, avgLatency sql.NullFloat64
	err = r.db.QueryRowContext(ctx,
		"SELECT AVG(confidence), SUM(saved_cents), AVG(latency_ms) FROM cascade_outcomes",
	).Scan(&avgConfidence, &totalSaved, &avgLatency)
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregates: %w", err)
	}
	stats["avg_confidence"] = avgConfidence.Float64
	stats["total_saved_cents"] = totalSaved.Float64
	stats["avg_latency_ms"] = avgLatency.Float64

	return stats, nil
}

// cleanupOldRecords removes records older than the retention period.
// NOTE: This function should be called without holding any locks.
func (r *Recorder) cleanupOldRecords(ctx context.Context) {
	if !r.IsEnabled() {
		return
	}

	cutoffDate := time.Now().AddDate(0, 0, -r.retentionDays)

	query := "DELETE FROM cascade_outcomes WHERE created_at < ?"
	result, err := r.db.ExecContext(ctx, query, cutoffDate)
	if err != nil {
		log.Warnf("Failed to cleanup old outcome records: %v", err)
		return
	}

	rowsAffected, err := result.RowsAffected()
	if err == nil && rowsAffected > 0 {
		log.Infof("Cleaned up %d old outcome records (older than %d days)", rowsAffected, r.retentionDays)
	}
}

// Shutdown closes the database connection.
//
// Parameters:
//   - ctx: Context for shutdown operations
//
// Returns:
//   - error: Any error encountered during shutdown
func (r *Recorder) Shutdown(ctx context.Context) error {
	// Run final cleanup before acquiring lock
	if r.IsEnabled() {
		r.cleanupOldRecords(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return nil
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}

	r.enabled = false
	log.Info("Outcome recorder shut down")
	return nil
}

// scanOutcomeRecord scans a database row into an OutcomeRecord.
func scanOutcomeRecord(rows *sql.Rows) (*OutcomeRecord, error) {
	var record OutcomeRecord
	var acceptedInt, floorInt int
	var verifierModel, failureReason, metadataJSON sql.NullString

	err := rows.Scan(
		&record.ID,
		&record.Timestamp,
		&record.DecisionID,
		&record.Query,
		&record.Complexity,
		&record.DraftModel,
		&record.DraftProvider,
		&verifierModel,
		&record.Confidence,
		&record.Method,
		&acceptedInt,
		&floorInt,
		&failureReason,
		&record.DraftCents,
		&record.VerifierCents,
		&record.SavedCents,
		&record.LatencyMs,
		&metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	record.Accepted = acceptedInt == 1
	record.FloorApplied = floorInt == 1
	record.VerifierModel = verifierModel.String
	record.FailureReason = failureReason.String

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			log.Warnf("Failed to unmarshal metadata: %v", err)
		}
	}

	return &record, nil
}

// boolToInt converts a boolean to an integer (0 or 1).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
