// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package feedback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// TestNewRecorder tests recorder creation.
func TestNewRecorder(t *testing.T) {
	tests := []struct {
		name          string
		dbPath        string
		retentionDays int
		wantErr       bool
	}{
		{
			name:          "valid parameters",
			dbPath:        "/tmp/test.db",
			retentionDays: 90,
			wantErr:       false,
		},
		{
			name:          "empty db path",
			dbPath:        "",
			retentionDays: 90,
			wantErr:       true,
		},
		{
			name:          "zero retention days defaults to 90",
			dbPath:        "/tmp/test.db",
			retentionDays: 0,
			wantErr:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder, err := NewRecorder(tt.dbPath, tt.retentionDays)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRecorder() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && recorder == nil {
				t.Error("NewRecorder() returned nil recorder")
			}
		})
	}
}

// TestRecorderInitialize tests recorder initialization.
func TestRecorderInitialize(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_outcomes.db")

	recorder, err := NewRecorder(dbPath, 90)
	if err != nil {
		t.Fatalf("NewRecorder() failed: %v", err)
	}

	ctx := context.Background()
	if err := recorder.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	if !recorder.IsEnabled() {
		t.Error("Recorder should be enabled after initialization")
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	recorder.Shutdown(ctx)
}

// TestRecorderRecord tests recording an outcome.
func TestRecorderRecord(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_outcomes.db")

	recorder, err := NewRecorder(dbPath, 90)
	if err != nil {
		t.Fatalf("NewRecorder() failed: %v", err)
	}

	ctx := context.Background()
	if err := recorder.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	defer recorder.Shutdown(ctx)

	record := &OutcomeRecord{
		DecisionID:    "b3c7d1a0-0000-4000-8000-000000000001",
		Query:         "How does a B-tree split work?",
		Complexity:    "simple",
		DraftModel:    "llama3.2:3b",
		DraftProvider: "ollama",
		Confidence:    0.62,
		Method:        "multi-signal-semantic",
		Accepted:      true,
		DraftCents:    0.0,
		VerifierCents: 1.1,
		SavedCents:    1.1,
		LatencyMs:     150,
		Metadata: map[string]interface{}{
			"threshold": 0.5,
		},
	}

	if err := recorder.Record(ctx, record); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if record.ID == 0 {
		t.Error("Record() should set the record ID")
	}

	records, err := recorder.GetRecent(ctx, 10)
	if err != nil {
		t.Fatalf("GetRecent() failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	retrieved := records[0]
	if retrieved.DecisionID != record.DecisionID {
		t.Errorf("DecisionID mismatch: got %s, want %s", retrieved.DecisionID, record.DecisionID)
	}
	if retrieved.Query != record.Query {
		t.Errorf("Query mismatch: got %s, want %s", retrieved.Query, record.Query)
	}
	if retrieved.DraftModel != record.DraftModel {
		t.Errorf("DraftModel mismatch: got %s, want %s", retrieved.DraftModel, record.DraftModel)
	}
	if retrieved.VerifierModel != "" {
		t.Errorf("VerifierModel should be empty for accepted draft, got %s", retrieved.VerifierModel)
	}
	if !retrieved.Accepted {
		t.Error("Accepted flag should round-trip as true")
	}
	if retrieved.SavedCents != record.SavedCents {
		t.Errorf("SavedCents mismatch: got %v, want %v", retrieved.SavedCents, record.SavedCents)
	}
	if retrieved.Metadata["threshold"] != 0.5 {
		t.Errorf("Metadata mismatch: got %v", retrieved.Metadata)
	}
}

// TestRecorderGetStats tests retrieving aggregated statistics.
func TestRecorderGetStats(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_outcomes.db")

	recorder, err := NewRecorder(dbPath, 90)
	if err != nil {
		t.Fatalf("NewRecorder() failed: %v", err)
	}

	ctx := context.Background()
	if err := recorder.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	defer recorder.Shutdown(ctx)

	records := []*OutcomeRecord{
		{
			DecisionID:    "d-1",
			Query:         "Query 1",
			Complexity:    "trivial",
			DraftModel:    "llama3.2:3b",
			DraftProvider: "ollama",
			Confidence:    0.80,
			Accepted:      true,
			SavedCents:    1.1,
			LatencyMs:     100,
		},
		{
			DecisionID:    "d-2",
			Query:         "Query 2",
			Complexity:    "moderate",
			DraftModel:    "llama3.2:3b",
			DraftProvider: "ollama",
			Confidence:    0.60,
			Accepted:      true,
			SavedCents:    0.8,
			LatencyMs:     200,
		},
		{
			DecisionID:    "d-3",
			Query:         "Query 3",
			Complexity:    "hard",
			DraftModel:    "llama3.2:3b",
			DraftProvider: "ollama",
			VerifierModel: "claude-3.5-sonnet",
			Confidence:    0.25,
			Accepted:      false,
			FloorApplied:  true,
			FailureReason: "confidence 0.250 below hard threshold 0.42",
			SavedCents:    -0.5,
			LatencyMs:     450,
		},
	}

	for _, record := range records {
		if err := recorder.Record(ctx, record); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	stats, err := recorder.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}

	totalRecords, ok := stats["total_records"].(int64)
	if !ok {
		t.Fatal("total_records not found in stats")
	}
	if totalRecords != 3 {
		t.Errorf("Expected 3 total records, got %d", totalRecords)
	}

	acceptanceRate, ok := stats["acceptance_rate"].(float64)
	if !ok {
		t.Fatal("acceptance_rate not found in stats")
	}
	expectedAcceptance := 2.0 / 3.0
	if acceptanceRate < expectedAcceptance-0.01 || acceptanceRate > expectedAcceptance+0.01 {
		t.Errorf("Expected acceptance rate ~%.2f, got %.2f", expectedAcceptance, acceptanceRate)
	}

	floorRate, ok := stats["floor_rate"].(float64)
	if !ok {
		t.Fatal("floor_rate not found in stats")
	}
	expectedFloor := 1.0 / 3.0
	if floorRate < expectedFloor-0.01 || floorRate > expectedFloor+0.01 {
		t.Errorf("Expected floor rate ~%.2f, got %.2f", expectedFloor, floorRate)
	}

	complexityDist, ok := stats["complexity_distribution"].(map[string]int64)
	if !ok {
		t.Fatal("complexity_distribution not found in stats")
	}
	if complexityDist["trivial"] != 1 || complexityDist["moderate"] != 1 || complexityDist["hard"] != 1 {
		t.Errorf("Unexpected complexity distribution: %v", complexityDist)
	}

	totalSaved, ok := stats["total_saved_cents"].(float64)
	if !ok {
		t.Fatal("total_saved_cents not found in stats")
	}
	if totalSaved < 1.39 || totalSaved > 1.41 {
		t.Errorf("Expected total saved ~1.40 cents, got %v", totalSaved)
	}
}

// TestRecorderModelAcceptance tests the acceptance-rate prior lookup.
func TestRecorderModelAcceptance(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_outcomes.db")

	recorder, err := NewRecorder(dbPath, 90)
	if err != nil {
		t.Fatalf("NewRecorder() failed: %v", err)
	}

	ctx := context.Background()
	if err := recorder.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	defer recorder.Shutdown(ctx)

	accepted := []bool{true, true, true, false}
	for i, ok := range accepted {
		record := &OutcomeRecord{
			DecisionID:    "d",
			Query:         "q",
			Complexity:    "simple",
			DraftModel:    "llama3.2:3b",
			DraftProvider: "ollama",
			Accepted:      ok,
			LatencyMs:     int64(100 + i),
		}
		if err := recorder.Record(ctx, record); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	rate, n, err := recorder.ModelAcceptance(ctx, "llama3.2:3b")
	if err != nil {
		t.Fatalf("ModelAcceptance() failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 samples, got %d", n)
	}
	if rate != 0.75 {
		t.Errorf("Expected acceptance rate 0.75, got %v", rate)
	}

	rate, n, err = recorder.ModelAcceptance(ctx, "unknown-model")
	if err != nil {
		t.Fatalf("ModelAcceptance() failed for unknown model: %v", err)
	}
	if rate != 0 || n != 0 {
		t.Errorf("Expected zero rate and samples for unknown model, got %v/%d", rate, n)
	}
}

// TestRecorderRetention tests retention policy enforcement.
func TestRecorderRetention(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_outcomes.db")

	recorder, err := NewRecorder(dbPath, 7)
	if err != nil {
		t.Fatalf("NewRecorder() failed: %v", err)
	}

	ctx := context.Background()
	if err := recorder.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	defer recorder.Shutdown(ctx)

	record := &OutcomeRecord{
		DecisionID:    "d-old",
		Query:         "old query",
		Complexity:    "simple",
		DraftModel:    "llama3.2:3b",
		DraftProvider: "ollama",
		Accepted:      true,
		LatencyMs:     100,
	}
	if err := recorder.Record(ctx, record); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	// Age the row past the retention window, then trigger cleanup.
	stale := time.Now().AddDate(0, 0, -10)
	if _, err := recorder.db.ExecContext(ctx, "UPDATE cascade_outcomes SET created_at = ?", stale); err != nil {
		t.Fatalf("failed to age record: %v", err)
	}

	recorder.cleanupOldRecords(ctx)

	records, err := recorder.GetRecent(ctx, 10)
	if err != nil {
		t.Fatalf("GetRecent() failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected stale record to be cleaned up, got %d records", len(records))
	}
}

// TestRecorderNotEnabled tests operations when the recorder is not enabled.
func TestRecorderNotEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_outcomes.db")

	recorder, err := NewRecorder(dbPath, 90)
	if err != nil {
		t.Fatalf("NewRecorder() failed: %v", err)
	}

	if recorder.IsEnabled() {
		t.Error("Recorder should not be enabled before initialization")
	}

	ctx := context.Background()
	record := &OutcomeRecord{
		DecisionID: "d",
		Query:      "q",
		DraftModel: "llama3.2:3b",
		LatencyMs:  100,
	}

	if err := recorder.Record(ctx, record); err == nil {
		t.Error("Record() should fail when recorder is not enabled")
	}
	if _, err := recorder.GetStats(ctx); err == nil {
		t.Error("GetStats() should fail when recorder is not enabled")
	}
	if _, err := recorder.GetRecent(ctx, 10); err == nil {
		t.Error("GetRecent() should fail when recorder is not enabled")
	}
	if _, _, err := recorder.ModelAcceptance(ctx, "llama3.2:3b"); err == nil {
		t.Error("ModelAcceptance() should fail when recorder is not enabled")
	}
}

// TestRecorderShutdown tests graceful shutdown.
func TestRecorderShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_outcomes.db")

	recorder, err := NewRecorder(dbPath, 90)
	if err != nil {
		t.Fatalf("NewRecorder() failed: %v", err)
	}

	ctx := context.Background()
	if err := recorder.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	record := &OutcomeRecord{
		DecisionID:    "d",
		Query:         "q",
		Complexity:    "simple",
		DraftModel:    "llama3.2:3b",
		DraftProvider: "ollama",
		Accepted:      true,
		LatencyMs:     100,
	}
	if err := recorder.Record(ctx, record); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	if err := recorder.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	if recorder.IsEnabled() {
		t.Error("Recorder should not be enabled after shutdown")
	}

	if err := recorder.Record(ctx, record); err == nil {
		t.Error("Record() should fail after shutdown")
	}
}

// TestRecorderTimestamp tests automatic timestamp setting.
func TestRecorderTimestamp(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_outcomes.db")

	recorder, err := NewRecorder(dbPath, 90)
	if err != nil {
		t.Fatalf("NewRecorder() failed: %v", err)
	}

	ctx := context.Background()
	if err := recorder.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	defer recorder.Shutdown(ctx)

	record := &OutcomeRecord{
		DecisionID:    "d",
		Query:         "q",
		Complexity:    "simple",
		DraftModel:    "llama3.2:3b",
		DraftProvider: "ollama",
		Accepted:      true,
		LatencyMs:     100,
	}

	before := time.Now().Add(-time.Second)
	if err := recorder.Record(ctx, record); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	after := time.Now().Add(time.Second)

	records, err := recorder.GetRecent(ctx, 1)
	if err != nil {
		t.Fatalf("GetRecent() failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	retrieved := records[0]
	if retrieved.Timestamp.Before(before) || retrieved.Timestamp.After(after) {
		t.Errorf("Timestamp %v not within expected range [%v, %v]", retrieved.Timestamp, before, after)
	}
}

// TestRecorderInsertError tests insert failure reporting against a mock driver.
func TestRecorderInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() failed: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO cascade_outcomes").
		WillReturnError(errors.New("disk I/O error"))

	recorder := &Recorder{dbPath: "mock", retentionDays: 30, db: db, enabled: true}

	record := &OutcomeRecord{
		DecisionID: "d",
		Query:      "q",
		DraftModel: "llama3.2:3b",
		LatencyMs:  100,
	}

	err = recorder.Record(context.Background(), record)
	if err == nil {
		t.Fatal("Record() should surface driver errors")
	}
	if !strings.Contains(err.Error(), "failed to insert outcome") {
		t.Errorf("Unexpected error message: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet sqlmock expectations: %v", err)
	}
}

// TestRecorderStatsQueryError tests stats failure reporting against a mock driver.
func TestRecorderStatsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() failed: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cascade_outcomes")).
		WillReturnError(errors.New("database is locked"))

	recorder := &Recorder{dbPath: "mock", retentionDays: 30, db: db, enabled: true}

	_, err = recorder.GetStats(context.Background())
	if err == nil {
		t.Fatal("GetStats() should surface driver errors")
	}
	if !strings.Contains(err.Error(), "failed to get total count") {
		t.Errorf("Unexpected error message: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet sqlmock expectations: %v", err)
	}
}
