// Package store implements the Workflow Store: a concurrent in-memory map
// of workflow_id -> WorkflowRecord, with a durable SQLite mirror so a
// restarted process can still answer lookups for workflows it did not run
// in its current lifetime (read-through: memory first, SQLite on miss).
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/forgeai/forge/internal/team"
)

// WorkflowRecord is one workflow's tracked state.
type WorkflowRecord struct {
	WorkflowID    string
	Status        string // pending | success | error
	StoragePath   string
	Error         string
	ExecutionPath []string
	TeamResults   map[string]team.Result
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Store is the Workflow Store component.
type Store struct {
	mu      sync.RWMutex
	records map[string]*WorkflowRecord
	db      *sql.DB
}

// Open creates (if needed) the SQLite mirror at dbPath and returns a ready
// Store. dbPath may be ":memory:" for tests that don't need cross-process
// durability.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open workflow store database: %w", err)
	}
	// A single connection keeps an in-memory (":memory:") database coherent:
	// sqlite3 gives every new connection its own private in-memory database,
	// so a pool would silently lose the schema on the next query.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create workflow_records table: %w", err)
	}
	return &Store{records: make(map[string]*WorkflowRecord), db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS workflow_records (
	workflow_id  TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	error        TEXT,
	finished_at  DATETIME
)`

// Put records a new workflow, visible to readers only once this call
// returns (partial in-progress updates are never visible).
func (s *Store) Put(record *WorkflowRecord) error {
	s.mu.Lock()
	s.records[record.WorkflowID] = record
	s.mu.Unlock()
	return s.mirror(record)
}

// SetStatus mutates a tracked workflow's terminal status and error, and
// stamps FinishedAt. It is the only mutation path once a workflow enters a
// terminal state.
func (s *Store) SetStatus(workflowID, status, errMsg string) error {
	s.mu.Lock()
	record, ok := s.records[workflowID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("workflow %s is not tracked", workflowID)
	}
	record.Status = status
	record.Error = errMsg
	record.FinishedAt = time.Now()
	s.mu.Unlock()
	return s.mirror(record)
}

// Get returns a tracked workflow's record, reading through to the SQLite
// mirror on an in-memory miss (e.g. after a process restart).
func (s *Store) Get(workflowID string) (*WorkflowRecord, bool) {
	s.mu.RLock()
	record, ok := s.records[workflowID]
	s.mu.RUnlock()
	if ok {
		return record, true
	}
	return s.readMirror(workflowID)
}

func (s *Store) mirror(record *WorkflowRecord) error {
	var finishedAt interface{}
	if !record.FinishedAt.IsZero() {
		finishedAt = record.FinishedAt
	}
	_, err := s.db.Exec(
		`INSERT INTO workflow_records (workflow_id, status, storage_path, error, finished_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET status=excluded.status, error=excluded.error, finished_at=excluded.finished_at`,
		record.WorkflowID, record.Status, record.StoragePath, record.Error, finishedAt,
	)
	return err
}

func (s *Store) readMirror(workflowID string) (*WorkflowRecord, bool) {
	row := s.db.QueryRow(`SELECT workflow_id, status, storage_path, error FROM workflow_records WHERE workflow_id = ?`, workflowID)
	var record WorkflowRecord
	var errMsg sql.NullString
	if err := row.Scan(&record.WorkflowID, &record.Status, &record.StoragePath, &errMsg); err != nil {
		return nil, false
	}
	record.Error = errMsg.String
	return &record, true
}

// Tracked returns the number of workflows currently held in memory, for the
// /health endpoint's workflows_tracked field.
func (s *Store) Tracked() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
