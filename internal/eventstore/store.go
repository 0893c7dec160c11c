// Package eventstore is Forkline's append-only SQLite-backed event
// store: the concrete implementation of the store contract the core
// requires of its environment (spec §6) — start_run, start_step,
// end_step, append_event, load_run.
//
// Grounded on github.com/roach88/nysm's internal/store/store.go for
// the connection/pragma/migration idiom (WAL mode, busy_timeout,
// single-writer connection pool, embedded schema.sql, a user_version
// migration ladder) and on
// original_source/forkline/storage/store.py for the table shape and
// the version-column back-compat behavior.
package eventstore

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sauravvenkat/forkline/internal/trace"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store is a durable, append-only event store for Forkline runs.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at path, applying pragmas
// and schema migrations. Idempotent — safe to call multiple times
// against the same path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventstore: connect %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("eventstore: pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("eventstore: apply schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations tracked via
// PRAGMA user_version, following nysm's migration-ladder idiom.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("eventstore: get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateAddVersionColumns(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("eventstore: set user_version: %w", err)
	}
	return nil
}

// migrateAddVersionColumns adds forkline_version/schema_version
// columns to a runs table created before they existed, tolerating
// "duplicate column" errors from a table that already has them.
func migrateAddVersionColumns(db *sql.DB) error {
	for _, col := range []string{"forkline_version", "schema_version"} {
		_, err := db.Exec(fmt.Sprintf("ALTER TABLE runs ADD COLUMN %s TEXT", col))
		if err != nil && !isDuplicateColumnErr(err) {
			return fmt.Errorf("eventstore: add column %s: %w", col, err)
		}
	}
	return nil
}

func isDuplicateColumnErr(err error) bool {
	// sqlite3 reports "duplicate column name: X" for ALTER TABLE ADD
	// COLUMN against a column that already exists.
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// StartRun inserts (or replaces) a run row and returns the resulting
// Run record, stamped with the current library version tags.
func (s *Store) StartRun(runID string) (trace.Run, error) {
	createdAt := utcNow()
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO runs (run_id, created_at, forkline_version, schema_version) VALUES (?, ?, ?, ?)`,
		runID, createdAt, trace.DefaultForklineVersion, trace.DefaultSchemaVersion,
	)
	if err != nil {
		return trace.Run{}, fmt.Errorf("eventstore: start_run %s: %w", runID, err)
	}
	return trace.NewRun(runID, createdAt), nil
}

// StartStep inserts a new step row and returns the resulting Step
// record (with no events yet).
func (s *Store) StartStep(runID string, idx int, name string) (trace.Step, error) {
	startedAt := utcNow()
	res, err := s.db.Exec(
		`INSERT INTO steps (run_id, idx, name, started_at, ended_at) VALUES (?, ?, ?, ?, NULL)`,
		runID, idx, name, startedAt,
	)
	if err != nil {
		return trace.Step{}, fmt.Errorf("eventstore: start_step run=%s idx=%d: %w", runID, idx, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return trace.Step{}, fmt.Errorf("eventstore: start_step run=%s idx=%d: %w", runID, idx, err)
	}
	return trace.NewStep(runID, idx, name, startedAt).WithStepID(id), nil
}

// EndStep stamps the ended_at timestamp of a previously started step.
func (s *Store) EndStep(runID string, idx int) error {
	_, err := s.db.Exec(
		`UPDATE steps SET ended_at = ? WHERE run_id = ? AND idx = ?`,
		utcNow(), runID, idx,
	)
	if err != nil {
		return fmt.Errorf("eventstore: end_step run=%s idx=%d: %w", runID, idx, err)
	}
	return nil
}

// AppendEvent inserts a new event row under (runID, stepIdx) and
// returns the resulting Event record.
func (s *Store) AppendEvent(runID string, stepIdx int, eventType string, payload map[string]any) (trace.Event, error) {
	createdAt := utcNow()
	payloadJSON, err := json.Marshal(orderedPayload(payload))
	if err != nil {
		return trace.Event{}, fmt.Errorf("eventstore: append_event run=%s step=%d: marshal payload: %w", runID, stepIdx, err)
	}

	res, err := s.db.Exec(
		`INSERT INTO events (run_id, step_idx, type, payload_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, stepIdx, eventType, string(payloadJSON), createdAt,
	)
	if err != nil {
		return trace.Event{}, fmt.Errorf("eventstore: append_event run=%s step=%d: %w", runID, stepIdx, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return trace.Event{}, fmt.Errorf("eventstore: append_event run=%s step=%d: %w", runID, stepIdx, err)
	}

	return trace.NewEvent(runID, stepIdx, eventType, createdAt, payload).WithEventID(id), nil
}

// LoadRun reconstructs a full Run (with all steps and events, in
// order) from the store. Returns (Run{}, false, nil) if no such run
// exists.
func (s *Store) LoadRun(runID string) (trace.Run, bool, error) {
	var createdAt string
	var forklineVersion, schemaVersion sql.NullString

	err := s.db.QueryRow(
		`SELECT created_at, forkline_version, schema_version FROM runs WHERE run_id = ?`,
		runID,
	).Scan(&createdAt, &forklineVersion, &schemaVersion)
	if err == sql.ErrNoRows {
		return trace.Run{}, false, nil
	}
	if err != nil {
		return trace.Run{}, false, fmt.Errorf("eventstore: load_run %s: %w", runID, err)
	}

	run := trace.NewRun(runID, createdAt)
	if forklineVersion.Valid {
		run.ForklineVersion = forklineVersion.String
	}
	if schemaVersion.Valid {
		run.SchemaVersion = schemaVersion.String
	}

	steps, err := s.loadSteps(runID)
	if err != nil {
		return trace.Run{}, false, err
	}
	for _, step := range steps {
		run = run.WithStep(step)
	}
	return run, true, nil
}

func (s *Store) loadSteps(runID string) ([]trace.Step, error) {
	rows, err := s.db.Query(
		`SELECT step_id, idx, name, started_at, ended_at FROM steps WHERE run_id = ? ORDER BY idx ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("eventstore: load_steps %s: %w", runID, err)
	}
	defer rows.Close()

	var steps []trace.Step
	for rows.Next() {
		var stepID int64
		var idx int
		var name, startedAt string
		var endedAt sql.NullString
		if err := rows.Scan(&stepID, &idx, &name, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("eventstore: load_steps %s: %w", runID, err)
		}

		step := trace.NewStep(runID, idx, name, startedAt).WithStepID(stepID)
		if endedAt.Valid {
			step = step.WithEndedAt(endedAt.String)
		}

		events, err := s.loadEvents(runID, idx)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			step = step.WithEvent(e)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: load_steps %s: %w", runID, err)
	}
	return steps, nil
}

func (s *Store) loadEvents(runID string, stepIdx int) ([]trace.Event, error) {
	rows, err := s.db.Query(
		`SELECT event_id, type, payload_json, created_at FROM events WHERE run_id = ? AND step_idx = ? ORDER BY event_id ASC`,
		runID, stepIdx,
	)
	if err != nil {
		return nil, fmt.Errorf("eventstore: load_events %s/%d: %w", runID, stepIdx, err)
	}
	defer rows.Close()

	var events []trace.Event
	for rows.Next() {
		var eventID int64
		var eventType, payloadJSON, createdAt string
		if err := rows.Scan(&eventID, &eventType, &payloadJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("eventstore: load_events %s/%d: %w", runID, stepIdx, err)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("eventstore: load_events %s/%d: unmarshal payload: %w", runID, stepIdx, err)
		}
		events = append(events, trace.NewEvent(runID, stepIdx, eventType, createdAt, payload).WithEventID(eventID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: load_events %s/%d: %w", runID, stepIdx, err)
	}
	return events, nil
}

// orderedPayload is a passthrough today; it exists as the single seam
// where payload normalization (e.g. redaction) would be applied before
// persistence, matching the recording data-flow in spec §2.
func orderedPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	return payload
}
