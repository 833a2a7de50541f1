package trace

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS draws (
	run   TEXT    NOT NULL,
	name  TEXT    NOT NULL,
	idx   INTEGER NOT NULL,
	value TEXT    NOT NULL,
	PRIMARY KEY (run, name, idx)
)`

// SQLite persists draws in a single table. Every chain writes under its own
// run ID, so several chains (or several runs) can share one file.
type SQLite struct {
	RunID string

	db     *sql.DB
	insert *sql.Stmt
	next   map[string]int // name => next idx
}

// NewSQLite opens (or creates) the database at path and starts a new run
func NewSQLite(path string) (*SQLite, error) {
	return OpenSQLite(path, uuid.NewString())
}

// OpenSQLite opens the database at path and continues the given run: new
// draws are appended after the ones already stored.
func OpenSQLite(path string, runID string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("SQLite trace requires a file path")
	}
	if runID == "" {
		return nil, errors.New("SQLite trace requires a run ID")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !os.IsExist(err) {
		return nil, errors.Wrap(err, "create dirs")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create draws table")
	}

	insert, err := db.Prepare(`INSERT INTO draws (run, name, idx, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "prepare insert")
	}

	s := &SQLite{
		RunID:  runID,
		db:     db,
		insert: insert,
		next:   make(map[string]int),
	}
	if err := s.load(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// load picks up the row counts of an existing run
func (s *SQLite) load() error {
	rows, err := s.db.Query(`SELECT name, MAX(idx) FROM draws WHERE run = ? GROUP BY name`, s.RunID)
	if err != nil {
		return errors.Wrap(err, "select run")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		var last int
		if err := rows.Scan(&name, &last); err != nil {
			return errors.Wrap(err, "scan")
		}
		s.next[name] = last + 1
	}
	return rows.Err()
}

// Append implements Backend
func (s *SQLite) Append(name string, value []float64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", name)
	}

	idx := s.next[name]
	if _, err := s.insert.Exec(s.RunID, name, idx, string(data)); err != nil {
		return errors.Wrapf(err, "insert %s[%d]", name, idx)
	}
	s.next[name] = idx + 1
	return nil
}

// Slice implements Backend
func (s *SQLite) Slice(name string, start, stop int) ([][]float64, error) {
	lo, hi := bounds(s.next[name], start, stop)
	out := make([][]float64, 0, hi-lo)
	if hi == lo {
		return out, nil
	}

	rows, err := s.db.Query(
		`SELECT value FROM draws WHERE run = ? AND name = ? AND idx >= ? AND idx < ? ORDER BY idx`,
		s.RunID, name, lo, hi,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "select %s", name)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "scan")
		}
		var row []float64
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, errors.Wrapf(err, "decode %s", name)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Len implements Backend
func (s *SQLite) Len(name string) (int, error) {
	return s.next[name], nil
}

// Close implements Backend
func (s *SQLite) Close() error {
	if s.insert != nil {
		_ = s.insert.Close()
	}
	return s.db.Close()
}
