// Package journal keeps a SQLite history of wake cycles.
package journal

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sweeney/relay-clock/internal/cycle"
)

const schema = `
	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		startedAt REAL NOT NULL,
		endedAt REAL NOT NULL,
		mode TEXT NOT NULL,
		path TEXT NOT NULL,
		calendar TEXT NOT NULL,
		displayed TEXT NOT NULL,
		pulses INTEGER NOT NULL,
		unplugged INTEGER NOT NULL,
		fullRelatch INTEGER NOT NULL,
		dst TEXT NOT NULL,
		renderError TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(startedAt);
`

// Entry is one recorded cycle.
type Entry struct {
	ID          int64     `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Mode        string    `json:"mode"`
	Path        string    `json:"path"`
	Calendar    string    `json:"calendar"`
	Displayed   string    `json:"displayed"`
	Pulses      int       `json:"pulses"`
	Unplugged   bool      `json:"unplugged"`
	FullRelatch bool      `json:"full_relatch"`
	DST         string    `json:"dst"`
	RenderError string    `json:"render_error,omitempty"`
}

// Store is the cycle journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One connection keeps an in-memory database alive and serialises writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends a cycle report.
func (s *Store) Record(rep cycle.Report) error {
	var renderErr sql.NullString
	if rep.RenderError != "" {
		renderErr = sql.NullString{String: rep.RenderError, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO cycles (startedAt, endedAt, mode, path, calendar, displayed,
			pulses, unplugged, fullRelatch, dst, renderError)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, unixFromTime(rep.Start), unixFromTime(rep.End), string(rep.Mode), rep.PathString(),
		rep.Calendar.String(), rep.Sample.String(), rep.Pulses.Total(),
		rep.Unplugged, rep.FullRelatch, string(rep.DST), renderErr)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

// Recent returns up to limit cycles, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, startedAt, endedAt, mode, path, calendar, displayed,
			pulses, unplugged, fullRelatch, dst, renderError
		FROM cycles
		ORDER BY startedAt DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var startedAt, endedAt float64
		var renderErr sql.NullString
		if err := rows.Scan(&e.ID, &startedAt, &endedAt, &e.Mode, &e.Path, &e.Calendar,
			&e.Displayed, &e.Pulses, &e.Unplugged, &e.FullRelatch, &e.DST, &renderErr); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		e.StartedAt = timeFromUnix(startedAt)
		e.EndedAt = timeFromUnix(endedAt)
		e.RenderError = renderErr.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes cycles that started before cutoff and returns how many went.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM cycles WHERE startedAt < ?`, unixFromTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	return res.RowsAffected()
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
