package history

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("history: not found")

// Session is one supervised agent run.
type Session struct {
	ID        string    `json:"id"`
	AgentPath string    `json:"agent_path"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Result    string    `json:"result,omitempty"`
}

// Ended reports whether the session has finished.
func (s *Session) Ended() bool { return !s.EndedAt.IsZero() }

// StartSession records a new session.
func (d *DB) StartSession(s *Session) error {
	_, err := d.db.Exec(`
		INSERT INTO sessions (id, agent_path, pid, started_at)
		VALUES (?, ?, ?, ?)
	`, s.ID, s.AgentPath, s.PID, formatTime(s.StartedAt))
	return err
}

// SetSessionPID records the agent process id once it is known.
func (d *DB) SetSessionPID(id string, pid int) error {
	return d.exec1(`UPDATE sessions SET pid = ? WHERE id = ?`, pid, id)
}

// EndSession marks a session finished with a human-readable result. An
// empty result means a clean exit.
func (d *DB) EndSession(id string, endedAt time.Time, result string) error {
	return d.exec1(`
		UPDATE sessions SET ended_at = ?, result = ? WHERE id = ?
	`, formatTime(endedAt), result, id)
}

// GetSession retrieves a session by ID.
func (d *DB) GetSession(id string) (*Session, error) {
	row := d.db.QueryRow(`
		SELECT id, agent_path, pid, started_at, ended_at, result
		FROM sessions WHERE id = ?
	`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListSessions returns the most recent sessions first, at most limit.
// limit <= 0 returns all.
func (d *DB) ListSessions(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query(`
		SELECT id, agent_path, pid, started_at, ended_at, result
		FROM sessions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s                  Session
		startedAt, endedAt string
	)
	if err := row.Scan(&s.ID, &s.AgentPath, &s.PID, &startedAt, &endedAt, &s.Result); err != nil {
		return nil, err
	}
	s.StartedAt = parseTime(startedAt)
	if endedAt != "" {
		s.EndedAt = parseTime(endedAt)
	}
	return &s, nil
}

func (d *DB) exec1(query string, args ...any) error {
	res, err := d.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
