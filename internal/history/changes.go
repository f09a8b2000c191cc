package history

import (
	"context"
	"time"

	"github.com/xfeldman/vros/internal/protocol"
)

// Change is one reported scene application. Key and Name are empty when
// the application was cleared.
type Change struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Key       string    `json:"key,omitempty"`
	Name      string    `json:"name,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// Cleared reports whether the change cleared the scene application.
func (c *Change) Cleared() bool { return c.Key == "" }

// RecordChange appends a change.
func (d *DB) RecordChange(ctx context.Context, c *Change) error {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO app_changes (session_id, app_key, app_name, changed_at)
		VALUES (?, ?, ?, ?)
	`, c.SessionID, c.Key, c.Name, formatTime(c.ChangedAt))
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

// Recent returns the latest changes, newest first, at most limit. An
// empty sessionID includes every session. limit <= 0 returns all.
func (d *DB) Recent(sessionID string, limit int) ([]*Change, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query(`
		SELECT id, session_id, app_key, app_name, changed_at
		FROM app_changes
		WHERE ? = '' OR session_id = ?
		ORDER BY id DESC LIMIT ?
	`, sessionID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*Change
	for rows.Next() {
		var (
			c         Change
			changedAt string
		)
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Key, &c.Name, &changedAt); err != nil {
			return nil, err
		}
		c.ChangedAt = parseTime(changedAt)
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}

// Recorder stores the application updates of one session. It satisfies
// the host's sink interface.
type Recorder struct {
	db        *DB
	sessionID string
	now       func() time.Time
}

// Recorder returns a Recorder for sessionID.
func (d *DB) Recorder(sessionID string) *Recorder {
	return &Recorder{db: d, sessionID: sessionID, now: time.Now}
}

// Publish records msg.
func (r *Recorder) Publish(ctx context.Context, msg protocol.ApplicationName) error {
	c := &Change{SessionID: r.sessionID, ChangedAt: r.now()}
	if app := msg.Application; app != nil {
		c.Key, c.Name = app.Key, app.Name
	}
	return r.db.RecordChange(ctx, c)
}
