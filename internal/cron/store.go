// Package cron persists the scheduled reminders and calendar events created
// by the remind_me and calendar_add_event tools (spec §4.9's native tool
// set). It is a single-user repurposing of the teacher's per-chat cron
// store: one SQLite table, no chat/user scoping.
package cron

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind distinguishes a one-shot calendar event from a recurring reminder.
type Kind string

const (
	KindReminder Kind = "reminder"
	KindEvent    Kind = "event"
)

// Entry is a single scheduled reminder or calendar event.
type Entry struct {
	ID        int64
	Kind      Kind
	Keyword   string // memory-recall search term / event summary
	Schedule  string // cron expression; empty for a one-shot event
	NextRun   time.Time
	ExpiresAt *time.Time // auto-delete after this time (nil = never)
	CreatedAt time.Time
}

// Store manages reminder/event persistence.
type Store struct {
	db *sql.DB
}

// cronParser is configured for standard 5-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    keyword TEXT NOT NULL,
    schedule TEXT NOT NULL DEFAULT '',
    expires_at DATETIME,
    next_run DATETIME NOT NULL,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_scheduled_entries_next_run ON scheduled_entries(next_run);
`

// NewStore opens a reminder/event store against db, creating its table if
// absent.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// CreateRecurring schedules a recurring reminder from a cron expression
// (backs remind_me when given a repeating schedule).
func (s *Store) CreateRecurring(kind Kind, keyword, schedule string, expiresAt *time.Time) (*Entry, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule: %w", err)
	}
	return s.insert(kind, keyword, schedule, sched.Next(time.Now()), expiresAt)
}

// CreateOnce schedules a one-shot firing at a specific time (backs
// calendar_add_event and remind_me's "remind me at <time>" form).
func (s *Store) CreateOnce(kind Kind, keyword string, at time.Time) (*Entry, error) {
	return s.insert(kind, keyword, "", at, nil)
}

func (s *Store) insert(kind Kind, keyword, schedule string, nextRun time.Time, expiresAt *time.Time) (*Entry, error) {
	result, err := s.db.Exec(`
		INSERT INTO scheduled_entries (kind, keyword, schedule, expires_at, next_run)
		VALUES (?, ?, ?, ?, ?)`,
		string(kind), keyword, schedule, expiresAt, nextRun)
	if err != nil {
		return nil, err
	}
	id, _ := result.LastInsertId()
	return &Entry{
		ID:        id,
		Kind:      kind,
		Keyword:   keyword,
		Schedule:  schedule,
		NextRun:   nextRun,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// GetDue returns entries whose next_run has arrived and haven't expired.
func (s *Store) GetDue() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, keyword, schedule, expires_at, next_run, created_at
		FROM scheduled_entries
		WHERE next_run <= datetime('now')
		AND (expires_at IS NULL OR expires_at > datetime('now'))`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scan(rows)
}

// All returns every non-expired entry, soonest first.
func (s *Store) All() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, keyword, schedule, expires_at, next_run, created_at
		FROM scheduled_entries
		WHERE expires_at IS NULL OR expires_at > datetime('now')
		ORDER BY next_run ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scan(rows)
}

// AdvanceRecurring reschedules a recurring entry's next_run after it fires,
// or deletes it if it was a one-shot (empty schedule).
func (s *Store) AdvanceRecurring(e Entry) error {
	if e.Schedule == "" {
		return s.Delete(e.ID)
	}
	sched, err := cronParser.Parse(e.Schedule)
	if err != nil {
		return err
	}
	from := time.Now()
	if e.NextRun.After(from) {
		from = e.NextRun
	}
	_, err = s.db.Exec(`UPDATE scheduled_entries SET next_run = ? WHERE id = ?`, sched.Next(from), e.ID)
	return err
}

// Delete removes an entry by ID.
func (s *Store) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_entries WHERE id = ?`, id)
	return err
}

// DeleteByKeyword removes every entry matching keyword exactly.
func (s *Store) DeleteByKeyword(keyword string) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_entries WHERE keyword = ?`, keyword)
	return err
}

// DeleteExpired removes entries past their expiry date, returning the count.
func (s *Store) DeleteExpired() (int, error) {
	result, err := s.db.Exec(`DELETE FROM scheduled_entries WHERE expires_at IS NOT NULL AND expires_at <= datetime('now')`)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (s *Store) scan(rows *sql.Rows) ([]Entry, error) {
	parseTime := func(v string) time.Time {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
		return time.Time{}
	}

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		var expiresAt, nextRun, createdAt *string

		if err := rows.Scan(&e.ID, &kind, &e.Keyword, &e.Schedule, &expiresAt, &nextRun, &createdAt); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)

		if expiresAt != nil {
			t := parseTime(*expiresAt)
			e.ExpiresAt = &t
		}
		if nextRun != nil {
			e.NextRun = parseTime(*nextRun)
		}
		if createdAt != nil {
			e.CreatedAt = parseTime(*createdAt)
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ComputeNextRun calculates the next firing time for a cron expression.
func ComputeNextRun(schedule string) (time.Time, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(time.Now()), nil
}
