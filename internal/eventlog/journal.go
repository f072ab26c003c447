package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	// SQLite driver, referenced only through the connection string.
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Event is one journaled lifecycle entry.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	LeagueID  string    `json:"leagueId"`
	Detail    string    `json:"detail"`
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at DATETIME NOT NULL,
	event TEXT NOT NULL,
	league_id TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
`

type writeOperation struct {
	event     string
	leagueID  string
	detail    string
	timestamp time.Time
}

// Journal records room and connection lifecycle events for operators. Writes
// go through a single goroutine, which is what SQLite wants; recording is
// fire-and-forget so the hot path never waits on disk.
type Journal struct {
	db       *sql.DB
	logger   *logrus.Logger
	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New opens (or creates) the journal database.
func New(path string, logger *logrus.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create event journal schema: %w", err)
	}

	j := &Journal{
		db:       db,
		logger:   logger,
		writeCh:  make(chan writeOperation, 100),
		shutdown: make(chan struct{}),
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j, nil
}

// Record journals one event. Non-blocking: a full queue drops the entry with
// a log line rather than stalling a room operation.
func (j *Journal) Record(event, leagueID, detail string) {
	j.mu.RLock()
	closed := j.closed
	j.mu.RUnlock()
	if closed {
		return
	}

	op := writeOperation{event: event, leagueID: leagueID, detail: detail, timestamp: time.Now().UTC()}
	select {
	case j.writeCh <- op:
	default:
		j.logger.WithField("event", event).Warn("Event journal queue full, dropping entry")
	}
}

// Recent returns the newest entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, created_at, event, league_id, detail FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Event, &e.LeagueID, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close drains pending writes and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	close(j.shutdown)
	j.wg.Wait()
	return j.db.Close()
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for {
		select {
		case op := <-j.writeCh:
			j.insert(op)
		case <-j.shutdown:
			// Drain what is already queued before exiting.
			for {
				select {
				case op := <-j.writeCh:
					j.insert(op)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) insert(op writeOperation) {
	_, err := j.db.Exec(
		`INSERT INTO events (created_at, event, league_id, detail) VALUES (?, ?, ?, ?)`,
		op.timestamp, op.event, op.leagueID, op.detail)
	if err != nil {
		j.logger.WithError(err).Warn("Event journal write failed")
	}
}
