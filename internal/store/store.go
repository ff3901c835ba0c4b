// Package store keeps a SQLite log of every plate the pipeline emits.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MeKo-Tech/plategate/internal/plate"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

const (
	// DefaultRecentLimit is used when Recent is called with limit <= 0.
	DefaultRecentLimit = 50
	// MaxRecentLimit caps a single Recent query.
	MaxRecentLimit = 1000

	// observedLayout is fixed width so rows sort lexically by time.
	observedLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("store closed")

// Store is a plate event log backed by SQLite. It is safe for concurrent
// use, including Close racing with queries.
type Store struct {
	db   atomic.Pointer[sql.DB]
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Store{path: path, now: time.Now}
	s.db.Store(db)
	if err := s.MigrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// conn returns the open database or ErrClosed.
func (s *Store) conn() (*sql.DB, error) {
	db := s.db.Load()
	if db == nil {
		return nil, ErrClosed
	}
	return db, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Record inserts ev and returns it with its assigned ID. A zero timestamp is
// replaced with the current time.
func (s *Store) Record(ctx context.Context, ev plate.Event) (plate.Event, error) {
	db, err := s.conn()
	if err != nil {
		return ev, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO plate_events
			(id, plate, confidence, x1, y1, x2, y2, direction, delivered, parking_id, camera_id, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Plate, ev.Confidence,
		ev.Box.X1, ev.Box.Y1, ev.Box.X2, ev.Box.Y2,
		string(ev.Direction), ev.Delivered, ev.ParkingID, ev.CameraID,
		ev.Timestamp.UTC().Format(observedLayout),
	)
	if err != nil {
		return ev, fmt.Errorf("failed to record plate %s: %w", ev.Plate, err)
	}
	return ev, nil
}

// Publish records ev, discarding the assigned ID. It lets the store act as a
// pipeline sink.
func (s *Store) Publish(ctx context.Context, ev plate.Event) error {
	_, err := s.Record(ctx, ev)
	return err
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]plate.Event, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, MaxRecentLimit)

	rows, err := db.QueryContext(ctx, `
		SELECT id, plate, confidence, x1, y1, x2, y2, direction, delivered, parking_id, camera_id, observed_at
		FROM plate_events
		ORDER BY observed_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent plates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]plate.Event, 0, limit)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recent plates: %w", err)
	}
	return events, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM plate_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count plates: %w", err)
	}
	return n, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	db := s.db.Swap(nil)
	if db == nil {
		return nil
	}
	return db.Close()
}

func scanEvent(rows *sql.Rows) (plate.Event, error) {
	var (
		ev        plate.Event
		box       utils.Box
		direction string
		observed  string
	)
	err := rows.Scan(&ev.ID, &ev.Plate, &ev.Confidence,
		&box.X1, &box.Y1, &box.X2, &box.Y2,
		&direction, &ev.Delivered, &ev.ParkingID, &ev.CameraID, &observed)
	if err != nil {
		return ev, fmt.Errorf("failed to scan plate row: %w", err)
	}
	ts, err := time.Parse(observedLayout, observed)
	if err != nil {
		return ev, fmt.Errorf("invalid observed_at %q: %w", observed, err)
	}
	ev.Box = box
	ev.Direction = plate.Direction(direction)
	ev.Timestamp = ts
	return ev, nil
}
