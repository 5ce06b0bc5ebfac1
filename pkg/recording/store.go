// Package recording stores tracker sessions in SQLite and plays them back as
// a facetrack.Resource.
package recording

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/teslashibe/go-mocap/pkg/pose"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("recording: session not found")

// Session describes one recorded tracker run.
type Session struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Names      []string   `json:"names"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	FrameCount int        `json:"frame_count"`
}

// Duration is the recorded length, or zero for a session still open.
func (s Session) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Frame is one recorded tracker frame. Values hold only the tracker's own
// blendshapes; head sliders are derived from Rotation on playback.
type Frame struct {
	Seq      uint64          `json:"seq"`
	Offset   time.Duration   `json:"offset"`
	Tracked  bool            `json:"tracked"`
	Values   []float64       `json:"values"`
	Rotation pose.Quaternion `json:"rotation"`
}

// Store is a SQLite session database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("recording: open %s: %w", path, err)
	}
	// One writer; also keeps pragmas on a single connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger.With("component", "recording.store")}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: s.logger}
	return m, nil
}

// migrateUp runs all pending migrations. The migrate instance is not closed
// because that would close the shared *sql.DB.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// CreateSession starts a new session with the given external names.
func (s *Store) CreateSession(ctx context.Context, source string, names []string) (Session, error) {
	if names == nil {
		names = []string{}
	}
	encoded, err := json.Marshal(names)
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		ID:        uuid.NewString(),
		Source:    source,
		Names:     names,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source, names, started_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Source, string(encoded), sess.StartedAt.UnixMilli())
	if err != nil {
		return Session{}, fmt.Errorf("recording: create session: %w", err)
	}
	return sess, nil
}

// AppendFrames writes frames to a session in one transaction.
func (s *Store) AppendFrames(ctx context.Context, sessionID string, frames []Frame) error {
	if len(frames) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO frames (session_id, seq, offset_ms, tracked, vals, qx, qy, qz, qw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range frames {
		vals := f.Values
		if vals == nil {
			vals = []float64{}
		}
		encoded, err := json.Marshal(vals)
		if err != nil {
			return err
		}
		q := f.Rotation
		if _, err := stmt.ExecContext(ctx, sessionID, int64(f.Seq), f.Offset.Milliseconds(),
			f.Tracked, string(encoded), q.X, q.Y, q.Z, q.W); err != nil {
			return fmt.Errorf("recording: append frame %d: %w", f.Seq, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET frame_count = frame_count + ? WHERE id = ?`, len(frames), sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return tx.Commit()
}

// EndSession marks a session finished.
func (s *Store) EndSession(ctx context.Context, sessionID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`, at.UnixMilli(), sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

const sessionColumns = `id, source, names, started_at, ended_at, frame_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		sess    Session
		names   string
		started int64
		ended   sql.NullInt64
	)
	if err := row.Scan(&sess.ID, &sess.Source, &names, &started, &ended, &sess.FrameCount); err != nil {
		return Session{}, err
	}
	if err := json.Unmarshal([]byte(names), &sess.Names); err != nil {
		return Session{}, fmt.Errorf("recording: session %s names: %w", sess.ID, err)
	}
	sess.StartedAt = time.UnixMilli(started).UTC()
	if ended.Valid {
		t := time.UnixMilli(ended.Int64).UTC()
		sess.EndedAt = &t
	}
	return sess, nil
}

// Session returns one session.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, err
}

// Sessions lists sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Latest returns the most recently started session.
func (s *Store) Latest(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: no sessions recorded", ErrSessionNotFound)
	}
	return sess, err
}

// Frames returns a session's frames in sequence order.
func (s *Store) Frames(ctx context.Context, sessionID string) ([]Frame, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, offset_ms, tracked, vals, qx, qy, qz, qw
		FROM frames WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	frames := []Frame{}
	for rows.Next() {
		var (
			f      Frame
			seq    int64
			offset int64
			vals   string
		)
		if err := rows.Scan(&seq, &offset, &f.Tracked, &vals,
			&f.Rotation.X, &f.Rotation.Y, &f.Rotation.Z, &f.Rotation.W); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vals), &f.Values); err != nil {
			return nil, fmt.Errorf("recording: frame %d values: %w", seq, err)
		}
		f.Seq = uint64(seq)
		f.Offset = time.Duration(offset) * time.Millisecond
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// DeleteSession removes a session and its frames.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE session_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return tx.Commit()
}
