// Package sqlite implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no timezone-aware timestamp type; start_time values are
//     stored as RFC3339Nano strings for reliable round-trip behavior and easy
//     debugging.
//   - Immutable dimension upserts use INSERT OR IGNORE; the mutable users
//     dimension uses ON CONFLICT ... DO UPDATE for last-write-wins.
//   - The fact bulk append is a chunked multi-row INSERT inside the file's
//     transaction, which gives the same all-or-nothing semantics as COPY.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"musicetl/internal/model"
	"musicetl/internal/storage"
)

func init() {
	storage.Register("sqlite", New)
}

// Repo implements storage.Repository backed by database/sql over
// modernc.org/sqlite.
type Repo struct {
	db *sql.DB
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, &storage.ConnectError{Kind: "sqlite", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &storage.ConnectError{Kind: "sqlite", Err: err}
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps one SQLite transaction: the unit of work for one source file.
type Tx struct {
	tx *sql.Tx
}

const (
	songInsert = `INSERT OR IGNORE INTO songs (song_id, title, artist_id, year, duration)
VALUES (?, ?, ?, ?, ?)`

	artistInsert = `INSERT OR IGNORE INTO artists (artist_id, name, location, latitude, longitude)
VALUES (?, ?, ?, ?, ?)`

	timeInsert = `INSERT OR IGNORE INTO time (start_time, hour, day, week, month, year, weekday)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	userInsert = `INSERT INTO users (user_id, first_name, last_name, gender, level)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
  first_name = excluded.first_name,
  last_name  = excluded.last_name,
  gender     = excluded.gender,
  level      = excluded.level`

	songArtistSelect = `SELECT s.song_id, s.artist_id
FROM songs s
JOIN artists a ON s.artist_id = a.artist_id
WHERE s.title = ? AND a.name = ? AND s.duration = ?
LIMIT 1`
)

func (t *Tx) UpsertSong(ctx context.Context, s model.Song) error {
	if _, err := t.tx.ExecContext(ctx, songInsert, s.ID, s.Title, s.ArtistID, s.Year, s.Duration); err != nil {
		return &storage.LoadError{Table: "songs", Err: err}
	}
	return nil
}

func (t *Tx) UpsertArtist(ctx context.Context, a model.Artist) error {
	if _, err := t.tx.ExecContext(ctx, artistInsert, a.ID, a.Name, a.Location, a.Latitude, a.Longitude); err != nil {
		return &storage.LoadError{Table: "artists", Err: err}
	}
	return nil
}

func (t *Tx) UpsertTime(ctx context.Context, tr model.TimeRow) error {
	if _, err := t.tx.ExecContext(ctx, timeInsert,
		formatTime(tr.StartTime), tr.Hour, tr.Day, tr.Week, tr.Month, tr.Year, tr.Weekday); err != nil {
		return &storage.LoadError{Table: "time", Err: err}
	}
	return nil
}

func (t *Tx) UpsertUser(ctx context.Context, u model.User) error {
	if _, err := t.tx.ExecContext(ctx, userInsert, u.ID, u.FirstName, u.LastName, u.Gender, u.Level); err != nil {
		return &storage.LoadError{Table: "users", Err: err}
	}
	return nil
}

func (t *Tx) LookupSongArtist(ctx context.Context, title, artist string, duration float64) (string, string, bool, error) {
	var songID, artistID string
	err := t.tx.QueryRowContext(ctx, songArtistSelect, title, artist, duration).Scan(&songID, &artistID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return songID, artistID, true, nil
}

// CopySongplays appends fact rows as chunked multi-row inserts.
//
// Chunking keeps the bind-parameter count well below SQLite's limit. All
// chunks run inside the file's transaction, so the batch is still
// all-or-nothing.
func (t *Tx) CopySongplays(ctx context.Context, plays []model.Songplay) (int64, error) {
	if len(plays) == 0 {
		return 0, nil
	}

	const cols = 8
	const chunk = 500

	var total int64
	for start := 0; start < len(plays); start += chunk {
		end := start + chunk
		if end > len(plays) {
			end = len(plays)
		}
		part := plays[start:end]

		var b strings.Builder
		b.WriteString("INSERT INTO songplays (start_time, user_id, level, song_id, artist_id, session_id, location, user_agent) VALUES ")

		args := make([]any, 0, len(part)*cols)
		for i, p := range part {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				formatTime(p.StartTime), p.UserID, p.Level,
				p.SongID, p.ArtistID, p.SessionID, p.Location, p.UserAgent)
		}

		res, err := t.tx.ExecContext(ctx, b.String(), args...)
		if err != nil {
			return total, &storage.LoadError{Table: "songplays", Err: err}
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit() }

func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback() }

// formatTime renders a timestamp as an RFC3339Nano UTC string, the canonical
// start_time representation for this backend.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime reads a start_time value back. It accepts RFC3339Nano and the
// plain RFC3339 form SQLite tools sometimes produce.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("sqlite: unparseable time %q", s)
}
