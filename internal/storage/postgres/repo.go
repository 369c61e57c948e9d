// Package postgres implements storage.Repository for Postgres via pgx.
//
// Load strategy per the two-tier design:
//   - dimensions: row-by-row INSERT ... ON CONFLICT (immutable dims DO
//     NOTHING, users DO UPDATE for last-write-wins)
//   - songplay facts: a single COPY per file via pgx CopyFrom
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"musicetl/internal/model"
	"musicetl/internal/storage"
)

func init() {
	storage.Register("postgres", New)
}

// Repo implements storage.Repository backed by a pgx pool.
type Repo struct {
	pool *pgxpool.Pool
}

// New opens a pool and verifies connectivity. An unreachable store is a
// storage.ConnectError; the caller treats it as fatal with no retry.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, &storage.ConnectError{Kind: "postgres", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &storage.ConnectError{Kind: "postgres", Err: err}
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps one pgx transaction: the unit of work for one source file.
type Tx struct {
	tx pgx.Tx
}

// The statement texts below are the fixed parameterized contract with the
// schema catalog: positions and types are fixed per entity.
const (
	songInsert = `INSERT INTO songs (song_id, title, artist_id, year, duration)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (song_id) DO NOTHING`

	artistInsert = `INSERT INTO artists (artist_id, name, location, latitude, longitude)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (artist_id) DO NOTHING`

	timeInsert = `INSERT INTO time (start_time, hour, day, week, month, year, weekday)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (start_time) DO NOTHING`

	userInsert = `INSERT INTO users (user_id, first_name, last_name, gender, level)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO UPDATE SET
  first_name = EXCLUDED.first_name,
  last_name  = EXCLUDED.last_name,
  gender     = EXCLUDED.gender,
  level      = EXCLUDED.level`

	songArtistSelect = `SELECT s.song_id, s.artist_id
FROM songs s
JOIN artists a ON s.artist_id = a.artist_id
WHERE s.title = $1 AND a.name = $2 AND s.duration = $3
LIMIT 1`
)

func (t *Tx) UpsertSong(ctx context.Context, s model.Song) error {
	if _, err := t.tx.Exec(ctx, songInsert, s.ID, s.Title, s.ArtistID, s.Year, s.Duration); err != nil {
		return &storage.LoadError{Table: "songs", Err: err}
	}
	return nil
}

func (t *Tx) UpsertArtist(ctx context.Context, a model.Artist) error {
	if _, err := t.tx.Exec(ctx, artistInsert, a.ID, a.Name, a.Location, a.Latitude, a.Longitude); err != nil {
		return &storage.LoadError{Table: "artists", Err: err}
	}
	return nil
}

func (t *Tx) UpsertTime(ctx context.Context, tr model.TimeRow) error {
	if _, err := t.tx.Exec(ctx, timeInsert,
		tr.StartTime, tr.Hour, tr.Day, tr.Week, tr.Month, tr.Year, tr.Weekday); err != nil {
		return &storage.LoadError{Table: "time", Err: err}
	}
	return nil
}

func (t *Tx) UpsertUser(ctx context.Context, u model.User) error {
	if _, err := t.tx.Exec(ctx, userInsert, u.ID, u.FirstName, u.LastName, u.Gender, u.Level); err != nil {
		return &storage.LoadError{Table: "users", Err: err}
	}
	return nil
}

// LookupSongArtist resolves a fact event's foreign keys by natural key.
// A miss returns ok=false and no error. When several rows qualify the first
// one wins; ambiguity is not an error condition here.
func (t *Tx) LookupSongArtist(ctx context.Context, title, artist string, duration float64) (string, string, bool, error) {
	var songID, artistID string
	err := t.tx.QueryRow(ctx, songArtistSelect, title, artist, duration).Scan(&songID, &artistID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return songID, artistID, true, nil
}

// CopySongplays appends all fact rows of one file in a single COPY.
// COPY inside the file's transaction gives the all-or-nothing batch: if it
// fails partway nothing becomes visible, because the transaction never
// commits.
func (t *Tx) CopySongplays(ctx context.Context, plays []model.Songplay) (int64, error) {
	if len(plays) == 0 {
		return 0, nil
	}

	cols := []string{"start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent"}
	n, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"songplays"},
		cols,
		pgx.CopyFromSlice(len(plays), func(i int) ([]any, error) {
			p := plays[i]
			return []any{p.StartTime, p.UserID, p.Level, p.SongID, p.ArtistID, p.SessionID, p.Location, p.UserAgent}, nil
		}),
	)
	if err != nil {
		return 0, &storage.LoadError{Table: "songplays", Err: err}
	}
	return n, nil
}

func (t *Tx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
