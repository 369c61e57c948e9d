// Package mssql implements storage.Repository for SQL Server.
//
// Key design points:
//   - Avoids MERGE. Immutable dimensions use an insert-where-not-exists
//     pattern; the mutable users dimension uses UPDATE then
//     IF @@ROWCOUNT = 0 INSERT, which is last-write-wins without the MERGE
//     locking pitfalls.
//   - The fact bulk append uses the driver's bulk copy (mssql.CopyIn) inside
//     the file's transaction.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"

	"musicetl/internal/model"
	"musicetl/internal/storage"
)

func init() {
	storage.Register("sqlserver", New)
}

// Repo implements storage.Repository backed by database/sql over go-mssqldb.
type Repo struct {
	db *sql.DB
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, &storage.ConnectError{Kind: "sqlserver", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &storage.ConnectError{Kind: "sqlserver", Err: err}
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

// Tx wraps one SQL Server transaction: the unit of work for one source file.
type Tx struct {
	tx *sql.Tx
}

const (
	songInsert = `IF NOT EXISTS (SELECT 1 FROM songs WHERE song_id = @p1)
INSERT INTO songs (song_id, title, artist_id, year, duration)
VALUES (@p1, @p2, @p3, @p4, @p5)`

	artistInsert = `IF NOT EXISTS (SELECT 1 FROM artists WHERE artist_id = @p1)
INSERT INTO artists (artist_id, name, location, latitude, longitude)
VALUES (@p1, @p2, @p3, @p4, @p5)`

	timeInsert = `IF NOT EXISTS (SELECT 1 FROM time WHERE start_time = @p1)
INSERT INTO time (start_time, hour, day, week, month, year, weekday)
VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7)`

	userUpsert = `UPDATE users SET first_name = @p2, last_name = @p3, gender = @p4, level = @p5 WHERE user_id = @p1;
IF @@ROWCOUNT = 0
INSERT INTO users (user_id, first_name, last_name, gender, level)
VALUES (@p1, @p2, @p3, @p4, @p5);`

	songArtistSelect = `SELECT TOP 1 s.song_id, s.artist_id
FROM songs s
JOIN artists a ON s.artist_id = a.artist_id
WHERE s.title = @p1 AND a.name = @p2 AND s.duration = @p3`
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
		tr.StartTime, tr.Hour, tr.Day, tr.Week, tr.Month, tr.Year, tr.Weekday); err != nil {
		return &storage.LoadError{Table: "time", Err: err}
	}
	return nil
}

func (t *Tx) UpsertUser(ctx context.Context, u model.User) error {
	if _, err := t.tx.ExecContext(ctx, userUpsert, u.ID, u.FirstName, u.LastName, u.Gender, u.Level); err != nil {
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

// CopySongplays appends fact rows through the driver's bulk copy. The bulk
// statement participates in the file's transaction, so a mid-batch failure
// leaves nothing visible.
func (t *Tx) CopySongplays(ctx context.Context, plays []model.Songplay) (int64, error) {
	if len(plays) == 0 {
		return 0, nil
	}

	stmt, err := t.tx.PrepareContext(ctx, mssql.CopyIn("songplays", mssql.BulkOptions{},
		"start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent"))
	if err != nil {
		return 0, &storage.LoadError{Table: "songplays", Err: fmt.Errorf("prepare bulk copy: %w", err)}
	}
	defer stmt.Close()

	for _, p := range plays {
		var songID, artistID any
		if p.SongID != nil {
			songID = *p.SongID
		}
		if p.ArtistID != nil {
			artistID = *p.ArtistID
		}
		if _, err := stmt.ExecContext(ctx,
			p.StartTime, p.UserID, p.Level, songID, artistID, p.SessionID, p.Location, p.UserAgent); err != nil {
			return 0, &storage.LoadError{Table: "songplays", Err: err}
		}
	}

	// The final Exec with no args flushes the bulk batch.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, &storage.LoadError{Table: "songplays", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit() }

func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback() }
