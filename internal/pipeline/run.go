// Package pipeline orchestrates the transform-and-load run.
//
// The run is single-threaded and fully sequential: one file is parsed,
// derived, resolved, loaded and committed before the next begins. Files
// commit in enumeration order; the first file failure halts the run. There is
// no skip-and-continue and no retry.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"musicetl/internal/config"
	"musicetl/internal/metrics"
	"musicetl/internal/source"
	"musicetl/internal/storage"
	"musicetl/internal/transform"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner drives one ETL run end to end.
//
// NewRepository is a storage-agnostic factory seam; tests inject fakes or an
// on-disk SQLite repository through it. Out receives the user-visible
// progress lines; it defaults to stdout.
type Runner struct {
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	Logger        Logger
	Out           io.Writer
}

// NewDefaultRunner returns a Runner wired to the registered storage backends.
func NewDefaultRunner() *Runner {
	return &Runner{
		NewRepository: storage.New,
		Out:           os.Stdout,
	}
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return os.Stdout
	}
	return r.Out
}

func (r *Runner) logf(format string, v ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, v...)
	}
}

// Run opens the repository, loads the song-metadata root and then the
// event-log root, and closes the repository. Song files must be processed
// first: log-file fact resolution reads dimension rows committed by the song
// pass (and earlier runs).
func (r *Runner) Run(ctx context.Context, cfg config.Pipeline) error {
	repo, err := r.NewRepository(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		return err
	}
	defer repo.Close()

	ext := cfg.Source.Extension
	if ext == "" {
		ext = ".json"
	}

	if err := r.processDir(ctx, repo, cfg.Source.SongData, ext, r.songFile); err != nil {
		return err
	}
	return r.processDir(ctx, repo, cfg.Source.LogData, ext, r.logFile)
}

// processDir enumerates one data root and processes every matching file in
// order, committing once per file and emitting a progress line after each.
func (r *Runner) processDir(
	ctx context.Context,
	repo storage.Repository,
	root, ext string,
	apply func(ctx context.Context, tx storage.Tx, path string) error,
) error {
	files, err := source.List(root, ext)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out(), "%d files found in %s\n", len(files), root)

	for i, path := range files {
		start := time.Now()
		if err := r.processFile(ctx, repo, path, apply); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		metrics.IncCounter("etl.files_processed", 1)
		metrics.ObserveDuration("etl.file_duration", time.Since(start))

		fmt.Fprintf(r.out(), "%d/%d files processed.\n", i+1, len(files))
	}
	return nil
}

// processFile runs one file inside its own transaction. Rollback after a
// successful commit is a no-op, so it is safe to defer unconditionally.
func (r *Runner) processFile(
	ctx context.Context,
	repo storage.Repository,
	path string,
	apply func(ctx context.Context, tx storage.Tx, path string) error,
) error {
	tx, err := repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := apply(ctx, tx, path); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// songFile loads one song-metadata file: one song row and one artist row.
// The artist goes first so a foreign key from songs.artist_id is satisfiable.
func (r *Runner) songFile(ctx context.Context, tx storage.Tx, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	song, artist, err := transform.Song(f)
	if err != nil {
		return err
	}

	if err := tx.UpsertArtist(ctx, artist); err != nil {
		return err
	}
	if err := tx.UpsertSong(ctx, song); err != nil {
		return err
	}

	metrics.IncCounter("etl.rows_written", 1, "table:artists")
	metrics.IncCounter("etl.rows_written", 1, "table:songs")
	return nil
}

// logFile loads one event-log file: time and user dimension rows first, then
// the file's songplay facts as a single batch. The transaction's lookup is
// the transform's resolver; it only observes dimension rows committed by
// earlier files.
func (r *Runner) logFile(ctx context.Context, tx storage.Tx, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	batch, err := transform.Log(ctx, f, tx)
	if err != nil {
		return err
	}

	for _, t := range batch.Times {
		if err := tx.UpsertTime(ctx, t); err != nil {
			return err
		}
	}
	for _, u := range batch.Users {
		if err := tx.UpsertUser(ctx, u); err != nil {
			return err
		}
	}

	n, err := tx.CopySongplays(ctx, batch.Plays)
	if err != nil {
		return err
	}

	misses := 0
	for _, p := range batch.Plays {
		if p.SongID == nil {
			misses++
		}
	}

	metrics.IncCounter("etl.rows_written", float64(len(batch.Times)), "table:time")
	metrics.IncCounter("etl.rows_written", float64(len(batch.Users)), "table:users")
	metrics.IncCounter("etl.rows_written", float64(n), "table:songplays")
	metrics.IncCounter("etl.resolver_misses", float64(misses))

	r.logf("file=%s plays=%d times=%d users=%d resolver_misses=%d",
		path, len(batch.Plays), len(batch.Times), len(batch.Users), misses)
	return nil
}
