// Package storage defines the backend-agnostic contract for the star-schema
// store and a factory registry for its backends.
//
// The interface is intentionally minimal: one upsert per dimension entity, a
// natural-key lookup for fact resolution, and a single bulk append for fact
// rows. Each backend implements these semantics in its own idiomatic way
// (Postgres ON CONFLICT + CopyFrom, SQLite OR IGNORE, SQL Server
// insert-where-not-exists + bulk copy).
package storage

import (
	"context"
	"fmt"
	"sync"

	"musicetl/internal/model"
)

// Config is the minimal configuration needed to open a repository.
//
// Kind must match a registered backend kind. DSN is passed through to the
// backend factory; its validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is a handle on the backing store for the duration of a run.
//
// The repository owns the connection; transactional work happens through Tx.
// Close releases the connection and must be called once at run end.
type Repository interface {
	// Begin opens the unit of work for one source file. The orchestrator owns
	// the transaction boundary: one Begin/Commit pair per file.
	Begin(ctx context.Context) (Tx, error)

	Close()
}

// Tx is the per-file unit of work.
//
// Dimension upserts are idempotent by natural key: songs, artists and time
// rows are immutable (conflict is a no-op), user rows are last-write-wins.
// CopySongplays appends all fact rows of a file as one batch; it either fully
// succeeds or the file's transaction never commits.
//
// LookupSongArtist implements the fact resolver read: exact equality on title
// and artist name, duration equality as stored, first match wins when several
// rows qualify, ok=false on no match. Within a file's transaction it only
// observes dimension rows committed by earlier files, because log-file
// transactions never write songs or artists themselves.
//
// Rollback after a successful Commit is a no-op, so callers can defer it.
type Tx interface {
	UpsertSong(ctx context.Context, s model.Song) error
	UpsertArtist(ctx context.Context, a model.Artist) error
	UpsertTime(ctx context.Context, t model.TimeRow) error
	UpsertUser(ctx context.Context, u model.User) error

	LookupSongArtist(ctx context.Context, title, artist string, duration float64) (songID, artistID string, ok bool, err error)

	CopySongplays(ctx context.Context, plays []model.Songplay) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// LoadError reports a write the store rejected for a reason other than an
// expected upsert conflict (conflicts never surface as errors). It aborts the
// current file's commit.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %s: %v", e.Table, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// ConnectError reports an unreachable store at startup. It is fatal; the
// pipeline performs no retries.
type ConnectError struct {
	Kind string
	Err  error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connect %s: %v", e.Kind, e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package. Registering the
// same kind twice panics; failing fast avoids ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
