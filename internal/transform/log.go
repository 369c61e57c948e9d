package transform

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"musicetl/internal/model"
)

// NextSongPage is the page marker identifying song-play events. Every other
// page value (Login, Help, navigation, ...) is discarded silently.
const NextSongPage = "NextSong"

// Resolver looks up song/artist identifiers by natural key against dimension
// data loaded by earlier commits. A miss is expected steady-state behavior,
// reported as ok=false, never as an error.
type Resolver interface {
	LookupSongArtist(ctx context.Context, title, artist string, duration float64) (songID, artistID string, ok bool, err error)
}

// LogBatch holds everything one log file contributes to the store.
//
// Times contains one row per distinct event timestamp, in first-seen order.
// Users contains one row per distinct user; when events disagree on mutable
// fields, the later event wins. Plays preserves event order.
type LogBatch struct {
	Times []model.TimeRow
	Users []model.User
	Plays []model.Songplay
}

// flexInt64 decodes an integer that the source data serializes sometimes as a
// JSON number and sometimes as a quoted string (userId does both).
type flexInt64 struct {
	val int64
	set bool
}

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("not an integer: %q", s)
	}
	f.val = n
	f.set = true
	return nil
}

// logEvent mirrors one newline-delimited event record.
type logEvent struct {
	Page      string    `json:"page"`
	TS        *int64    `json:"ts"`
	UserID    flexInt64 `json:"userId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Gender    string    `json:"gender"`
	Level     string    `json:"level"`
	Song      string    `json:"song"`
	Artist    string    `json:"artist"`
	Length    float64   `json:"length"`
	SessionID int64     `json:"sessionId"`
	Location  string    `json:"location"`
	UserAgent string    `json:"userAgent"`
}

// Log transforms one log file (newline-delimited JSON events) into a LogBatch.
//
// Per retained event it derives the time row via DeriveTime, accumulates the
// user row, and resolves song/artist identifiers through res. The resolver is
// the only collaborator touched; nothing is written here. Resolver lookups
// read dimension state committed by earlier files, so both identifiers stay
// nil when no exact match exists yet.
//
// A malformed line or a retained event missing ts/userId yields a *ParseError
// carrying the 1-based line number.
func Log(ctx context.Context, r io.Reader, res Resolver) (*LogBatch, error) {
	batch := &LogBatch{}

	seenTS := make(map[int64]struct{})
	userIdx := make(map[int64]int)

	sc := bufio.NewScanner(r)
	// Event lines carry full user agents and location strings; the default
	// scanner limit is too small for some of them.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		var ev logEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		if ev.Page != NextSongPage {
			continue
		}
		if ev.TS == nil {
			return nil, &ParseError{Line: line, Field: "ts", Err: errMissing}
		}
		if !ev.UserID.set {
			return nil, &ParseError{Line: line, Field: "userId", Err: errMissing}
		}

		tr := DeriveTime(*ev.TS)
		if _, dup := seenTS[*ev.TS]; !dup {
			seenTS[*ev.TS] = struct{}{}
			batch.Times = append(batch.Times, tr)
		}

		user := model.User{
			ID:        ev.UserID.val,
			FirstName: ev.FirstName,
			LastName:  ev.LastName,
			Gender:    ev.Gender,
			Level:     ev.Level,
		}
		if i, seen := userIdx[user.ID]; seen {
			batch.Users[i] = user
		} else {
			userIdx[user.ID] = len(batch.Users)
			batch.Users = append(batch.Users, user)
		}

		play := model.Songplay{
			StartTime: tr.StartTime,
			UserID:    ev.UserID.val,
			Level:     ev.Level,
			SessionID: ev.SessionID,
			Location:  ev.Location,
			UserAgent: ev.UserAgent,
		}
		songID, artistID, ok, err := res.LookupSongArtist(ctx, ev.Song, ev.Artist, ev.Length)
		if err != nil {
			return nil, fmt.Errorf("resolve line %d: %w", line, err)
		}
		if ok {
			play.SongID = &songID
			play.ArtistID = &artistID
		}
		batch.Plays = append(batch.Plays, play)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	return batch, nil
}
