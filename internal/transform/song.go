package transform

import (
	"encoding/json"
	"io"

	"musicetl/internal/model"
)

// songRecord mirrors one song-metadata file: a single JSON object.
//
// Duration is a pointer so "present but zero" and "absent" are
// distinguishable; absence is a parse error, zero is not.
type songRecord struct {
	SongID          string   `json:"song_id"`
	Title           string   `json:"title"`
	ArtistID        string   `json:"artist_id"`
	ArtistName      string   `json:"artist_name"`
	ArtistLocation  string   `json:"artist_location"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	Year            int      `json:"year"`
	Duration        *float64 `json:"duration"`
}

// Song parses one song-metadata record into a song dimension row and an
// artist dimension row.
//
// It returns a *ParseError when the record is not a JSON object or when a
// required field (song_id, title, artist_id, duration) is absent. A malformed
// file affects only itself; the transformer holds no cross-record state.
func Song(r io.Reader) (model.Song, model.Artist, error) {
	var rec songRecord
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return model.Song{}, model.Artist{}, &ParseError{Err: err}
	}

	for _, f := range []struct {
		name string
		ok   bool
	}{
		{"song_id", rec.SongID != ""},
		{"title", rec.Title != ""},
		{"artist_id", rec.ArtistID != ""},
		{"duration", rec.Duration != nil},
	} {
		if !f.ok {
			return model.Song{}, model.Artist{}, &ParseError{Field: f.name, Err: errMissing}
		}
	}

	song := model.Song{
		ID:       rec.SongID,
		Title:    rec.Title,
		ArtistID: rec.ArtistID,
		Year:     rec.Year,
		Duration: *rec.Duration,
	}
	artist := model.Artist{
		ID:        rec.ArtistID,
		Name:      rec.ArtistName,
		Location:  rec.ArtistLocation,
		Latitude:  rec.ArtistLatitude,
		Longitude: rec.ArtistLongitude,
	}
	return song, artist, nil
}
