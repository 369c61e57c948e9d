package transform

import (
	"errors"
	"strings"
	"testing"
)

const validSongJSON = `{
  "num_songs": 1,
  "song_id": "SOUPIRU12A6D4FA1E1",
  "title": "Der Kleine Dompfaff",
  "artist_id": "ARJIE2Y1187B994AB7",
  "artist_name": "Line Renaud",
  "artist_location": "",
  "artist_latitude": null,
  "artist_longitude": null,
  "year": 0,
  "duration": 152.92036
}`

func TestSong_Valid(t *testing.T) {
	t.Parallel()

	song, artist, err := Song(strings.NewReader(validSongJSON))
	if err != nil {
		t.Fatalf("Song() err = %v", err)
	}

	if song.ID != "SOUPIRU12A6D4FA1E1" || song.Title != "Der Kleine Dompfaff" {
		t.Fatalf("song = %+v", song)
	}
	if song.ArtistID != "ARJIE2Y1187B994AB7" || song.Duration != 152.92036 || song.Year != 0 {
		t.Fatalf("song = %+v", song)
	}
	if artist.ID != "ARJIE2Y1187B994AB7" || artist.Name != "Line Renaud" {
		t.Fatalf("artist = %+v", artist)
	}
	if artist.Latitude != nil || artist.Longitude != nil {
		t.Fatalf("null coordinates should stay nil, got %+v", artist)
	}
}

func TestSong_Coordinates(t *testing.T) {
	t.Parallel()

	in := `{"song_id":"S1","title":"T","artist_id":"A1","artist_name":"N","artist_latitude":35.14968,"artist_longitude":-90.04892,"duration":10.5}`
	_, artist, err := Song(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Song() err = %v", err)
	}
	if artist.Latitude == nil || *artist.Latitude != 35.14968 {
		t.Fatalf("latitude = %v", artist.Latitude)
	}
	if artist.Longitude == nil || *artist.Longitude != -90.04892 {
		t.Fatalf("longitude = %v", artist.Longitude)
	}
}

func TestSong_MissingFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		wantField string
	}{
		{
			name:      "no_song_id",
			in:        `{"title":"T","artist_id":"A1","duration":10.5}`,
			wantField: "song_id",
		},
		{
			name:      "no_title",
			in:        `{"song_id":"S1","artist_id":"A1","duration":10.5}`,
			wantField: "title",
		},
		{
			name:      "no_artist_id",
			in:        `{"song_id":"S1","title":"T","duration":10.5}`,
			wantField: "artist_id",
		},
		{
			name:      "no_duration",
			in:        `{"song_id":"S1","title":"T","artist_id":"A1"}`,
			wantField: "duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Song(strings.NewReader(tt.in))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if pe.Field != tt.wantField {
				t.Fatalf("ParseError.Field = %q, want %q", pe.Field, tt.wantField)
			}
		})
	}
}

func TestSong_Malformed(t *testing.T) {
	t.Parallel()

	tests := []string{
		`not json at all`,
		`{"song_id": 42, "title":"T","artist_id":"A1","duration":10.5}`, // wrong shape
		``,
	}
	for _, in := range tests {
		_, _, err := Song(strings.NewReader(in))
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("Song(%q) err = %v, want *ParseError", in, err)
		}
	}
}
