// Package model defines the star-schema row types shared by the transform and
// storage layers.
//
// Dimension rows (Song, Artist, TimeRow, User) are keyed by their natural key
// and loaded with upsert semantics. Songplay is the append-only fact row; its
// song/artist references stay nil when the resolver finds no exact dimension
// match.
package model

import "time"

// Song is one row of the songs dimension.
type Song struct {
	ID       string
	Title    string
	ArtistID string
	Year     int
	Duration float64
}

// Artist is one row of the artists dimension. Latitude and longitude are
// nullable in the source catalog, so they are pointers here.
type Artist struct {
	ID        string
	Name      string
	Location  string
	Latitude  *float64
	Longitude *float64
}

// TimeRow is the expansion of one distinct event timestamp.
//
// Week is the ISO week number; Weekday uses the Monday=0 convention.
type TimeRow struct {
	StartTime time.Time
	Hour      int
	Day       int
	Week      int
	Month     int
	Year      int
	Weekday   int
}

// User is one row of the users dimension. All fields except ID are mutable:
// a later event for the same user overwrites them (last write wins).
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Gender    string
	Level     string
}

// Songplay is one play-event fact row.
//
// SongID and ArtistID are set together when the natural-key lookup succeeds,
// and are both nil otherwise. They are never set one without the other.
type Songplay struct {
	StartTime time.Time
	UserID    int64
	Level     string
	SongID    *string
	ArtistID  *string
	SessionID int64
	Location  string
	UserAgent string
}
