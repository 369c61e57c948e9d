package transform

import (
	"time"

	"musicetl/internal/model"
)

// DeriveTime expands an epoch-millisecond timestamp into a time-dimension row.
//
// All fields are derived in UTC. Week is the ISO week number and Weekday uses
// the Monday=0 convention (Monday=0 .. Sunday=6). The function is pure: the
// same input always yields the same row, which is what makes upserting the
// same timestamp across files safe.
func DeriveTime(ms int64) model.TimeRow {
	t := time.UnixMilli(ms).UTC()
	_, week := t.ISOWeek()
	return model.TimeRow{
		StartTime: t,
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   (int(t.Weekday()) + 6) % 7,
	}
}
