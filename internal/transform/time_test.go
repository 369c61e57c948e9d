package transform

import (
	"testing"
	"time"
)

func TestDeriveTime_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ms   int64
		want [6]int // hour, day, week, month, year, weekday
	}{
		{
			// 2018-11-02T01:25:34.796Z, a Friday.
			name: "fixture_1541121934796",
			ms:   1541121934796,
			want: [6]int{1, 2, 44, 11, 2018, 4},
		},
		{
			// 2018-11-15T00:30:26.796Z, a Thursday.
			name: "mid_november",
			ms:   1542241826796,
			want: [6]int{0, 15, 46, 11, 2018, 3},
		},
		{
			// Epoch itself: 1970-01-01T00:00:00Z, a Thursday in ISO week 1.
			name: "epoch",
			ms:   0,
			want: [6]int{0, 1, 1, 1, 1970, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveTime(tt.ms)
			tuple := [6]int{got.Hour, got.Day, got.Week, got.Month, got.Year, got.Weekday}
			if tuple != tt.want {
				t.Fatalf("DeriveTime(%d) = %v, want %v", tt.ms, tuple, tt.want)
			}
			if got.StartTime.Location() != time.UTC {
				t.Fatalf("StartTime location = %v, want UTC", got.StartTime.Location())
			}
			if got.StartTime.UnixMilli() != tt.ms {
				t.Fatalf("StartTime round trip = %d, want %d", got.StartTime.UnixMilli(), tt.ms)
			}
		})
	}
}

func TestDeriveTime_Deterministic(t *testing.T) {
	t.Parallel()

	const ms = 1541121934796
	a := DeriveTime(ms)
	b := DeriveTime(ms)
	if a != b {
		t.Fatalf("DeriveTime not deterministic: %+v vs %+v", a, b)
	}
}

func TestDeriveTime_MondayIsZero(t *testing.T) {
	t.Parallel()

	// 2018-11-05 was a Monday.
	monday := time.Date(2018, 11, 5, 12, 0, 0, 0, time.UTC).UnixMilli()
	if got := DeriveTime(monday).Weekday; got != 0 {
		t.Fatalf("weekday(Monday) = %d, want 0", got)
	}
	// 2018-11-04 was a Sunday.
	sunday := time.Date(2018, 11, 4, 12, 0, 0, 0, time.UTC).UnixMilli()
	if got := DeriveTime(sunday).Weekday; got != 6 {
		t.Fatalf("weekday(Sunday) = %d, want 6", got)
	}
}
