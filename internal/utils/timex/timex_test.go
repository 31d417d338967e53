package timex

import (
	"testing"
	"time"
)

func TestDayStart(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "afternoon",
			in:   time.Date(2025, 6, 15, 14, 30, 45, 123, time.UTC),
			want: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "already midnight",
			in:   time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "just before midnight",
			in:   time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
			want: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DayStart(tt.in); !got.Equal(tt.want) {
				t.Errorf("DayStart(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSameDay(t *testing.T) {
	morning := time.Date(2025, 6, 15, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC)
	nextDay := time.Date(2025, 6, 16, 0, 0, 1, 0, time.UTC)

	if !SameDay(morning, evening) {
		t.Error("same calendar day reported as different")
	}
	if SameDay(evening, nextDay) {
		t.Error("different calendar days reported as same")
	}
}
