package tasks

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("CST", 8*3600)
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "1717243200", want: 1717243200},
		{in: "2024-06-01T12:00:00Z", want: 1717243200},
		{in: "2024-06-01 20:00", want: 1717243200},
		{in: " 2024-06-01 20:00:00 ", want: 1717243200},
		{in: "tomorrow", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTime(tt.in, loc)
			if tt.wantErr {
				if !IsInvalidInput(err) {
					t.Fatalf("ParseTime(%q) error = %v, want validation error", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseTime(%q) = %d, %v, want %d", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestParseHours(t *testing.T) {
	t.Parallel()
	mask, err := ParseHours("9-11, 14,22-23")
	if err != nil {
		t.Fatalf("ParseHours: %v", err)
	}
	open := map[int]bool{9: true, 10: true, 11: true, 14: true, 22: true, 23: true}
	for h, allowed := range mask {
		if allowed != open[h] {
			t.Fatalf("hour %d allowed=%v", h, allowed)
		}
	}
	if m, err := ParseHours(""); m != nil || err != nil {
		t.Fatalf("ParseHours(\"\") = %v, %v", m, err)
	}
	for _, bad := range []string{"24", "5-3", "x", "1-"} {
		if _, err := ParseHours(bad); !IsInvalidInput(err) {
			t.Fatalf("ParseHours(%q) error = %v", bad, err)
		}
	}
}
