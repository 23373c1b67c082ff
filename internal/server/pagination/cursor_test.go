package pagination

import (
	"testing"
	"time"
)

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC)
	cursor := EncodeCursor(ts, 42)

	gotTS, gotID, err := DecodeCursor(cursor)
	if err != nil {
		t.Fatal(err)
	}
	if !gotTS.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", gotTS, ts)
	}
	if gotID != 42 {
		t.Errorf("id = %d, want 42", gotID)
	}
}

func TestDecodeCursorErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!!"},
		{"no separator", "bm9zZXBhcmF0b3I="},                         // "noseparator"
		{"bad timestamp", "bm90YXRpbWUsNDI="},                        // "notatime,42"
		{"bad id", "MjAyNS0wNi0wMVQxMjowMDowMFosbm90YW51bWJlcg=="},   // "...Z,notanumber"
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := DecodeCursor(tt.cursor); err == nil {
				t.Errorf("DecodeCursor(%q) should fail", tt.cursor)
			}
		})
	}
}
