package ui

import "testing"

func TestPrefixLength(t *testing.T) {
	tests := []struct {
		name   string
		length map[string]int
		id     string
		want   int
	}{
		{
			name:   "case insensitive lookup",
			length: map[string]int{"2026-02-10t09:00:00.000z": 14},
			id:     "2026-02-10T09:00:00.000Z",
			want:   14,
		},
		{
			name:   "missing id",
			length: map[string]int{"2026-02-10t09:00:00.000z": 14},
			id:     "",
			want:   0,
		},
		{
			name:   "nil map",
			length: nil,
			id:     "2026-02-10T09:00:00.000Z",
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrefixLength(tt.length, tt.id); got != tt.want {
				t.Fatalf("PrefixLength() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHighlightIDWithoutColor(t *testing.T) {
	styles := NewStyles(false)
	id := "2026-02-10T09:00:00.000Z"
	lengths := PrefixLengths([]string{id, "2026-02-11T09:00:00.000Z"})

	if got := HighlightID(styles, id, PrefixLength(lengths, id)); got != id {
		t.Fatalf("expected plain id, got %q", got)
	}
	if PrefixLength(lengths, id) != 10 {
		t.Fatalf("expected a 10 character prefix, got %d", PrefixLength(lengths, id))
	}
}
