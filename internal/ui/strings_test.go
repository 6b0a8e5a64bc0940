package ui

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		value string
		limit int
		want  string
	}{
		{"short", "abc", 10, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"long", "abcdefghij", 7, "abcd..."},
		{"tiny limit", "abcdef", 2, "ab"},
		{"zero limit", "abc", 0, "abc"},
		{"trims", "  abc  ", 10, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.value, tt.limit); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.value, tt.limit, got, tt.want)
			}
		})
	}
}

func TestTruncateMiddle(t *testing.T) {
	got := truncateMiddle("abcdefghijklmnop", 9)
	if len([]rune(got)) != 9 {
		t.Fatalf("truncateMiddle length = %d, want 9 (%q)", len([]rune(got)), got)
	}
	if got[:4] != "abcd" {
		t.Fatalf("truncateMiddle = %q, want prefix preserved", got)
	}
	if got := truncateMiddle("short", 10); got != "short" {
		t.Fatalf("truncateMiddle short = %q", got)
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"pending", "Pending"},
		{"in_progress", "In Progress"},
		{"", ""},
		{"ERROR", "Error"},
	}
	for _, tt := range tests {
		if got := titleCase(tt.value); got != tt.want {
			t.Errorf("titleCase(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestPadRight(t *testing.T) {
	if got := padRight("ab", 5); got != "ab   " {
		t.Fatalf("padRight = %q", got)
	}
	if got := padRight("abcdef", 3); got != "abcdef" {
		t.Fatalf("padRight over-length = %q", got)
	}
}

func TestWrap(t *testing.T) {
	got := wrap("one two three four", 9)
	want := "one two\nthree\nfour"
	if got != want {
		t.Fatalf("wrap = %q, want %q", got, want)
	}
}
