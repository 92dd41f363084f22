package activefs

import (
	"errors"
	"testing"
)

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b/d", false},
		{"a/*/c", "a/xyz/c", true},
		{"a/*/c", "a/x/y/c", false},
		{"a/**/c", "a/c", true},
		{"a/**/c", "a/x/y/z/c", true},
		{"**", "anything/at/all", true},
		{"**", "", true},
		{"a/?.txt", "a/x.txt", true},
		{"a/?.txt", "a/xy.txt", false},
		{"a/[abc].txt", "a/b.txt", true},
		{"a/[abc].txt", "a/d.txt", false},
		{"a/[!abc].txt", "a/d.txt", true},
		{"a/[a-c].txt", "a/b.txt", true},
		{"a/[a-c].txt", "a/d.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" vs "+tt.name, func(t *testing.T) {
			got, err := MatchGlob(tt.pattern, tt.name)
			if err != nil {
				t.Fatalf("MatchGlob(%q, %q) error: %v", tt.pattern, tt.name, err)
			}
			if got != tt.want {
				t.Fatalf("MatchGlob(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
			}
		})
	}
}

func TestMatchGlobMalformed(t *testing.T) {
	_, err := MatchGlob("a/[abc.txt", "a/b.txt")
	if !errors.Is(err, ErrMalformedGlob) {
		t.Fatalf("unterminated class: err = %v, want ErrMalformedGlob", err)
	}

	_, err = MatchGlob("a/]b[.txt", "a/b.txt")
	if !errors.Is(err, ErrMalformedGlob) {
		t.Fatalf("unbalanced brackets: err = %v, want ErrMalformedGlob", err)
	}
}
