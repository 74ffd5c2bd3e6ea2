package database

import (
	"regexp"
	"testing"
)

func TestPrefixPattern(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		want   bool
	}{
		{"user:alice:archive:", "user:alice:archive:monthly-2025-01", true},
		{"user:alice:archive:", "user:bob:archive:monthly-2025-01", false},
		{"user:alice:archive:", "x-user:alice:archive:monthly-2025-01", false},
		{"user:a.b:", "user:a.b:expenses", true},
		{"user:a.b:", "user:aXb:expenses", false},
		{"user:(x)+:", "user:(x)+:expenses", true},
	}

	for _, tt := range tests {
		t.Run(tt.prefix+"|"+tt.key, func(t *testing.T) {
			re := regexp.MustCompile(prefixPattern(tt.prefix))
			if got := re.MatchString(tt.key); got != tt.want {
				t.Errorf("prefixPattern(%q) match %q = %v, want %v", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}
