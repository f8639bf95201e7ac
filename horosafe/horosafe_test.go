package horosafe

import (
	"errors"
	"strings"
	"testing"
)

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		wantErr     bool
	}{
		{"/data/md", "en/42.md", false},
		{"/data/md", "../etc/passwd", true},
		{"/data/md", "en/../../outside", true},
		{"/data/md", "hy", false},
	}
	for _, tt := range tests {
		_, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
		}
	}
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://aipo.am", false},
		{"http://127.0.0.1:8080", false},
		{"ftp://aipo.am", true},
		{"javascript:alert(1)", true},
		{"https://", true},
	}
	for _, tt := range tests {
		err := ValidateBaseURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateBaseURL(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"en", "hy", "run_1"} {
		if err := ValidateIdentifier(ok); err != nil {
			t.Errorf("ValidateIdentifier(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "en/ru", "a b"} {
		if err := ValidateIdentifier(bad); err == nil {
			t.Errorf("ValidateIdentifier(%q): expected error", bad)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("abc"), 3)
	if err != nil || string(data) != "abc" {
		t.Fatalf("exact size: got %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("abcd"), 3); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("over limit: got %v, want ErrTooLarge", err)
	}
}
