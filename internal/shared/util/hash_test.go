package util

import "testing"

func TestHashUserKey(t *testing.T) {
	id := "user-12345"
	got := HashUserKey(id)
	if got != HashUserKey(id) {
		t.Fatalf("expected stable hash, got %s", got)
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("hash contains non-hex character: %c", ch)
		}
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
}

func TestShortHashIsPrefix(t *testing.T) {
	full := HashUserKey("best crm for startups")
	short := ShortHash("best crm for startups")
	if len(short) != 12 || full[:12] != short {
		t.Fatalf("expected 12-char prefix of %s, got %s", full, short)
	}
}

func TestSanitizeKeySegment(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "abc.json", want: "abc.json"},
		{in: " a/b\\c ", want: "a_b_c"},
		{in: "../etc", wantErr: true},
		{in: "   ", wantErr: true},
	}
	for _, tt := range tests {
		got, err := SanitizeKeySegment(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("SanitizeKeySegment(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("SanitizeKeySegment(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
