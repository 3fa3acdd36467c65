package analytics

import "testing"

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"someone@example.com", "s*****e@example.com"},
		{"alice@example.com", "a***e@example.com"},
		{"ab@example.com", "**@example.com"},
		{"a@example.com", "*@example.com"},
		{"abc@example.com", "a*c@example.com"},
		{"no-at-sign", "no-at-sign"},
		{"@example.com", "@example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskEmail(tt.in); got != tt.want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
