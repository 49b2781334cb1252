package utils

import "testing"

func TestMaskIdentifier(t *testing.T) {
	tests := []struct{ in, want string }{
		{"AB1234YZ", "AB****YZ"},
		{"M-00042", "M-****42"},
		{"ABCD", "****"},
		{"AB", "**"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MaskIdentifier(tt.in); got != tt.want {
			t.Errorf("MaskIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ada@example.com", "a***@example.com"},
		{"x@y.org", "x***@y.org"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MaskEmail(tt.in); got != tt.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("+6281234567890"); got != "**********7890" {
		t.Errorf("MaskPhone = %q", got)
	}
	if got := MaskPhone("123"); got != "***" {
		t.Errorf("MaskPhone short = %q", got)
	}
}
