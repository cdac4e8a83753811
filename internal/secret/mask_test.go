package secret

import "testing"

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"abcde", "*****"},
		{"abcdef", "a****f"},
		{"AIzaSyExampleKey0123", "A******************3"},
		{"AIzaSyExampleKey01234", "AIz*****************4"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
