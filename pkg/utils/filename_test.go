package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"logo.png", "logo.png"},
		{"logoA_front.png", "logoA_front.png"},
		{"my file (1).png", "my_file__1_.png"},
		{"../../etc/passwd", "passwd"},
		{"dir/logo.png", "logo.png"},
		{`C:\Users\me\logo.png`, "logo.png"},
		{"ünïcödé.png", "_n_c_d_.png"},
		{"..", ""},
		{".", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}
}
