package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashToken(t *testing.T) {
	a := HashToken([]byte("pepper"), "secret")
	b := HashToken([]byte("pepper"), "secret")
	c := HashToken([]byte("other"), "secret")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestTokenFromHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "abc", want: "abc"},
		{in: "  abc  ", want: "abc"},
		{in: "Bearer abc", want: "abc"},
		{in: "bearer   abc", want: "abc"},
		{in: "Bearer", want: "Bearer"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TokenFromHeader(tt.in), "input %q", tt.in)
	}
}
