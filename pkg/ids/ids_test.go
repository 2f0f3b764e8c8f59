package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqualUsesIndexOnly(t *testing.T) {
	tests := []struct {
		name string
		a, b Id
		want bool
	}{
		{"same index different prefix", Val("x", 7), Val("y", 7), true},
		{"same index val vs temp", Val("x", 7), Temp("t", 7), true},
		{"different index same prefix", Val("x", 7), Val("x", 8), false},
		{"names compare textually", Name("foo"), Name("foo"), true},
		{"name vs val never equal", Name("x"), Val("x", 3), false},
		{"none vs none", None, None, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "x", Val("x", 12).String())
	assert.Equal(t, "t@12", Temp("t", 12).String())
	assert.Equal(t, "<none>", None.String())
}

func TestIsNone(t *testing.T) {
	assert.True(t, None.IsNone())
	assert.False(t, Val("x", 0).IsNone())
	assert.False(t, Name("x").IsNone())
}
