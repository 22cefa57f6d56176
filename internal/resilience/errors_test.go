package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid json"), false},
		{"explicit", NewTransientError(errors.New("rate limited"), 429), true},
		{"wrapped explicit", eris.Wrap(NewTransientError(errors.New("x"), 503), "tagger: call"), true},
		{"deadline", fmt.Errorf("attempt: %w", context.DeadlineExceeded), true},
		{"cancelled", fmt.Errorf("attempt: %w", context.Canceled), false},
		{"conn reset", syscall.ECONNRESET, true},
		{"message pattern", errors.New("read tcp: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsTransientStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		assert.False(t, IsTransientStatus(code), "status %d", code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	base := errors.New("base")
	te := NewTransientError(base, 500)
	assert.Equal(t, "base", te.Error())
	assert.ErrorIs(t, te, base)
}
