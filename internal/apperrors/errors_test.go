package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrCodeInternal, "append failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[INTERNAL] append failed: disk full", err.Error())
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"structured", Invalid("unknown metric %q", "gpu"), ErrCodeInvalidRequest},
		{"wrapped structured", fmt.Errorf("query: %w", New(ErrCodeNotFound, "missing")), ErrCodeNotFound},
		{"plain", errors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Invalid("bad")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(New(ErrCodeUnavailable, "down")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	assert.True(t, IsInvalid(fmt.Errorf("wrap: %w", Invalid("x"))))
}
