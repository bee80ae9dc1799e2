package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodedErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("claim: %w", New(CodeConflict, "session already claimed by another admin"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, CodeConflict, Code(err))
	assert.Equal(t, "session already claimed by another admin", Message(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(CodeFetchFailed, "failed to list sessions", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "dial tcp: refused")
}

func TestForeignErrorsAreInternal(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, CodeInternal, Code(err))
	assert.Equal(t, "boom", Message(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Equal(t, "", Code(nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[string]int{
		CodeValidation:   http.StatusBadRequest,
		CodeNotFound:     http.StatusNotFound,
		CodeConflict:     http.StatusConflict,
		CodeInvalidState: http.StatusConflict,
		CodeForbidden:    http.StatusForbidden,
		CodeAuthInvalid:  http.StatusUnauthorized,
	}
	for code, status := range cases {
		assert.Equal(t, status, HTTPStatus(New(code, "x")), code)
	}
}

func TestFromStatus(t *testing.T) {
	assert.ErrorIs(t, FromStatus(http.StatusConflict, "", ""), ErrConflict)
	assert.ErrorIs(t, FromStatus(http.StatusConflict, CodeInvalidState, "closed"), ErrInvalidState)
	assert.ErrorIs(t, FromStatus(http.StatusInternalServerError, CodeInternal, "db down"), ErrFetchFailed)
	assert.Equal(t, "Not Found", FromStatus(http.StatusNotFound, "", "").Message)
}
