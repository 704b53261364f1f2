package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"invalid", Invalid("bad"), CodeInvalid},
		{"wrapped conflict", fmt.Errorf("create: %w", Conflict("dup")), CodeConflict},
		{"banned", Banned("email"), CodeBanned},
		{"plain error", errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("review: %w", InvalidState("message already reviewed"))
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrInvalid))
	assert.True(t, errors.Is(Banned("student_id"), ErrBanned))
}

func TestPublicMessage_HidesDetail(t *testing.T) {
	assert.Equal(t, "submission rejected", PublicMessage(Banned("student_id")))
	assert.NotContains(t, PublicMessage(Banned("student_id")), "student_id")
	assert.Equal(t, "internal server error", PublicMessage(errors.New("pq: relation missing")))
	assert.Equal(t, "internal server error", PublicMessage(Internal(errors.New("pq: deadlock"))))
	assert.Equal(t, "content too long", PublicMessage(Invalid("content too long")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeInvalid))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(CodeBanned))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeConflict))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeInvalidState))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeNotFound))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(CodeRateLimited))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeInternal))
}
