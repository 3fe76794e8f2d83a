package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("conversation x: %w", ErrNotFound), http.StatusNotFound},
		{ErrTokenExpired, http.StatusUnauthorized},
		{ErrBanned, http.StatusForbidden},
		{ErrMuted, http.StatusForbidden},
		{fmt.Errorf("%w: nope", ErrForbidden), http.StatusForbidden},
		{ErrAlreadyFriends, http.StatusConflict},
		{ErrConflict, http.StatusConflict},
		{ErrInvalidState, http.StatusConflict},
		{ErrSelfReference, http.StatusBadRequest},
		{ErrNotMember, http.StatusBadRequest},
		{ErrRateLimited, http.StatusTooManyRequests},
		{NewAPIError("teapot", http.StatusTeapot), http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatusFromError(tt.err); got != tt.want {
			t.Errorf("HTTPStatusFromError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
