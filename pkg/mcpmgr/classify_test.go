package mcpmgr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStructuredStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code int
		want Classification
	}{
		{http.StatusBadRequest, FallbackEligible},
		{http.StatusUnauthorized, FallbackEligible},
		{http.StatusNotFound, FallbackEligible},
		{http.StatusMethodNotAllowed, FallbackEligible},
		{http.StatusRequestTimeout, FallbackEligible},
		{http.StatusInternalServerError, Fatal},
		{http.StatusBadGateway, Fatal},
		{http.StatusServiceUnavailable, Fatal},
	}
	for _, tc := range cases {
		err := fmt.Errorf("handshake: %w", &StatusError{StatusCode: tc.code, Err: errors.New(http.StatusText(tc.code))})
		assert.Equal(t, tc.want, Classify(err), "status %d", tc.code)
	}
}

func TestClassifyStructuredStatusWinsOverText(t *testing.T) {
	t.Parallel()

	// The text mentions "not found" but the wire said 503.
	err := &StatusError{StatusCode: http.StatusServiceUnavailable, Err: errors.New("upstream not found")}
	assert.Equal(t, Fatal, Classify(err))
}

func TestClassifyTextFallback(t *testing.T) {
	t.Parallel()

	eligible := []string{
		`sending "initialize": Not Found`,
		"broken session: 404",
		"Bad Request",
		"server says: Method Not Allowed",
		"unauthorized",
		"session terminated",
		"rejected with 409",
		`calling "initialize": Method not found (-32601)`,
	}
	for _, msg := range eligible {
		assert.Equal(t, FallbackEligible, Classify(errors.New(msg)), msg)
	}

	fatal := []string{
		"Internal Server Error",
		"status 500",
		"dial tcp 127.0.0.1:1: connect: connection refused",
		"connection reset by peer",
		"error 4040 in payload",
		`Post "http://example.com/v404/mcp": EOF`,
	}
	for _, msg := range fatal {
		assert.Equal(t, Fatal, Classify(errors.New(msg)), msg)
	}
}

func TestClassifyTimeoutsAreFatal(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Fatal, Classify(context.DeadlineExceeded))
	assert.Equal(t, Fatal, Classify(fmt.Errorf("initialize: %w", context.Canceled)))
	assert.Equal(t, Fatal, Classify(nil))
}

func TestAuthRejection(t *testing.T) {
	t.Parallel()

	code, ok := authRejection(&StatusError{StatusCode: http.StatusForbidden})
	assert.True(t, ok)
	assert.Equal(t, http.StatusForbidden, code)

	code, ok = authRejection(&StatusError{StatusCode: http.StatusNotFound})
	assert.False(t, ok)
	assert.Equal(t, http.StatusNotFound, code)

	code, ok = authRejection(errors.New("token refresh: 401 invalid_grant"))
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, ok = authRejection(errors.New("Payment Required"))
	assert.True(t, ok)
	assert.Equal(t, http.StatusPaymentRequired, code)

	_, ok = authRejection(errors.New("no such host"))
	assert.False(t, ok)

	_, ok = authRejection(context.DeadlineExceeded)
	assert.False(t, ok)
}

func TestClassificationString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "fallback_eligible", FallbackEligible.String())
}
