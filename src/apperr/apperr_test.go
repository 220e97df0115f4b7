package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"

	"FoodFinder/src/apperr"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected apperr.Code
	}{
		{
			name:     "invalid request",
			err:      apperr.InvalidRequest("coordinates are mandatory"),
			expected: apperr.CodeInvalidRequest,
		},
		{
			name:     "wrapped not found",
			err:      fmt.Errorf("load review: %w", apperr.NotFound("review %s not found", "x")),
			expected: apperr.CodeNotFound,
		},
		{
			name:     "busy with cause",
			err:      apperr.TargetBusy(errors.New("lock timeout"), "target busy"),
			expected: apperr.CodeTargetBusy,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			expected: apperr.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(apperr.CodeOf(tt.err), qt.Equals, tt.expected)
		})
	}
}

func TestPublicHidesInternals(t *testing.T) {
	c := qt.New(t)

	code, msg := apperr.Public(errors.New("pq: password authentication failed for user admin"))
	c.Assert(code, qt.Equals, apperr.CodeInternal)
	c.Assert(msg, qt.Equals, "internal error")

	code, msg = apperr.Public(apperr.Distance(errors.New("upstream said 503"), "distance provider failed"))
	c.Assert(code, qt.Equals, apperr.CodeDistance)
	c.Assert(msg, qt.Equals, "distance provider failed")
}

func TestRetriable(t *testing.T) {
	c := qt.New(t)

	c.Assert(apperr.Retriable(apperr.TargetBusy(nil, "busy")), qt.IsTrue)
	c.Assert(apperr.Retriable(apperr.Forbidden("no")), qt.IsFalse)
	c.Assert(apperr.Retriable(nil), qt.IsFalse)
}

func TestUnwrap(t *testing.T) {
	c := qt.New(t)

	cause := errors.New("cause")
	err := apperr.Distance(cause, "failed")
	c.Assert(errors.Is(err, cause), qt.IsTrue)
	c.Assert(err.Error(), qt.Equals, "DISTANCE_COMPUTATION_ERROR: failed: cause")
}
