package recovery

import (
	"errors"
	"testing"
)

func TestDefaultRetryable(t *testing.T) {
	tests := []struct {
		err    error
		expect bool
	}{
		{errors.New("connection reset by peer"), true},
		{errors.New("timeout waiting for response"), true},
		{errors.New("rate_limit exceeded"), true},
		{errors.New("500 Internal Server Error"), true},
		{errors.New("invalid_request: missing field"), false},
		{errors.New("Authentication failed"), false},
		{errors.New("authorization denied"), false},
		{errors.New("CONSTRAINT violation on insert"), false},
		{errors.New("validation error: lat out of range"), false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := DefaultRetryable(tt.err); got != tt.expect {
			t.Errorf("DefaultRetryable(%v) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestModelRetryable(t *testing.T) {
	tests := []struct {
		err    error
		expect bool
	}{
		{errors.New("rate_limit: slow down"), true},
		{errors.New("request timeout"), true},
		{errors.New("invalid_request: bad prompt"), false},
		{errors.New("Unknown error"), false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := ModelRetryable(tt.err); got != tt.expect {
			t.Errorf("ModelRetryable(%v) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestStoreRetryable(t *testing.T) {
	tests := []struct {
		err    error
		expect bool
	}{
		{errors.New("connection refused"), true},
		{errors.New("statement timeout"), true},
		{errors.New("unique constraint violated"), false},
		{errors.New("duplicate key value violates unique index"), false},
		{errors.New("some other failure"), false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := StoreRetryable(tt.err); got != tt.expect {
			t.Errorf("StoreRetryable(%v) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}
