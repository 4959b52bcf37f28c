package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToGRPCError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    codes.Code
		message string
	}{
		{"not found", NewAppError(ErrNotFound, "missing", nil), codes.NotFound, "missing"},
		{"too early", NewAppError(ErrTooEarly, "wait", nil), codes.FailedPrecondition, "wait"},
		{"unauthenticated", NewAppError(ErrUnauthenticated, "who", nil), codes.Unauthenticated, "who"},
		{"wrapped", fmt.Errorf("release: %w", NewAppError(ErrUnavailable, "stripe", nil)), codes.Unavailable, "release: stripe"},
		{"status passthrough", status.Error(codes.AlreadyExists, "dup"), codes.AlreadyExists, "dup"},
		{"plain", New("boom"), codes.Internal, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := status.FromError(ToGRPCError(tt.err))
			assert.True(t, ok)
			assert.Equal(t, tt.code, st.Code())
			assert.Equal(t, tt.message, st.Message())
		})
	}

	assert.NoError(t, ToGRPCError(nil))
}
