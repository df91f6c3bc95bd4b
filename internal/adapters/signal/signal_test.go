package signal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dkeye/p2pcall/internal/app/orch"
	"github.com/dkeye/p2pcall/internal/domain"
)

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		code func(error) string
		err  error
		want string
	}{
		{"join unknown session", joinErrorCode, orch.ErrUnknownSession, domain.ErrCodeUnknownSession},
		{"join wrapped unknown session", joinErrorCode, fmt.Errorf("join: %w", orch.ErrUnknownSession), domain.ErrCodeUnknownSession},
		{"join other failure", joinErrorCode, errors.New("boom"), domain.ErrCodeJoinFailed},
		{"relay before join", relayErrorCode, orch.ErrNotInRoom, domain.ErrCodeNotInRoom},
		{"relay wrong room", relayErrorCode, orch.ErrRoomMismatch, domain.ErrCodeRoomMismatch},
		{"relay control kind", relayErrorCode, orch.ErrNotRelayable, domain.ErrCodeUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code(tt.err); got != tt.want {
				t.Fatalf("code = %q, want %q", got, tt.want)
			}
		})
	}
}
