package negotiate

import (
	"errors"
	"fmt"

	"github.com/dkeye/p2pcall/internal/domain"
)

var (
	ErrNoCall = errors.New("no active call")
	ErrStale  = errors.New("peer entry closed or replaced")
)

// Error is a failed negotiation step for one peer.
type Error struct {
	Op   string
	Peer domain.SessionID
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("negotiate %s with %s: %v", e.Op, e.Peer, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
