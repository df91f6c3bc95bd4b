package domain

import "time"

// Member represents session's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	SID         SessionID
	ClientToken string
	JoinedAt    time.Time
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(sid SessionID, clientToken string) *Member {
	return &Member{SID: sid, ClientToken: clientToken}
}
