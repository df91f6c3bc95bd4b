// Package domain contains entity without logic, just meta-data
package domain

import (
	"github.com/google/uuid"
)

// SessionID identifies one live signaling connection. It is assigned by the
// server and never reused, so it also keys client-side peer tables.
type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// Less reports whether a sorts before b. Used as the glare tie-break: the
// lower id keeps the offerer role.
func (id SessionID) Less(other SessionID) bool {
	return id < other
}
