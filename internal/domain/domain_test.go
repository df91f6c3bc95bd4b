package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestParseRoomName(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{"ok", "chat-room", nil},
		{"empty", "", ErrRoomNameEmpty},
		{"max length", strings.Repeat("x", MaxRoomNameLen), nil},
		{"too long", strings.Repeat("x", MaxRoomNameLen+1), ErrRoomNameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRoomName(tt.raw)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if err == nil && string(got) != tt.raw {
				t.Fatalf("got %q", got)
			}
		})
	}
}

func TestParseCallMode(t *testing.T) {
	if m, err := ParseCallMode("video"); err != nil || !m.WantsVideo() {
		t.Fatalf("video: %v %v", m, err)
	}
	if m, err := ParseCallMode("audio"); err != nil || m.WantsVideo() {
		t.Fatalf("audio: %v %v", m, err)
	}
	if _, err := ParseCallMode("smoke-signals"); err == nil {
		t.Fatal("unknown mode accepted")
	}
}

func TestMessageAddressing(t *testing.T) {
	broadcast := Message{Type: KindCandidate}
	direct := Message{Type: KindCandidate, To: "b"}

	if !broadcast.AddressedTo("a") || !direct.AddressedTo("b") || direct.AddressedTo("a") {
		t.Fatal("AddressedTo mismatch")
	}
}

func TestMessagePayload(t *testing.T) {
	m, err := NewMessage(KindChat, "hi")
	if err != nil {
		t.Fatal(err)
	}
	var text string
	if err := m.Decode(&text); err != nil || text != "hi" {
		t.Fatalf("decode = %q %v", text, err)
	}
	if err := (Message{Type: KindEndCall}).Decode(&text); !errors.Is(err, ErrNoPayload) {
		t.Fatalf("empty payload err = %v", err)
	}
}

func TestRelayedKinds(t *testing.T) {
	for _, k := range []Kind{KindOffer, KindAnswer, KindCandidate, KindEndCall, KindChat} {
		if !k.Relayed() {
			t.Errorf("%s should be relayed", k)
		}
	}
	for _, k := range []Kind{KindJoin, KindLeave, KindPing, KindWhoAmI, KindWelcome, KindUserConnected} {
		if k.Relayed() {
			t.Errorf("%s should not be relayed", k)
		}
	}
}

func TestSessionIDs(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == b || a == "" {
		t.Fatalf("ids not unique: %q %q", a, b)
	}
	if SessionID("a").Less("a") || !SessionID("a").Less("b") {
		t.Fatal("Less is not a strict order")
	}
}
