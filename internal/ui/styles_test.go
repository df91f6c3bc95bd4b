package ui

import (
	"strings"
	"testing"
	"time"
)

func TestChatLine(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 30, 5, 0, time.UTC)

	mine := ChatLine(at, true, "0123456789abcdef", "hi")
	if !strings.Contains(mine, "me") || !strings.Contains(mine, "09:30:05") || !strings.HasSuffix(mine, ": hi") {
		t.Fatalf("own line = %q", mine)
	}

	theirs := ChatLine(at, false, "0123456789abcdef", "hello")
	if !strings.Contains(theirs, "01234567") || strings.Contains(theirs, "89abcdef") {
		t.Fatalf("peer line = %q", theirs)
	}
}
