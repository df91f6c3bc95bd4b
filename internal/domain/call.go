package domain

import "fmt"

type CallMode string

const (
	CallModeAudio CallMode = "audio"
	CallModeVideo CallMode = "video"
)

func ParseCallMode(raw string) (CallMode, error) {
	switch CallMode(raw) {
	case CallModeAudio, CallModeVideo:
		return CallMode(raw), nil
	}
	return "", fmt.Errorf("unknown call mode %q", raw)
}

// WantsVideo is true for video calls; video always carries audio too.
func (m CallMode) WantsVideo() bool { return m == CallModeVideo }
