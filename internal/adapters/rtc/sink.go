package rtc

import (
	"errors"
	"io"

	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// TrackStats is what a sink saw on one remote track.
type TrackStats struct {
	Kind    string
	Packets int
	Bytes   int
	LastSeq uint16
}

// DrainTrack reads a remote track until it ends. The headless peer has no
// playback, so packets are only parsed and counted.
func DrainTrack(peer domain.SessionID, track *webrtc.TrackRemote) TrackStats {
	stats := TrackStats{Kind: track.Kind().String()}
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "media").Str("peer", string(peer)).Msg("remote track read")
			}
			break
		}
		countPacket(&stats, buf[:n])
	}
	log.Info().
		Str("module", "media").
		Str("peer", string(peer)).
		Str("kind", stats.Kind).
		Int("packets", stats.Packets).
		Int("bytes", stats.Bytes).
		Msg("remote track ended")
	return stats
}

func countPacket(stats *TrackStats, raw []byte) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(raw); err != nil {
		return
	}
	stats.Packets++
	stats.Bytes += len(pkt.Payload)
	stats.LastSeq = pkt.SequenceNumber
}
