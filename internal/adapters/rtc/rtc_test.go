package rtc

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/dkeye/p2pcall/internal/config"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

func TestFileSourceVideoWithoutFile(t *testing.T) {
	_, err := FileSource{}.Acquire(context.Background(), domain.CallModeVideo)
	if !errors.Is(err, ErrNoVideoDevice) {
		t.Fatalf("err = %v, want ErrNoVideoDevice", err)
	}
}

func TestFileSourceMissingAudioFile(t *testing.T) {
	src := FileSource{AudioFile: filepath.Join(t.TempDir(), "missing.ogg")}
	if _, err := src.Acquire(context.Background(), domain.CallModeAudio); err == nil {
		t.Fatal("expected error for missing audio file")
	}
}

func TestFileSourceSilence(t *testing.T) {
	st, err := FileSource{}.Acquire(context.Background(), domain.CallModeAudio)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	tracks := st.Tracks()
	if len(tracks) != 1 || tracks[0].Kind() != webrtc.RTPCodecTypeAudio {
		t.Fatalf("tracks = %v", tracks)
	}
	st.Stop()
	st.Stop()
}

func TestCountPacket(t *testing.T) {
	pkt := rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: 7, PayloadType: 111},
		Payload: []byte{1, 2, 3},
	}
	raw, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var stats TrackStats
	countPacket(&stats, raw)
	countPacket(&stats, []byte{0x00})

	if stats.Packets != 1 || stats.Bytes != 3 || stats.LastSeq != 7 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestLoggerFactory(t *testing.T) {
	l := NewLoggerFactory().NewLogger("ice")
	l.Debugf("candidate %d", 1)
	l.Warn("warn")
}

func TestConnectionOfferAnswer(t *testing.T) {
	api, err := NewAPI()
	if err != nil {
		t.Fatalf("api: %v", err)
	}
	factory := NewTransportFactory(api, ICEConfiguration([]string{config.DefaultSTUN}))

	caller, err := factory("callee")
	if err != nil {
		t.Fatalf("caller: %v", err)
	}
	callee, err := factory("caller")
	if err != nil {
		t.Fatalf("callee: %v", err)
	}

	var closed atomic.Int32
	caller.OnClosed(func() { closed.Add(1) })

	st, err := FileSource{}.Acquire(context.Background(), domain.CallModeAudio)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer st.Stop()
	for _, tr := range st.Tracks() {
		if err := caller.AddLocalTrack(tr); err != nil {
			t.Fatalf("add track: %v", err)
		}
	}

	offer, err := caller.CreateOffer()
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if offer.Type != webrtc.SDPTypeOffer {
		t.Fatalf("offer type = %s", offer.Type)
	}
	if err := callee.ApplyOffer(offer); err != nil {
		t.Fatalf("apply offer: %v", err)
	}
	answer, err := callee.CreateAnswer()
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := caller.ApplyAnswer(answer); err != nil {
		t.Fatalf("apply answer: %v", err)
	}

	_ = callee.Close()
	_ = caller.Close()
	_ = caller.Close()
	if n := closed.Load(); n != 1 {
		t.Fatalf("OnClosed fired %d times", n)
	}
}
