package rtc

import (
	"github.com/dkeye/p2pcall/internal/core"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/pion/webrtc/v4"
)

func ICEConfiguration(urls []string) webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: urls,
			},
		},
	}
}

// NewAPI builds a pion API with the default codecs and pion logging routed
// to zerolog.
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	s := webrtc.SettingEngine{
		LoggerFactory: NewLoggerFactory(),
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(s)), nil
}

// NewTransportFactory returns a factory creating one PeerConnection per
// remote peer.
func NewTransportFactory(api *webrtc.API, cfg webrtc.Configuration) core.TransportFactory {
	return func(remote domain.SessionID) (core.PeerTransport, error) {
		return NewWebRTCConnection(api, cfg, remote)
	}
}
