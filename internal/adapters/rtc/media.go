package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dkeye/p2pcall/internal/core"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const (
	oggPageDuration = 20 * time.Millisecond
	opusSampleRate  = 48000
	streamID        = "p2pcall"
)

var ErrNoVideoDevice = errors.New("no video source configured")

// opusSilence is one 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// FileSource plays Ogg/Opus and IVF/VP8 files. Without an audio file it
// sends Opus silence.
type FileSource struct {
	AudioFile string
	VideoFile string
}

func (s FileSource) Acquire(ctx context.Context, mode domain.CallMode) (core.LocalStream, error) {
	if mode.WantsVideo() && s.VideoFile == "" {
		return nil, ErrNoVideoDevice
	}

	ctx, cancel := context.WithCancel(ctx)
	st := &fileStream{cancel: cancel}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("audio track: %w", err)
	}
	var ogg *oggreader.OggReader
	if s.AudioFile != "" {
		f, err := os.Open(s.AudioFile)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open audio: %w", err)
		}
		st.files = append(st.files, f)
		if ogg, _, err = oggreader.NewWith(f); err != nil {
			st.Stop()
			return nil, fmt.Errorf("read ogg header: %w", err)
		}
	}
	st.tracks = append(st.tracks, audio)

	var ivf *ivfreader.IVFReader
	var ivfHeader *ivfreader.IVFFileHeader
	var video *webrtc.TrackLocalStaticSample
	if mode.WantsVideo() {
		f, err := os.Open(s.VideoFile)
		if err != nil {
			st.Stop()
			return nil, fmt.Errorf("open video: %w", err)
		}
		st.files = append(st.files, f)
		if ivf, ivfHeader, err = ivfreader.NewWith(f); err != nil {
			st.Stop()
			return nil, fmt.Errorf("read ivf header: %w", err)
		}
		if ivfHeader.FourCC != "VP80" {
			st.Stop()
			return nil, fmt.Errorf("unsupported video codec %q", ivfHeader.FourCC)
		}
		video, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
		if err != nil {
			st.Stop()
			return nil, fmt.Errorf("video track: %w", err)
		}
		st.tracks = append(st.tracks, video)
	}

	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		pumpAudio(ctx, audio, ogg)
	}()
	if video != nil {
		st.wg.Add(1)
		go func() {
			defer st.wg.Done()
			pumpVideo(ctx, video, ivf, ivfHeader)
		}()
	}

	log.Info().Str("module", "media").Str("mode", string(mode)).Int("tracks", len(st.tracks)).Msg("local stream acquired")
	return st, nil
}

type fileStream struct {
	tracks []webrtc.TrackLocal
	files  []*os.File
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *fileStream) Tracks() []webrtc.TrackLocal { return s.tracks }

func (s *fileStream) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		for _, f := range s.files {
			_ = f.Close()
		}
		log.Info().Str("module", "media").Msg("local stream stopped")
	})
}

// pumpAudio writes Ogg pages at their own pace and falls back to silence
// once the file ends.
func pumpAudio(ctx context.Context, track *webrtc.TrackLocalStaticSample, ogg *oggreader.OggReader) {
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample := media.Sample{Data: opusSilence, Duration: oggPageDuration}
		if ogg != nil {
			page, header, err := ogg.ParseNextPage()
			switch {
			case errors.Is(err, io.EOF):
				log.Info().Str("module", "media").Msg("audio file finished, sending silence")
				ogg = nil
			case err != nil:
				log.Error().Err(err).Str("module", "media").Msg("ogg page")
				ogg = nil
			default:
				samples := header.GranulePosition - lastGranule
				lastGranule = header.GranulePosition
				sample = media.Sample{
					Data:     page,
					Duration: time.Duration((float64(samples) / opusSampleRate) * float64(time.Second)),
				}
			}
		}
		if err := track.WriteSample(sample); err != nil {
			log.Error().Err(err).Str("module", "media").Msg("write audio sample")
			return
		}
	}
}

func pumpVideo(ctx context.Context, track *webrtc.TrackLocalStaticSample, ivf *ivfreader.IVFReader, header *ivfreader.IVFFileHeader) {
	frameDuration := time.Millisecond * time.Duration(
		(float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator))*1000)
	if frameDuration <= 0 {
		frameDuration = 33 * time.Millisecond
	}
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			log.Info().Str("module", "media").Msg("video file finished")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("module", "media").Msg("ivf frame")
			return
		}
		if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			log.Error().Err(err).Str("module", "media").Msg("write video sample")
			return
		}
	}
}
