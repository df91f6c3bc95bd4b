// Package call drives one user's call: local media, room join and the
// dispatch of everything the signaling server sends.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/p2pcall/internal/app/negotiate"
	"github.com/dkeye/p2pcall/internal/core"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrCallActive = errors.New("call already active")
	ErrEmptyChat  = errors.New("empty chat message")
)

type ChatHandler func(from domain.SessionID, text string)

type Controller struct {
	room   domain.RoomName
	signal core.Signaler
	media  core.MediaSource
	coord  *negotiate.Coordinator

	mu       sync.Mutex
	self     domain.SessionID
	mode     domain.CallMode
	stream   core.LocalStream
	starting bool
	onChat   ChatHandler
	onError  func(code string)
}

func New(room domain.RoomName, signal core.Signaler, media core.MediaSource, coord *negotiate.Coordinator) *Controller {
	return &Controller{
		room:   room,
		signal: signal,
		media:  media,
		coord:  coord,
	}
}

func (c *Controller) OnChat(fn ChatHandler) {
	c.mu.Lock()
	c.onChat = fn
	c.mu.Unlock()
}

// OnServerError is called with the code of every error the server reports.
func (c *Controller) OnServerError(fn func(code string)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *Controller) OnRemoteTrack(fn func(remote domain.SessionID, track *webrtc.TrackRemote)) {
	c.coord.OnRemoteTrack(fn)
}

func (c *Controller) Self() domain.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Controller) Room() domain.RoomName { return c.room }

func (c *Controller) Mode() domain.CallMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// StartCall acquires local media and joins the room. If media cannot be
// had, the room is not joined. Offers go out once the room-state reply
// names the members already there.
func (c *Controller) StartCall(ctx context.Context, mode domain.CallMode) error {
	c.mu.Lock()
	if c.stream != nil || c.starting {
		c.mu.Unlock()
		return ErrCallActive
	}
	c.starting = true
	c.mu.Unlock()

	stream, err := c.media.Acquire(ctx, mode)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("module", "call").Str("mode", string(mode)).Msg("media acquisition failed")
		return fmt.Errorf("acquire %s media: %w", mode, err)
	}
	c.stream = stream
	c.mode = mode
	c.mu.Unlock()

	c.coord.Begin(stream)
	if err := c.signal.Send(domain.Message{Type: domain.KindJoin, Room: c.room}); err != nil {
		c.teardown()
		return fmt.Errorf("join %s: %w", c.room, err)
	}
	log.Info().Str("module", "call").Str("room", string(c.room)).Str("mode", string(mode)).Msg("call started")
	return nil
}

// EndCall tears the call down and tells the room once. Without an active
// call it does nothing.
func (c *Controller) EndCall() error {
	if !c.teardown() {
		return nil
	}
	if err := c.signal.Send(domain.Message{Type: domain.KindEndCall, Room: c.room}); err != nil {
		return fmt.Errorf("send end-call: %w", err)
	}
	log.Info().Str("module", "call").Str("room", string(c.room)).Msg("call ended")
	return nil
}

func (c *Controller) teardown() bool {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()
	if stream == nil {
		return false
	}
	closed := c.coord.Reset()
	stream.Stop()
	log.Info().Str("module", "call").Int("peers_closed", closed).Msg("call torn down")
	return true
}

// SendChat relays text to the room and echoes it to the local chat handler.
func (c *Controller) SendChat(text string) error {
	if text == "" {
		return ErrEmptyChat
	}
	msg, err := domain.NewMessage(domain.KindChat, text)
	if err != nil {
		return err
	}
	msg.Room = c.room
	if err := c.signal.Send(msg); err != nil {
		return fmt.Errorf("send chat: %w", err)
	}
	c.deliverChat(c.Self(), text)
	return nil
}

func (c *Controller) deliverChat(from domain.SessionID, text string) {
	c.mu.Lock()
	fn := c.onChat
	c.mu.Unlock()
	if fn != nil {
		fn(from, text)
	}
}

// Handle dispatches one message from the signaling server. Errors are
// local to the message; the caller keeps going.
func (c *Controller) Handle(msg domain.Message) error {
	if self := c.Self(); self != "" && !msg.AddressedTo(self) {
		return nil
	}

	switch msg.Type {
	case domain.KindWelcome:
		c.mu.Lock()
		c.self = msg.From
		c.mu.Unlock()
		c.coord.SetSelf(msg.From)
		log.Info().Str("module", "call").Str("sid", string(msg.From)).Msg("welcome")

	case domain.KindRoomState:
		var st domain.RoomState
		if err := msg.Decode(&st); err != nil {
			return fmt.Errorf("decode room-state: %w", err)
		}
		log.Info().Str("module", "call").Str("room", string(msg.Room)).Int("members", st.Count).Msg("joined room")
		if !c.Active() {
			return nil
		}
		// the side that starts the call offers to everyone already there
		self := c.Self()
		remotes := make([]domain.SessionID, 0, len(st.Members))
		for _, m := range st.Members {
			if m.SID != self {
				remotes = append(remotes, m.SID)
			}
		}
		return c.coord.OfferAll(remotes)

	case domain.KindUserConnected:
		return c.coord.OnPeerJoined(msg.From)

	case domain.KindUserDisconnected:
		if c.coord.OnPeerLeft(msg.From) {
			log.Info().Str("module", "call").Str("peer", string(msg.From)).Msg("peer left, entry closed")
		}

	case domain.KindOffer:
		var offer webrtc.SessionDescription
		if err := msg.Decode(&offer); err != nil {
			return fmt.Errorf("decode offer: %w", err)
		}
		return c.coord.HandleOffer(msg.From, offer)

	case domain.KindAnswer:
		var answer webrtc.SessionDescription
		if err := msg.Decode(&answer); err != nil {
			return fmt.Errorf("decode answer: %w", err)
		}
		return c.coord.HandleAnswer(msg.From, answer)

	case domain.KindCandidate:
		var cand webrtc.ICECandidateInit
		if err := msg.Decode(&cand); err != nil {
			return fmt.Errorf("decode candidate: %w", err)
		}
		return c.coord.HandleCandidate(msg.From, cand)

	case domain.KindEndCall:
		// no re-broadcast, or every member would echo it back
		if c.teardown() {
			log.Info().Str("module", "call").Str("peer", string(msg.From)).Msg("call ended by peer")
		}

	case domain.KindChat:
		var text string
		if err := msg.Decode(&text); err != nil {
			return fmt.Errorf("decode chat: %w", err)
		}
		c.deliverChat(msg.From, text)

	case domain.KindError:
		log.Warn().Str("module", "call").Str("code", msg.Error).Msg("server error")
		c.mu.Lock()
		fn := c.onError
		c.mu.Unlock()
		if fn != nil {
			fn(msg.Error)
		}

	case domain.KindPong, domain.KindLeave:
		log.Debug().Str("module", "call").Str("type", string(msg.Type)).Msg("control")

	default:
		log.Debug().Str("module", "call").Str("type", string(msg.Type)).Msg("unhandled message")
	}
	return nil
}

// Run feeds Handle from in until it closes or ctx ends.
func (c *Controller) Run(ctx context.Context, in <-chan domain.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if err := c.Handle(msg); err != nil {
				log.Warn().Err(err).Str("module", "call").Str("type", string(msg.Type)).Str("from", string(msg.From)).Msg("handle")
			}
		}
	}
}
