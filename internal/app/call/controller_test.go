package call_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/dkeye/p2pcall/internal/app/call"
	"github.com/dkeye/p2pcall/internal/app/negotiate"
	"github.com/dkeye/p2pcall/internal/app/peer"
	"github.com/dkeye/p2pcall/internal/app/peer/peertest"
	"github.com/dkeye/p2pcall/internal/core"
	"github.com/dkeye/p2pcall/internal/core/mocks"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/pion/webrtc/v4"
	"go.uber.org/mock/gomock"
)

const room domain.RoomName = "chat-room"

// fileless media: every Acquire hands out a fresh in-memory stream
type testMedia struct {
	mu      sync.Mutex
	streams []*peertest.Stream
}

func (m *testMedia) Acquire(_ context.Context, mode domain.CallMode) (core.LocalStream, error) {
	s, err := peertest.NewStream(mode)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

func (m *testMedia) last() *peertest.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[len(m.streams)-1]
}

type client struct {
	sid   domain.SessionID
	net   *peertest.Network
	peers *peer.Manager
	media *testMedia
	ctl   *call.Controller
}

func newClient(t *testing.T, sid domain.SessionID, signal core.Signaler) *client {
	t.Helper()
	c := &client{sid: sid, net: peertest.NewNetwork(), media: &testMedia{}}
	c.peers = peer.NewManager(c.net.Factory())
	coord := negotiate.New(c.peers, signal)
	c.ctl = call.New(room, signal, c.media, coord)
	if err := c.ctl.Handle(domain.Message{Type: domain.KindWelcome, From: sid}); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	return c
}

// inCall starts a call and pretends the given peers joined after us.
func inCall(t *testing.T, sid domain.SessionID, remotes ...domain.SessionID) (*client, *peertest.Outbox) {
	t.Helper()
	out := &peertest.Outbox{}
	c := newClient(t, sid, out)
	if err := c.ctl.StartCall(context.Background(), domain.CallModeAudio); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, r := range remotes {
		if err := c.ctl.Handle(domain.Message{Type: domain.KindUserConnected, From: r}); err != nil {
			t.Fatalf("user-connected %s: %v", r, err)
		}
	}
	out.Take()
	return c, out
}

func TestStartCallJoinsRoom(t *testing.T) {
	out := &peertest.Outbox{}
	c := newClient(t, "a", out)

	if err := c.ctl.StartCall(context.Background(), domain.CallModeVideo); err != nil {
		t.Fatalf("start: %v", err)
	}
	msgs := out.Take()
	if len(msgs) != 1 || msgs[0].Type != domain.KindJoin || msgs[0].Room != room {
		t.Fatalf("sent = %+v", msgs)
	}
	if !c.ctl.Active() || c.ctl.Mode() != domain.CallModeVideo {
		t.Fatal("call not active")
	}
	if len(c.media.last().Tracks()) != 2 {
		t.Fatal("video call without two tracks")
	}

	if err := c.ctl.StartCall(context.Background(), domain.CallModeAudio); !errors.Is(err, call.ErrCallActive) {
		t.Fatalf("second start: %v", err)
	}
}

func TestStartCallMediaFailureDoesNotJoin(t *testing.T) {
	ctrl := gomock.NewController(t)
	media := mocks.NewMockMediaSource(ctrl)
	denied := errors.New("permission denied")
	media.EXPECT().Acquire(gomock.Any(), domain.CallModeVideo).Return(nil, denied)

	out := &peertest.Outbox{}
	peers := peer.NewManager(peertest.NewNetwork().Factory())
	ctl := call.New(room, out, media, negotiate.New(peers, out))

	err := ctl.StartCall(context.Background(), domain.CallModeVideo)
	if !errors.Is(err, denied) {
		t.Fatalf("err = %v", err)
	}
	if ctl.Active() || len(out.Take()) != 0 {
		t.Fatal("failed start joined the room")
	}
}

func TestEndCallSendsSingleNotice(t *testing.T) {
	a, out := inCall(t, "a", "b", "c")
	if a.peers.Len() != 2 {
		t.Fatalf("entries = %d", a.peers.Len())
	}

	if err := a.ctl.EndCall(); err != nil {
		t.Fatalf("end: %v", err)
	}

	ends := out.OfType(domain.KindEndCall)
	if len(ends) != 1 || ends[0].Room != room || ends[0].To != "" {
		t.Fatalf("end-call notices = %+v", ends)
	}
	if a.media.last().Stopped() != 1 {
		t.Fatalf("stream stopped %d times", a.media.last().Stopped())
	}
	for _, r := range []domain.SessionID{"b", "c"} {
		if !a.net.Last(r).Closed() {
			t.Fatalf("entry %s left open", r)
		}
	}
	if a.peers.Len() != 0 || a.ctl.Active() {
		t.Fatal("call state left behind")
	}

	if err := a.ctl.EndCall(); err != nil {
		t.Fatalf("second end: %v", err)
	}
	if len(out.Take()) != 0 || a.media.last().Stopped() != 1 {
		t.Fatal("second end-call was not a no-op")
	}
}

func TestEndCallWithoutCallIsNoop(t *testing.T) {
	out := &peertest.Outbox{}
	c := newClient(t, "a", out)
	if err := c.ctl.EndCall(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(out.Take()) != 0 {
		t.Fatal("notice sent without a call")
	}
}

func TestRemoteEndCallIsNotRebroadcast(t *testing.T) {
	a, out := inCall(t, "a", "b")

	if err := a.ctl.Handle(domain.Message{Type: domain.KindEndCall, From: "b", Room: room}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(out.OfType(domain.KindEndCall)) != 0 {
		t.Fatal("end-call echoed")
	}
	if a.ctl.Active() || a.media.last().Stopped() != 1 || !a.net.Last("b").Closed() {
		t.Fatal("remote end-call did not tear down")
	}
}

func TestPeerDisconnectClosesOnlyThatEntry(t *testing.T) {
	a, _ := inCall(t, "a", "b", "c")

	if err := a.ctl.Handle(domain.Message{Type: domain.KindUserDisconnected, From: "b"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, ok := a.peers.Get("b"); ok || !a.net.Last("b").Closed() {
		t.Fatal("entry for b survived")
	}
	if e, ok := a.peers.Get("c"); !ok || e.Closed() || a.net.Last("c").Closed() {
		t.Fatal("entry for c touched")
	}
	if !a.ctl.Active() {
		t.Fatal("call ended by one peer leaving")
	}
}

func TestChat(t *testing.T) {
	out := &peertest.Outbox{}
	c := newClient(t, "a", out)

	type line struct {
		from domain.SessionID
		text string
	}
	var got []line
	c.ctl.OnChat(func(from domain.SessionID, text string) { got = append(got, line{from, text}) })

	if err := c.ctl.SendChat(""); !errors.Is(err, call.ErrEmptyChat) {
		t.Fatalf("empty chat: %v", err)
	}
	if err := c.ctl.SendChat("hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	sent := out.OfType(domain.KindChat)
	var text string
	if len(sent) != 1 || sent[0].Decode(&text) != nil || text != "hi" {
		t.Fatalf("sent = %+v", sent)
	}

	msg, _ := domain.NewMessage(domain.KindChat, "hello")
	msg.From = "b"
	if err := c.ctl.Handle(msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(got) != 2 || got[0] != (line{"a", "hi"}) || got[1] != (line{"b", "hello"}) {
		t.Fatalf("chat lines = %+v", got)
	}
}

func TestMessagesForOthersIgnored(t *testing.T) {
	a, out := inCall(t, "a")

	offer, _ := domain.NewMessage(domain.KindOffer, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"})
	offer.From = "b"
	offer.To = "c"
	if err := a.ctl.Handle(offer); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if a.net.Made("b") != 0 || len(out.Take()) != 0 {
		t.Fatal("acted on a message for another peer")
	}
}

func TestServerErrorReported(t *testing.T) {
	c := newClient(t, "a", &peertest.Outbox{})
	var code string
	c.ctl.OnServerError(func(s string) { code = s })
	if err := c.ctl.Handle(domain.Message{Type: domain.KindError, Error: domain.ErrCodeRateLimited}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if code != domain.ErrCodeRateLimited {
		t.Fatalf("code = %q", code)
	}
}

func TestBadPayload(t *testing.T) {
	c := newClient(t, "a", &peertest.Outbox{})
	msg := domain.Message{Type: domain.KindCandidate, From: "b", Payload: []byte(`"not an object"`)}
	if err := c.ctl.Handle(msg); err == nil {
		t.Fatal("expected decode error")
	}
}

// bus is an in-memory room: it tags senders, fans out like the server and
// answers a join with room-state.
type bus struct {
	mu      sync.Mutex
	members map[domain.SessionID]*client
	joined  []domain.SessionID
}

type endpoint struct {
	b   *bus
	sid domain.SessionID
}

func (e endpoint) Send(msg domain.Message) error {
	msg.From = e.sid
	var reply *domain.Message

	e.b.mu.Lock()
	if msg.Type == domain.KindJoin {
		if !slices.Contains(e.b.joined, e.sid) {
			e.b.joined = append(e.b.joined, e.sid)
		}
		st := domain.RoomState{Count: len(e.b.joined)}
		for _, sid := range e.b.joined {
			st.Members = append(st.Members, domain.MemberDTO{SID: sid})
		}
		rs, err := domain.NewMessage(domain.KindRoomState, st)
		if err != nil {
			e.b.mu.Unlock()
			return err
		}
		rs.Room, rs.From = msg.Room, e.sid
		reply = &rs
		msg = domain.Message{Type: domain.KindUserConnected, Room: msg.Room, From: e.sid}
	}
	var targets []*client
	for _, sid := range e.b.joined {
		if sid != e.sid {
			targets = append(targets, e.b.members[sid])
		}
	}
	self := e.b.members[e.sid]
	e.b.mu.Unlock()

	for _, c := range targets {
		if err := c.ctl.Handle(msg); err != nil {
			return err
		}
	}
	if reply != nil {
		return self.ctl.Handle(*reply)
	}
	return nil
}

func (b *bus) add(t *testing.T, sid domain.SessionID) *client {
	c := newClient(t, sid, endpoint{b: b, sid: sid})
	b.mu.Lock()
	b.members[sid] = c
	b.mu.Unlock()
	return c
}

func TestStarterOffersToExistingMember(t *testing.T) {
	b := &bus{members: make(map[domain.SessionID]*client)}
	existing := b.add(t, "b")
	starter := b.add(t, "a")

	if err := existing.ctl.StartCall(context.Background(), domain.CallModeAudio); err != nil {
		t.Fatalf("b start: %v", err)
	}
	if existing.peers.Len() != 0 {
		t.Fatal("lone member created entries")
	}
	if err := starter.ctl.StartCall(context.Background(), domain.CallModeVideo); err != nil {
		t.Fatalf("a start: %v", err)
	}

	offerer, ok := starter.peers.Get("b")
	if !ok || offerer.Role() != peer.RoleCaller || offerer.State() != peer.StateConnected {
		t.Fatalf("a's entry for b: ok=%v", ok)
	}
	answerer, ok := existing.peers.Get("a")
	if !ok || answerer.Role() != peer.RoleCallee || answerer.State() != peer.StateAnswerSent {
		t.Fatalf("b's entry for a: ok=%v", ok)
	}
	if existing.net.Made("a") != 1 || starter.net.Made("b") != 1 {
		t.Fatal("negotiation replaced an entry, glare where there was none")
	}
	if starter.net.Last("b").Tracks() != 2 {
		t.Fatalf("video call attached %d tracks", starter.net.Last("b").Tracks())
	}

	existing.net.Last("a").Connect()
	if answerer.State() != peer.StateConnected {
		t.Fatalf("b's entry state = %s", answerer.State())
	}

	if err := starter.ctl.EndCall(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if existing.ctl.Active() || existing.peers.Len() != 0 || starter.peers.Len() != 0 {
		t.Fatal("end-call did not reach the other side")
	}
}

func TestRoomStateWithoutCallSendsNothing(t *testing.T) {
	out := &peertest.Outbox{}
	c := newClient(t, "a", out)
	st, _ := domain.NewMessage(domain.KindRoomState, domain.RoomState{
		Members: []domain.MemberDTO{{SID: "a"}, {SID: "b"}},
		Count:   2,
	})
	if err := c.ctl.Handle(st); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(out.Take()) != 0 || c.peers.Len() != 0 {
		t.Fatal("offered without a call")
	}
}

func TestRoomStateOffersToEveryOtherMember(t *testing.T) {
	a, out := inCall(t, "a")
	st, _ := domain.NewMessage(domain.KindRoomState, domain.RoomState{
		Members: []domain.MemberDTO{{SID: "a"}, {SID: "b"}, {SID: "c"}},
		Count:   3,
	})
	if err := a.ctl.Handle(st); err != nil {
		t.Fatalf("handle: %v", err)
	}
	offers := out.OfType(domain.KindOffer)
	if len(offers) != 2 || offers[0].To != "b" || offers[1].To != "c" {
		t.Fatalf("offers = %+v", offers)
	}
	if a.net.Made("a") != 0 {
		t.Fatal("offered to self")
	}
}
