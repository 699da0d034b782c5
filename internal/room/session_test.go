package room_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voclara/roomkit/internal/presence"
	"github.com/voclara/roomkit/internal/room"
	"github.com/voclara/roomkit/internal/signaling"
)

// fakeTransport records outbound messages and lets tests inject inbound
// frames. Close only marks the transport dead; tests close the incoming
// channel themselves to simulate the read pump exiting.
type fakeTransport struct {
	dialErr error

	mu     sync.Mutex
	sent   []*signaling.Message
	closed bool

	incoming  chan *signaling.Message
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{incoming: make(chan *signaling.Message, 16)}
}

func (f *fakeTransport) Dial(ctx context.Context, header http.Header) error {
	return f.dialErr
}

func (f *fakeTransport) Send(msg *signaling.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("transport closed")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Incoming() <-chan *signaling.Message { return f.incoming }

func (f *fakeTransport) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeTransport) closeIncoming() {
	f.closeOnce.Do(func() { close(f.incoming) })
}

func (f *fakeTransport) deliver(t *testing.T, msgType, roomID string, payload any) {
	t.Helper()
	msg, err := signaling.NewMessage(msgType, roomID, payload)
	require.NoError(t, err)
	f.incoming <- msg
}

func (f *fakeTransport) sentMessages() []*signaling.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*signaling.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// eventLog collects emitted presence events for later inspection.
type eventLog struct {
	mu     sync.Mutex
	events []presence.Event
}

func (l *eventLog) add(ev presence.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []presence.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]presence.Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *eventLog) hasStatus(status presence.ConnectionStatus) bool {
	for _, ev := range l.snapshot() {
		if sc, ok := ev.(presence.StatusChanged); ok && sc.Status == status {
			return true
		}
	}
	return false
}

type fixture struct {
	session   *room.Session
	events    *eventLog
	transport *fakeTransport
	dials     int
}

func newFixture(t *testing.T, opts room.Options) *fixture {
	t.Helper()
	fx := &fixture{events: &eventLog{}}
	opts.ServerURL = "ws://test.invalid/ws"
	opts.Dialer = func(string) room.Transport {
		fx.dials++
		fx.transport = newFakeTransport()
		return fx.transport
	}
	fx.session = room.NewSession(opts)
	fx.session.OnEvent(fx.events.add)
	return fx
}

var creds = room.Credentials{Token: "test-token"}

func roster(recs ...presence.ParticipantRecord) signaling.RoomInfoPayload {
	return signaling.RoomInfoPayload{RoomID: "room-1", Title: "Session A", Participants: recs}
}

func TestConnect_Authentication(t *testing.T) {
	t.Run("missing token fails before dialing", func(t *testing.T) {
		fx := newFixture(t, room.Options{})

		err := fx.session.Connect(context.Background(), "room-1", room.Credentials{})

		assert.ErrorIs(t, err, room.ErrAuthenticationFailed)
		assert.Zero(t, fx.dials)
	})

	t.Run("rejected token maps to authentication failure", func(t *testing.T) {
		fx := newFixture(t, room.Options{})
		fx.session = room.NewSession(room.Options{
			ServerURL: "ws://test.invalid/ws",
			Dialer: func(string) room.Transport {
				ft := newFakeTransport()
				ft.dialErr = signaling.ErrUnauthorized
				return ft
			},
		})

		err := fx.session.Connect(context.Background(), "room-1", creds)

		assert.ErrorIs(t, err, room.ErrAuthenticationFailed)
	})

	t.Run("dial failure maps to connection failure", func(t *testing.T) {
		fx := newFixture(t, room.Options{})
		fx.session = room.NewSession(room.Options{
			ServerURL: "ws://test.invalid/ws",
			Dialer: func(string) room.Transport {
				ft := newFakeTransport()
				ft.dialErr = errors.New("connection refused")
				return ft
			},
		})

		err := fx.session.Connect(context.Background(), "room-1", creds)

		assert.ErrorIs(t, err, room.ErrConnectionFailed)
		assert.NotErrorIs(t, err, room.ErrAuthenticationFailed)
	})
}

func TestConnect_Idempotent(t *testing.T) {
	fx := newFixture(t, room.Options{})

	require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))
	require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))

	assert.Equal(t, 1, fx.dials)
	assert.Equal(t, "room-1", fx.session.RoomID())
	fx.transport.closeIncoming()
}

func TestConnect_SwitchRoom(t *testing.T) {
	fx := newFixture(t, room.Options{})

	require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))
	first := fx.transport
	require.NoError(t, fx.session.Connect(context.Background(), "room-2", creds))

	assert.Equal(t, 2, fx.dials)
	assert.True(t, first.isClosed())
	assert.Equal(t, "room-2", fx.session.RoomID())
	first.closeIncoming()
	fx.transport.closeIncoming()
}

func TestJoinFlow(t *testing.T) {
	fx := newFixture(t, room.Options{})
	require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))
	defer fx.transport.closeIncoming()

	require.NoError(t, fx.session.AnnounceJoin(room.Identity{
		UserID:      "u1",
		DisplayName: "Dana",
		Role:        presence.RoleTherapist,
	}))

	sent := fx.transport.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, signaling.MessageTypeJoinRoom, sent[0].Type)
	assert.Equal(t, "room-1", sent[0].RoomID)
	var join signaling.JoinPayload
	require.NoError(t, json.Unmarshal(sent[0].Payload, &join))
	assert.Equal(t, "u1", join.UserID)
	assert.Equal(t, presence.RoleTherapist, join.Role)

	fx.transport.deliver(t, signaling.MessageTypeRoomInfo, "room-1", roster(presence.ParticipantRecord{
		UserID: "u1", DisplayName: "Dana", Role: presence.RoleTherapist, IsActive: true,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fx.session.WaitForRoster(ctx))

	assert.Eventually(t, func() bool {
		for _, ev := range fx.events.snapshot() {
			if ri, ok := ev.(presence.RoomInfo); ok {
				return ri.Title == "Session A" && len(ri.Participants) == 1
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
	assert.True(t, fx.events.hasStatus(presence.StatusConnected))
}

func TestHandshakeTimeout(t *testing.T) {
	fx := newFixture(t, room.Options{HandshakeTimeout: 30 * time.Millisecond})
	require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))
	defer fx.transport.closeIncoming()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := fx.session.WaitForRoster(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, room.ErrConnectionFailed)
	assert.ErrorIs(t, err, room.ErrHandshakeTimeout)
	assert.Eventually(t, func() bool {
		return fx.events.hasStatus(presence.StatusErrored)
	}, time.Second, 10*time.Millisecond)
	assert.True(t, fx.transport.isClosed())
}

func TestWaitForRoster_ContextExpiry(t *testing.T) {
	fx := newFixture(t, room.Options{})
	require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))
	defer fx.transport.closeIncoming()
	defer fx.session.AnnounceLeave()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := fx.session.WaitForRoster(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnnounceLeave(t *testing.T) {
	t.Run("sends one leave intent and closes", func(t *testing.T) {
		fx := newFixture(t, room.Options{})
		require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))

		fx.session.AnnounceLeave()
		fx.session.AnnounceLeave()

		sent := fx.transport.sentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, signaling.MessageTypeLeaveRoom, sent[0].Type)
		assert.True(t, fx.transport.isClosed())
		assert.Empty(t, fx.session.RoomID())
		fx.transport.closeIncoming()
	})

	t.Run("without a connection is a no-op", func(t *testing.T) {
		fx := newFixture(t, room.Options{})
		fx.session.AnnounceLeave()
	})
}

func TestPostLeaveSuppression(t *testing.T) {
	fx := newFixture(t, room.Options{})
	require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))

	fx.transport.deliver(t, signaling.MessageTypeRoomInfo, "room-1", roster())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fx.session.WaitForRoster(ctx))

	fx.session.AnnounceLeave()
	before := len(fx.events.snapshot())

	// Broadcasts still in flight after the leave must vanish silently.
	fx.transport.deliver(t, signaling.MessageTypeParticipantJoined, "room-1", presence.ParticipantRecord{
		UserID: "late", Role: presence.RoleStudent, IsActive: true,
	})
	fx.transport.closeIncoming()

	time.Sleep(50 * time.Millisecond)
	after := fx.events.snapshot()
	assert.Len(t, after, before)
	assert.False(t, fx.events.hasStatus(presence.StatusDisconnected))
}

func TestTransportDrop(t *testing.T) {
	fx := newFixture(t, room.Options{})
	require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))

	fx.transport.deliver(t, signaling.MessageTypeRoomInfo, "room-1", roster())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fx.session.WaitForRoster(ctx))

	fx.transport.closeIncoming()

	assert.Eventually(t, func() bool {
		return fx.events.hasStatus(presence.StatusDisconnected)
	}, time.Second, 10*time.Millisecond)

	// The roster already arrived; the drop must not surface a handshake
	// failure on a later wait.
	require.NoError(t, fx.session.WaitForRoster(ctx))
}

func TestSendToggle(t *testing.T) {
	t.Run("mute intent carries the off value", func(t *testing.T) {
		fx := newFixture(t, room.Options{})
		require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))
		defer fx.transport.closeIncoming()

		require.NoError(t, fx.session.SendToggle(room.ToggleMute, true))

		sent := fx.transport.sentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, signaling.MessageTypeToggleMute, sent[0].Type)
		var p signaling.TogglePayload
		require.NoError(t, json.Unmarshal(sent[0].Payload, &p))
		assert.True(t, p.Value)
	})

	t.Run("video toggle uses its own message type", func(t *testing.T) {
		fx := newFixture(t, room.Options{})
		require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))
		defer fx.transport.closeIncoming()

		require.NoError(t, fx.session.SendToggle(room.ToggleVideo, false))

		sent := fx.transport.sentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, signaling.MessageTypeToggleVideo, sent[0].Type)
	})

	t.Run("while disconnected reports not connected", func(t *testing.T) {
		fx := newFixture(t, room.Options{})

		err := fx.session.SendToggle(room.ToggleMute, true)

		assert.ErrorIs(t, err, room.ErrNotConnected)
	})
}

func TestOnSignal(t *testing.T) {
	fx := newFixture(t, room.Options{})

	received := make(chan signaling.SignalPayload, 1)
	fx.session.OnSignal(func(p signaling.SignalPayload) { received <- p })

	require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))
	defer fx.transport.closeIncoming()

	fx.transport.deliver(t, signaling.MessageTypeSignal, "room-1", signaling.SignalPayload{
		FromUserID: "u2", Type: "offer", SDP: "v=0",
	})

	select {
	case p := <-received:
		assert.Equal(t, "u2", p.FromUserID)
		assert.Equal(t, "offer", p.Type)
	case <-time.After(time.Second):
		t.Fatal("signal payload not relayed")
	}
}

func TestServerError(t *testing.T) {
	fx := newFixture(t, room.Options{})
	require.NoError(t, fx.session.Connect(context.Background(), "room-1", creds))
	defer fx.transport.closeIncoming()

	fx.transport.deliver(t, signaling.MessageTypeError, "room-1", signaling.ErrorPayload{Error: "room is full"})

	assert.Eventually(t, func() bool {
		for _, ev := range fx.events.snapshot() {
			if sc, ok := ev.(presence.StatusChanged); ok && sc.Status == presence.StatusErrored {
				return sc.Err != nil && sc.Err.Error() == "room is full"
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}
