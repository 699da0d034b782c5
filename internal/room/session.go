package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voclara/roomkit/internal/presence"
	"github.com/voclara/roomkit/internal/signaling"
)

// DefaultHandshakeTimeout bounds the wait for the server's room_info after
// the transport reports connected.
const DefaultHandshakeTimeout = 10 * time.Second

// ToggleKind selects which local track state a toggle intent refers to.
type ToggleKind string

const (
	ToggleMute  ToggleKind = "mute"
	ToggleVideo ToggleKind = "video"
)

// Credentials is the bearer token obtained from the auth service before
// connecting.
type Credentials struct {
	Token string
}

// Identity is the authenticated local participant, supplied externally.
type Identity struct {
	UserID      string
	DisplayName string
	Role        presence.Role
}

// Transport is the signaling channel a session runs over. The gorilla
// client in internal/signaling is the production implementation.
type Transport interface {
	Dial(ctx context.Context, header http.Header) error
	Send(*signaling.Message) error
	Incoming() <-chan *signaling.Message
	Close()
}

// Options configure a Session.
type Options struct {
	ServerURL        string
	HandshakeTimeout time.Duration

	// Dialer builds a fresh transport per connection. Defaults to the
	// websocket signaling client.
	Dialer func(serverURL string) Transport

	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// conn is the per-connection state. A new conn is created on every
// successful dial so events from an abandoned connection can never leak
// into the current one.
type conn struct {
	transport   Transport
	roomID      string
	left        atomic.Bool
	rosterReady chan struct{}
	rosterOnce  sync.Once
	failCh      chan error
	handshake   *time.Timer
}

func (c *conn) fail(err error) {
	select {
	case c.failCh <- err:
	default:
	}
}

// Session owns exactly one live signaling connection per active room. It
// translates local intents into outbound messages and inbound messages
// into presence events; it holds no roster state of its own.
type Session struct {
	opts Options

	mu  sync.Mutex
	cur *conn

	handlerMu sync.RWMutex
	handler   func(presence.Event)
	onSignal  func(signaling.SignalPayload)

	log zerolog.Logger
}

func NewSession(opts Options) *Session {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = func(serverURL string) Transport {
			return signaling.NewClient(serverURL)
		}
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Session{opts: opts, log: logger.With().Str("component", "room.session").Logger()}
}

// OnEvent registers the inbound event handler. Exactly one handler is
// active at a time; registering again replaces the previous one.
func (s *Session) OnEvent(fn func(presence.Event)) {
	s.handlerMu.Lock()
	s.handler = fn
	s.handlerMu.Unlock()
}

// OnSignal registers the receiver for relayed peer-connection negotiation
// payloads. Signal frames bypass the presence fold entirely.
func (s *Session) OnSignal(fn func(signaling.SignalPayload)) {
	s.handlerMu.Lock()
	s.onSignal = fn
	s.handlerMu.Unlock()
}

func (s *Session) emit(ev presence.Event) {
	s.handlerMu.RLock()
	fn := s.handler
	s.handlerMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// Connect establishes the signaling transport for roomID. Connecting again
// to the same room is a no-op; connecting to a different room disconnects
// the current one first. Missing or rejected credentials fail the call
// with ErrAuthenticationFailed and are never retried internally.
func (s *Session) Connect(ctx context.Context, roomID string, creds Credentials) error {
	if creds.Token == "" {
		return newError("connect", ErrAuthenticationFailed)
	}

	s.mu.Lock()
	if cn := s.cur; cn != nil && !cn.left.Load() {
		if cn.roomID == roomID {
			s.mu.Unlock()
			return nil
		}
		s.closeLocked(cn)
	}
	s.mu.Unlock()

	s.emit(presence.StatusChanged{Status: presence.StatusConnecting})

	transport := s.opts.Dialer(s.opts.ServerURL)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+creds.Token)
	header.Set("X-Room-ID", roomID)

	if err := transport.Dial(ctx, header); err != nil {
		s.emit(presence.StatusChanged{Status: presence.StatusErrored, Err: err})
		if errors.Is(err, signaling.ErrUnauthorized) {
			return newError("connect", fmt.Errorf("%w: %w", ErrAuthenticationFailed, err))
		}
		return newError("connect", fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}

	cn := &conn{
		transport:   transport,
		roomID:      roomID,
		rosterReady: make(chan struct{}),
		failCh:      make(chan error, 1),
	}
	cn.handshake = time.AfterFunc(s.opts.HandshakeTimeout, func() {
		s.onHandshakeTimeout(cn)
	})

	s.mu.Lock()
	s.cur = cn
	s.mu.Unlock()

	s.emit(presence.StatusChanged{Status: presence.StatusConnected})
	go s.readLoop(cn)

	s.log.Info().Str("room_id", roomID).Msg("signaling transport connected")
	return nil
}

func (s *Session) onHandshakeTimeout(cn *conn) {
	if cn.left.Load() {
		return
	}
	select {
	case <-cn.rosterReady:
		return
	default:
	}

	err := fmt.Errorf("%w: %w", ErrConnectionFailed, ErrHandshakeTimeout)
	cn.fail(err)
	s.log.Warn().Str("room_id", cn.roomID).Msg("handshake timed out waiting for room_info")

	// Suppress the disconnect event the closing transport would produce;
	// errored is the terminal status for this connection.
	cn.left.Store(true)
	s.emit(presence.StatusChanged{Status: presence.StatusErrored, Err: err})
	cn.transport.Close()
}

// readLoop folds inbound frames into presence events in arrival order.
// Frames arriving after a local leave are dropped so a room the user
// already left can never be resurrected by late broadcasts.
func (s *Session) readLoop(cn *conn) {
	for msg := range cn.transport.Incoming() {
		if cn.left.Load() {
			continue
		}

		if msg.Type == signaling.MessageTypeSignal {
			s.relaySignal(msg)
			continue
		}

		ev, err := translate(msg)
		if err != nil {
			s.log.Warn().Err(err).Str("type", msg.Type).Msg("dropping malformed signaling message")
			continue
		}
		if ev == nil {
			continue
		}

		if _, ok := ev.(presence.RoomInfo); ok {
			cn.rosterOnce.Do(func() {
				cn.handshake.Stop()
				close(cn.rosterReady)
			})
		}

		s.emit(ev)
	}

	if cn.left.Load() {
		return
	}
	select {
	case <-cn.rosterReady:
		// The handshake completed; the drop is plain disconnection, not a
		// stalled join.
	default:
		cn.fail(fmt.Errorf("%w: transport closed before room_info", ErrConnectionFailed))
	}
	s.emit(presence.StatusChanged{Status: presence.StatusDisconnected})
}

func (s *Session) relaySignal(msg *signaling.Message) {
	s.handlerMu.RLock()
	fn := s.onSignal
	s.handlerMu.RUnlock()
	if fn == nil {
		return
	}

	var p signaling.SignalPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed signal payload")
		return
	}
	fn(p)
}

func translate(msg *signaling.Message) (presence.Event, error) {
	switch msg.Type {
	case signaling.MessageTypeRoomInfo:
		var p signaling.RoomInfoPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, err
		}
		return presence.RoomInfo{RoomID: p.RoomID, Title: p.Title, Participants: p.Participants}, nil

	case signaling.MessageTypeParticipantJoined:
		var rec presence.ParticipantRecord
		if err := json.Unmarshal(msg.Payload, &rec); err != nil {
			return nil, err
		}
		return presence.ParticipantJoined{Participant: rec}, nil

	case signaling.MessageTypeParticipantLeft:
		var p signaling.LeftPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, err
		}
		return presence.ParticipantLeft{UserID: p.UserID}, nil

	case signaling.MessageTypeParticipantUpdated:
		var p signaling.UpdatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, err
		}
		return presence.ParticipantUpdated{UserID: p.UserID, Update: p.ParticipantUpdate}, nil

	case signaling.MessageTypeError:
		var p signaling.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, err
		}
		return presence.StatusChanged{Status: presence.StatusErrored, Err: errors.New(p.Error)}, nil
	}

	// Signal relays and unknown types are not presence events.
	return nil, nil
}

// AnnounceJoin sends the join intent. No local state changes here: success
// is observed only through the server's room_info broadcast, which always
// includes the announcing client itself.
func (s *Session) AnnounceJoin(id Identity) error {
	cn := s.current()
	if cn == nil {
		return newError("announce join", ErrNotConnected)
	}

	msg, err := signaling.NewMessage(signaling.MessageTypeJoinRoom, cn.roomID, signaling.JoinPayload{
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		Role:        id.Role,
	})
	if err != nil {
		return newError("announce join", err)
	}
	if err := cn.transport.Send(msg); err != nil {
		return newError("announce join", fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}
	return nil
}

// AnnounceLeave sends the leave intent and closes the transport. Safe to
// call any number of times; calls after the first are no-ops. Any events
// still in flight for this room are dropped from here on.
func (s *Session) AnnounceLeave() {
	s.mu.Lock()
	cn := s.cur
	s.mu.Unlock()
	if cn == nil || cn.left.Swap(true) {
		return
	}

	cn.handshake.Stop()
	if msg, err := signaling.NewMessage(signaling.MessageTypeLeaveRoom, cn.roomID, nil); err == nil {
		if err := cn.transport.Send(msg); err != nil {
			s.log.Debug().Err(err).Msg("leave intent not delivered; closing anyway")
		}
	}
	cn.transport.Close()
	s.log.Info().Str("room_id", cn.roomID).Msg("left room")
}

// SendToggle sends a state-change intent for the local participant without
// waiting for acknowledgment; the server echoes the value back through the
// normal participant_updated path. While disconnected the intent is
// reported as an error so the caller can drop it — it is never queued or
// duplicated.
func (s *Session) SendToggle(kind ToggleKind, value bool) error {
	cn := s.current()
	if cn == nil {
		return newError("send toggle", ErrNotConnected)
	}

	msgType := signaling.MessageTypeToggleMute
	if kind == ToggleVideo {
		msgType = signaling.MessageTypeToggleVideo
	}
	msg, err := signaling.NewMessage(msgType, cn.roomID, signaling.TogglePayload{Value: value})
	if err != nil {
		return newError("send toggle", err)
	}
	if err := cn.transport.Send(msg); err != nil {
		return newError("send toggle", fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}
	return nil
}

// SendSignal relays opaque peer-connection negotiation data to the room.
func (s *Session) SendSignal(payload signaling.SignalPayload) error {
	cn := s.current()
	if cn == nil {
		return newError("send signal", ErrNotConnected)
	}
	msg, err := signaling.NewMessage(signaling.MessageTypeSignal, cn.roomID, payload)
	if err != nil {
		return newError("send signal", err)
	}
	if err := cn.transport.Send(msg); err != nil {
		return newError("send signal", fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}
	return nil
}

// WaitForRoster blocks until the first room_info arrives, the handshake
// fails, or ctx expires. It is the only suspension point after Connect.
func (s *Session) WaitForRoster(ctx context.Context) error {
	cn := s.current()
	if cn == nil {
		return newError("wait for roster", ErrNotConnected)
	}

	select {
	case <-cn.rosterReady:
		return nil
	case err := <-cn.failCh:
		return newError("wait for roster", err)
	case <-ctx.Done():
		return newError("wait for roster", ctx.Err())
	}
}

// RoomID reports the room of the live connection, if any.
func (s *Session) RoomID() string {
	if cn := s.current(); cn != nil {
		return cn.roomID
	}
	return ""
}

func (s *Session) current() *conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.left.Load() {
		return nil
	}
	return s.cur
}

func (s *Session) closeLocked(cn *conn) {
	if cn.left.Swap(true) {
		return
	}
	cn.handshake.Stop()
	cn.transport.Close()
}
