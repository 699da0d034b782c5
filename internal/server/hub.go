package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voclara/roomkit/internal/presence"
	"github.com/voclara/roomkit/internal/signaling"
)

// inbound pairs a parsed frame with the connection it arrived on.
type inbound struct {
	client *Client
	msg    *signaling.Message
}

type createReq struct {
	title string
	reply chan RoomSummary
}

// RoomSummary is the REST-facing view of a room.
type RoomSummary struct {
	RoomID           string    `json:"room_id"`
	Title            string    `json:"title"`
	ParticipantCount int       `json:"participant_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// Hub owns all rooms and rosters. A single goroutine (Run) touches the
// maps; connections and REST handlers talk to it over channels only.
type Hub struct {
	Rooms map[string]*Room

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan inbound

	creates chan createReq
	lists   chan chan []RoomSummary

	roomTTL time.Duration
	log     zerolog.Logger
}

func NewHub(roomTTL time.Duration) *Hub {
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan inbound),
		creates:    make(chan createReq),
		lists:      make(chan chan []RoomSummary),
		roomTTL:    roomTTL,
		log:        log.With().Str("component", "server.hub").Logger(),
	}
}

// CreateRoom registers a new room and returns its summary. Called from
// REST handlers; the hub goroutine does the actual mutation.
func (h *Hub) CreateRoom(title string) RoomSummary {
	reply := make(chan RoomSummary, 1)
	h.creates <- createReq{title: title, reply: reply}
	return <-reply
}

// ListRooms returns summaries of all open rooms.
func (h *Hub) ListRooms() []RoomSummary {
	reply := make(chan []RoomSummary, 1)
	h.lists <- reply
	return <-reply
}

// Run is the hub's main loop. It exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	sweep := time.NewTicker(10 * time.Minute)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.log.Debug().Str("addr", client.Conn.RemoteAddr().String()).Msg("client connected")

		case client := <-h.Unregister:
			h.removeMember(client, "disconnect")
			close(client.Send)

		case req := <-h.creates:
			room := newRoom(uuid.NewString(), req.title)
			h.Rooms[room.ID] = room
			h.log.Info().Str("room_id", room.ID).Str("title", room.Title).Msg("room created")
			req.reply <- h.summarize(room)

		case reply := <-h.lists:
			out := make([]RoomSummary, 0, len(h.Rooms))
			for _, room := range h.Rooms {
				out = append(out, h.summarize(room))
			}
			reply <- out

		case in := <-h.Inbound:
			h.dispatch(in.client, in.msg)

		case <-sweep.C:
			for id, room := range h.Rooms {
				if len(room.Members) == 0 && time.Since(room.CreatedAt) > h.roomTTL {
					delete(h.Rooms, id)
					h.log.Info().Str("room_id", id).Msg("expired empty room")
				}
			}
		}
	}
}

func (h *Hub) summarize(room *Room) RoomSummary {
	return RoomSummary{
		RoomID:           room.ID,
		Title:            room.Title,
		ParticipantCount: len(room.Members),
		CreatedAt:        room.CreatedAt,
	}
}

func (h *Hub) dispatch(c *Client, msg *signaling.Message) {
	switch msg.Type {
	case signaling.MessageTypeJoinRoom:
		h.handleJoin(c, msg)
	case signaling.MessageTypeLeaveRoom:
		h.removeMember(c, "leave")
	case signaling.MessageTypeToggleMute:
		h.handleToggle(c, msg, signaling.MessageTypeToggleMute)
	case signaling.MessageTypeToggleVideo:
		h.handleToggle(c, msg, signaling.MessageTypeToggleVideo)
	case signaling.MessageTypeSignal:
		h.handleSignal(c, msg)
	default:
		h.log.Debug().Str("type", msg.Type).Msg("unknown message type")
	}
}

// handleJoin adds the announcing client to the roster and answers with the
// authoritative room_info, which always includes the joiner itself. A
// rejoin with a known user id updates the record in place; the roster
// never holds two live records for one user id.
func (h *Hub) handleJoin(c *Client, msg *signaling.Message) {
	var p signaling.JoinPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.UserID == "" {
		h.sendError(c, "invalid join payload")
		return
	}

	room, ok := h.Rooms[msg.RoomID]
	if !ok {
		h.sendError(c, "room not found")
		return
	}

	// One room per connection. Joining another room leaves the old one
	// first, so no stale membership survives the switch.
	if c.RoomID != "" && c.RoomID != msg.RoomID {
		h.removeMember(c, "switched room")
	}

	record := presence.ParticipantRecord{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		IsActive:    true,
		JoinedAt:    time.Now(),
	}
	if existing, rejoin := room.Members[p.UserID]; rejoin {
		// DisplayName and JoinedAt are immutable once joined.
		record.DisplayName = existing.record.DisplayName
		record.JoinedAt = existing.record.JoinedAt
		record.IsMuted = existing.record.IsMuted
		record.IsVideoOff = existing.record.IsVideoOff
		if existing.client != c && existing.client.Conn != nil {
			existing.client.Conn.Close()
		}
	}

	c.RoomID = room.ID
	c.UserID = p.UserID
	room.Members[p.UserID] = &member{client: c, record: record}

	info, err := signaling.NewMessage(signaling.MessageTypeRoomInfo, room.ID, signaling.RoomInfoPayload{
		RoomID:       room.ID,
		Title:        room.Title,
		Participants: room.participants(),
	})
	if err != nil {
		h.sendError(c, "internal error")
		return
	}
	c.queue(info)

	if joined, err := signaling.NewMessage(signaling.MessageTypeParticipantJoined, room.ID, record); err == nil {
		room.broadcast(joined, p.UserID)
	}

	h.log.Info().Str("room_id", room.ID).Str("user_id", p.UserID).Str("role", string(p.Role)).Msg("participant joined")
}

// removeMember drops c from its room and broadcasts participant_left. A
// replaced connection (same user rejoined elsewhere) no longer owns the
// membership and is ignored.
func (h *Hub) removeMember(c *Client, cause string) {
	if c.RoomID == "" {
		return
	}
	room, ok := h.Rooms[c.RoomID]
	if !ok {
		return
	}
	m, ok := room.Members[c.UserID]
	if !ok || m.client != c {
		return
	}

	delete(room.Members, c.UserID)
	if left, err := signaling.NewMessage(signaling.MessageTypeParticipantLeft, room.ID, signaling.LeftPayload{UserID: c.UserID}); err == nil {
		room.broadcast(left, "")
	}

	h.log.Info().Str("room_id", room.ID).Str("user_id", c.UserID).Str("cause", cause).Msg("participant left")
	c.RoomID = ""
	c.UserID = ""
}

// handleToggle updates the sender's record and rebroadcasts the new value
// to every member, the sender included. The sender applies its own echo
// like any other update.
func (h *Hub) handleToggle(c *Client, msg *signaling.Message, kind string) {
	var p signaling.TogglePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		h.sendError(c, "invalid toggle payload")
		return
	}

	room, ok := h.Rooms[c.RoomID]
	if !ok {
		h.sendError(c, "not in a room")
		return
	}
	m, ok := room.Members[c.UserID]
	if !ok || m.client != c {
		h.sendError(c, "not in a room")
		return
	}

	update := signaling.UpdatePayload{UserID: c.UserID}
	value := p.Value
	if kind == signaling.MessageTypeToggleMute {
		m.record.IsMuted = value
		update.IsMuted = &value
	} else {
		m.record.IsVideoOff = value
		update.IsVideoOff = &value
	}

	if updated, err := signaling.NewMessage(signaling.MessageTypeParticipantUpdated, room.ID, update); err == nil {
		room.broadcast(updated, "")
	}
}

// handleSignal relays opaque negotiation payloads to the other members.
func (h *Hub) handleSignal(c *Client, msg *signaling.Message) {
	room, ok := h.Rooms[c.RoomID]
	if !ok {
		h.sendError(c, "not in a room")
		return
	}

	var p signaling.SignalPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		h.sendError(c, "invalid signal payload")
		return
	}
	p.FromUserID = c.UserID

	if relay, err := signaling.NewMessage(signaling.MessageTypeSignal, room.ID, p); err == nil {
		room.broadcast(relay, c.UserID)
	}
}

func (h *Hub) sendError(c *Client, text string) {
	if msg, err := signaling.NewMessage(signaling.MessageTypeError, "", signaling.ErrorPayload{Error: text}); err == nil {
		c.queue(msg)
	}
}
