package signaling

import (
	"encoding/json"

	"github.com/voclara/roomkit/internal/presence"
)

// Message is the envelope for every websocket frame between a room client
// and the signaling server.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants. Outbound names are client intents; inbound names
// are authoritative server broadcasts.
const (
	MessageTypeJoinRoom    = "join_video_room"
	MessageTypeLeaveRoom   = "leave_video_room"
	MessageTypeToggleMute  = "toggle_mute"
	MessageTypeToggleVideo = "toggle_video"
	MessageTypeSignal      = "signal"

	MessageTypeRoomInfo           = "room_info"
	MessageTypeParticipantJoined  = "participant_joined"
	MessageTypeParticipantLeft    = "participant_left"
	MessageTypeParticipantUpdated = "participant_updated"
	MessageTypeError              = "error"
)

// JoinPayload announces the local identity. The server answers with a
// room_info broadcast that includes the announcing client itself.
type JoinPayload struct {
	UserID      string        `json:"user_id"`
	DisplayName string        `json:"display_name"`
	Role        presence.Role `json:"role"`
}

// RoomInfoPayload is the full-roster ground truth sent once after a join.
type RoomInfoPayload struct {
	RoomID       string                       `json:"room_id"`
	Title        string                       `json:"title"`
	Participants []presence.ParticipantRecord `json:"participants"`
}

// LeftPayload identifies a departed participant.
type LeftPayload struct {
	UserID string `json:"user_id"`
}

// UpdatePayload carries a partial record change for one participant.
type UpdatePayload struct {
	UserID string `json:"user_id"`
	presence.ParticipantUpdate
}

// TogglePayload is the body of toggle_mute / toggle_video intents.
type TogglePayload struct {
	Value bool `json:"value"`
}

// SignalPayload is opaque peer-connection negotiation data (SDP or ICE)
// relayed unchanged between room members.
type SignalPayload struct {
	FromUserID string          `json:"from_user_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	SDP        string          `json:"sdp,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

// ErrorPayload carries server-reported errors.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewMessage marshals a typed payload into an envelope.
func NewMessage(msgType, roomID string, payload any) (*Message, error) {
	msg := &Message{Type: msgType, RoomID: roomID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return msg, nil
}
