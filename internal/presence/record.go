package presence

import "time"

// Role of a participant in a therapy room, fixed at join time.
type Role string

const (
	RoleTherapist Role = "therapist"
	RoleStudent   Role = "student"
)

// ConnectionStatus tracks the transport lifecycle of the local client.
// It is driven only by transport callbacks, never inferred from the roster.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusErrored      ConnectionStatus = "errored"
)

// ParticipantRecord is the last-known presence state of one room member.
// UserID is unique within a room; DisplayName and JoinedAt never change
// after the first join.
type ParticipantRecord struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	IsActive    bool      `json:"is_active"`
	IsMuted     bool      `json:"is_muted"`
	IsVideoOff  bool      `json:"is_video_off"`
	JoinedAt    time.Time `json:"joined_at"`
}

// ParticipantUpdate carries a partial change to an existing record.
// Nil fields are left untouched.
type ParticipantUpdate struct {
	IsActive   *bool `json:"is_active,omitempty"`
	IsMuted    *bool `json:"is_muted,omitempty"`
	IsVideoOff *bool `json:"is_video_off,omitempty"`
}

// RoomState is the reconciled view of one room. The roster is owned by the
// Reconciler; everything handed outward is a deep copy.
type RoomState struct {
	RoomID    string
	Title     string
	Roster    map[string]ParticipantRecord
	Status    ConnectionStatus
	LastError string
}

func (s RoomState) clone() RoomState {
	out := s
	out.Roster = make(map[string]ParticipantRecord, len(s.Roster))
	for id, rec := range s.Roster {
		out.Roster[id] = rec
	}
	return out
}
