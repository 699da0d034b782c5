package presence

// Event is a reconcilable room event sourced from the session client.
type Event interface {
	Kind() string
}

// RoomInfo establishes ground truth right after a join: title and roster
// are replaced wholesale.
type RoomInfo struct {
	RoomID       string
	Title        string
	Participants []ParticipantRecord
}

// ParticipantJoined inserts (or overwrites) one roster record.
type ParticipantJoined struct {
	Participant ParticipantRecord
}

// ParticipantLeft removes one roster record.
type ParticipantLeft struct {
	UserID string
}

// ParticipantUpdated merges partial fields into an existing record.
type ParticipantUpdated struct {
	UserID string
	Update ParticipantUpdate
}

// StatusChanged reflects a transport lifecycle transition.
type StatusChanged struct {
	Status ConnectionStatus
	Err    error
}

func (RoomInfo) Kind() string           { return "room_info" }
func (ParticipantJoined) Kind() string  { return "participant_joined" }
func (ParticipantLeft) Kind() string    { return "participant_left" }
func (ParticipantUpdated) Kind() string { return "participant_updated" }
func (StatusChanged) Kind() string      { return "connection_status_changed" }
