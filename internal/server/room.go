package server

import (
	"time"

	"github.com/voclara/roomkit/internal/presence"
	"github.com/voclara/roomkit/internal/signaling"
)

// member pairs a live connection with its roster record.
type member struct {
	client *Client
	record presence.ParticipantRecord
}

// Room is one therapy room: a title plus the authoritative roster keyed by
// user id. At most one live member per user id at any instant.
type Room struct {
	ID        string
	Title     string
	Members   map[string]*member
	CreatedAt time.Time
}

func newRoom(id, title string) *Room {
	return &Room{
		ID:        id,
		Title:     title,
		Members:   make(map[string]*member),
		CreatedAt: time.Now(),
	}
}

func (r *Room) participants() []presence.ParticipantRecord {
	out := make([]presence.ParticipantRecord, 0, len(r.Members))
	for _, m := range r.Members {
		out = append(out, m.record)
	}
	return out
}

// broadcast queues msg for every member except the excluded user id.
// Pass an empty string to reach everyone.
func (r *Room) broadcast(msg *signaling.Message, exceptUserID string) {
	for userID, m := range r.Members {
		if userID == exceptUserID {
			continue
		}
		m.client.queue(msg)
	}
}
