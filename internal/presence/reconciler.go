package presence

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrStaleUpdate marks a participant_updated for a user that was never
// seen. The update is discarded; a partial update must not synthesize a
// new record.
var ErrStaleUpdate = errors.New("stale update for unknown participant")

// Reconciler folds room events into a RoomState. It performs no I/O and no
// reordering: events are applied strictly in the order Apply is called.
type Reconciler struct {
	mu      sync.RWMutex
	state   RoomState
	subs    map[int]func(RoomState)
	nextSub int
}

func NewReconciler(roomID string) *Reconciler {
	return &Reconciler{
		state: RoomState{
			RoomID: roomID,
			Roster: make(map[string]ParticipantRecord),
			Status: StatusConnecting,
		},
		subs: make(map[int]func(RoomState)),
	}
}

// Apply folds one event into the state and notifies subscribers. The only
// error it can return is ErrStaleUpdate, which leaves the state untouched
// and is safe to log and drop.
func (r *Reconciler) Apply(ev Event) error {
	r.mu.Lock()

	switch e := ev.(type) {
	case RoomInfo:
		roster := make(map[string]ParticipantRecord, len(e.Participants))
		for _, p := range e.Participants {
			roster[p.UserID] = p
		}
		r.state.RoomID = e.RoomID
		r.state.Title = e.Title
		r.state.Roster = roster

	case ParticipantJoined:
		// Overwrite on duplicate delivery; rejoin updates in place.
		r.state.Roster[e.Participant.UserID] = e.Participant

	case ParticipantLeft:
		delete(r.state.Roster, e.UserID)

	case ParticipantUpdated:
		rec, ok := r.state.Roster[e.UserID]
		if !ok {
			r.mu.Unlock()
			log.Warn().Str("user_id", e.UserID).Msg("discarding update for unknown participant")
			return fmt.Errorf("%w: %s", ErrStaleUpdate, e.UserID)
		}
		if e.Update.IsActive != nil {
			rec.IsActive = *e.Update.IsActive
		}
		if e.Update.IsMuted != nil {
			rec.IsMuted = *e.Update.IsMuted
		}
		if e.Update.IsVideoOff != nil {
			rec.IsVideoOff = *e.Update.IsVideoOff
		}
		r.state.Roster[e.UserID] = rec

	case StatusChanged:
		r.state.Status = e.Status
		if e.Status == StatusConnected {
			r.state.LastError = ""
		} else if e.Err != nil {
			r.state.LastError = e.Err.Error()
		}
	}

	snap := r.state.clone()
	subs := make([]func(RoomState), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return nil
}

// Snapshot returns a deep copy of the current state. Callers may not
// mutate the roster through it.
func (r *Reconciler) Snapshot() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.clone()
}

// Subscribe registers a callback invoked with a fresh snapshot after every
// applied event. The returned function cancels the subscription.
func (r *Reconciler) Subscribe(fn func(RoomState)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}
