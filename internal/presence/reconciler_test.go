package presence_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voclara/roomkit/internal/presence"
)

func record(userID string, role presence.Role) presence.ParticipantRecord {
	return presence.ParticipantRecord{
		UserID:      userID,
		DisplayName: "Participant " + userID,
		Role:        role,
		IsActive:    true,
		JoinedAt:    time.Now(),
	}
}

func boolPtr(v bool) *bool { return &v }

func TestReconciler_RoomInfo(t *testing.T) {
	t.Run("replaces title and roster wholesale", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: record("stale", presence.RoleStudent)}))

		require.NoError(t, r.Apply(presence.RoomInfo{
			RoomID: "room-1",
			Title:  "Session A",
			Participants: []presence.ParticipantRecord{
				record("u1", presence.RoleTherapist),
			},
		}))

		state := r.Snapshot()
		assert.Equal(t, "Session A", state.Title)
		assert.Len(t, state.Roster, 1)
		assert.NotContains(t, state.Roster, "stale")
		assert.Equal(t, presence.RoleTherapist, state.Roster["u1"].Role)
	})

	t.Run("empty participant list clears roster", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: record("u1", presence.RoleStudent)}))

		require.NoError(t, r.Apply(presence.RoomInfo{RoomID: "room-1", Title: "Empty"}))

		assert.Empty(t, r.Snapshot().Roster)
	})
}

func TestReconciler_ParticipantJoined(t *testing.T) {
	t.Run("inserts new record", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: record("u1", presence.RoleTherapist)}))

		state := r.Snapshot()
		require.Contains(t, state.Roster, "u1")
		assert.True(t, state.Roster["u1"].IsActive)
	})

	t.Run("duplicate delivery is idempotent", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		rec := record("u1", presence.RoleTherapist)

		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: rec}))
		once := r.Snapshot()

		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: rec}))
		twice := r.Snapshot()

		assert.Equal(t, once.Roster, twice.Roster)
	})

	t.Run("rejoin overwrites in place", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		rec := record("u1", presence.RoleStudent)
		rec.IsMuted = false
		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: rec}))

		rec.IsMuted = true
		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: rec}))

		state := r.Snapshot()
		assert.Len(t, state.Roster, 1)
		assert.True(t, state.Roster["u1"].IsMuted)
	})
}

func TestReconciler_ParticipantLeft(t *testing.T) {
	t.Run("removes participant", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: record("u1", presence.RoleTherapist)}))
		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: record("u2", presence.RoleStudent)}))

		require.NoError(t, r.Apply(presence.ParticipantLeft{UserID: "u2"}))

		state := r.Snapshot()
		assert.Len(t, state.Roster, 1)
		assert.NotContains(t, state.Roster, "u2")
	})

	t.Run("absent user id is a no-op", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: record("u1", presence.RoleTherapist)}))
		before := r.Snapshot()

		require.NoError(t, r.Apply(presence.ParticipantLeft{UserID: "ghost"}))

		assert.Equal(t, before.Roster, r.Snapshot().Roster)
	})
}

func TestReconciler_ParticipantUpdated(t *testing.T) {
	t.Run("merges partial fields only", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		rec := record("u1", presence.RoleStudent)
		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: rec}))

		require.NoError(t, r.Apply(presence.ParticipantUpdated{
			UserID: "u1",
			Update: presence.ParticipantUpdate{IsMuted: boolPtr(true)},
		}))

		got := r.Snapshot().Roster["u1"]
		assert.True(t, got.IsMuted)
		assert.Equal(t, rec.DisplayName, got.DisplayName)
		assert.Equal(t, rec.Role, got.Role)
		assert.Equal(t, rec.IsVideoOff, got.IsVideoOff)
		assert.Equal(t, rec.IsActive, got.IsActive)
	})

	t.Run("unknown user id is discarded", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: record("u1", presence.RoleTherapist)}))
		before := r.Snapshot()

		err := r.Apply(presence.ParticipantUpdated{
			UserID: "never-seen",
			Update: presence.ParticipantUpdate{IsMuted: boolPtr(true)},
		})

		assert.ErrorIs(t, err, presence.ErrStaleUpdate)
		assert.Equal(t, before.Roster, r.Snapshot().Roster)
	})
}

func TestReconciler_StatusChanged(t *testing.T) {
	t.Run("errored records the error", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		require.NoError(t, r.Apply(presence.StatusChanged{
			Status: presence.StatusErrored,
			Err:    errors.New("handshake timeout"),
		}))

		state := r.Snapshot()
		assert.Equal(t, presence.StatusErrored, state.Status)
		assert.Equal(t, "handshake timeout", state.LastError)
	})

	t.Run("connected clears last error", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		require.NoError(t, r.Apply(presence.StatusChanged{Status: presence.StatusErrored, Err: errors.New("boom")}))
		require.NoError(t, r.Apply(presence.StatusChanged{Status: presence.StatusConnected}))

		state := r.Snapshot()
		assert.Equal(t, presence.StatusConnected, state.Status)
		assert.Empty(t, state.LastError)
	})
}

func TestReconciler_Subscribe(t *testing.T) {
	t.Run("notifies with fresh snapshots", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		var seen []presence.RoomState
		cancel := r.Subscribe(func(s presence.RoomState) { seen = append(seen, s) })
		defer cancel()

		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: record("u1", presence.RoleTherapist)}))

		require.Len(t, seen, 1)
		assert.Contains(t, seen[0].Roster, "u1")
	})

	t.Run("cancel stops notifications", func(t *testing.T) {
		r := presence.NewReconciler("room-1")
		calls := 0
		cancel := r.Subscribe(func(presence.RoomState) { calls++ })

		require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: record("u1", presence.RoleStudent)}))
		cancel()
		require.NoError(t, r.Apply(presence.ParticipantLeft{UserID: "u1"}))

		assert.Equal(t, 1, calls)
	})
}

func TestReconciler_SnapshotIsolation(t *testing.T) {
	r := presence.NewReconciler("room-1")
	require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: record("u1", presence.RoleTherapist)}))

	snap := r.Snapshot()
	delete(snap.Roster, "u1")

	assert.Contains(t, r.Snapshot().Roster, "u1")
}

func TestReconciler_BasicJoinFlow(t *testing.T) {
	r := presence.NewReconciler("room-1")

	require.NoError(t, r.Apply(presence.RoomInfo{RoomID: "room-1", Title: "Session A"}))
	require.NoError(t, r.Apply(presence.ParticipantJoined{Participant: record("u1", presence.RoleTherapist)}))

	state := r.Snapshot()
	assert.Equal(t, "Session A", state.Title)
	assert.Len(t, state.Roster, 1)
	assert.Equal(t, presence.RoleTherapist, state.Roster["u1"].Role)
}
