package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/voclara/roomkit/internal/presence"
)

// MediaToggler is the slice of the media controller the roster view needs.
type MediaToggler interface {
	SetAudioEnabled(bool)
	SetVideoEnabled(bool)
	AudioEnabled() bool
	VideoEnabled() bool
}

// StateMsg delivers a fresh reconciled snapshot to the running program.
type StateMsg presence.RoomState

// RosterModel renders the live room roster. It only reads reconciled
// snapshots; toggles go through the media controller, never directly into
// the roster.
type RosterModel struct {
	state    presence.RoomState
	media    MediaToggler
	spin     spinner.Model
	quitting bool
}

func NewRosterModel(initial presence.RoomState, media MediaToggler) RosterModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle
	return RosterModel{state: initial, media: media, spin: sp}
}

func (m RosterModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m RosterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "m":
			m.media.SetAudioEnabled(!m.media.AudioEnabled())
			return m, nil
		case "v":
			m.media.SetVideoEnabled(!m.media.VideoEnabled())
			return m, nil
		}

	case StateMsg:
		m.state = presence.RoomState(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m RosterModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := m.state.Title
	if title == "" {
		title = m.state.RoomID
	}
	b.WriteString(TitleStyle.Render(fmt.Sprintf("%s %s", IconRoom, title)))
	b.WriteString("\n")
	b.WriteString(m.statusBanner())
	b.WriteString("\n\n")

	if m.state.Status == presence.StatusConnecting {
		b.WriteString(fmt.Sprintf("%s joining room...\n", m.spin.View()))
		return b.String()
	}

	b.WriteString(RosterBoxStyle.Render(m.rosterLines()))
	b.WriteString("\n")
	b.WriteString(m.localControls())
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render("m: mute  v: video  q: leave"))
	b.WriteString("\n")

	return b.String()
}

func (m RosterModel) statusBanner() string {
	switch m.state.Status {
	case presence.StatusConnected:
		return BannerStyle.Render("connected")
	case presence.StatusConnecting:
		return WarningStyle.Render(IconWaiting + " connecting")
	case presence.StatusDisconnected:
		return WarningStyle.Render(IconConnect + " reconnecting...")
	default:
		reason := m.state.LastError
		if reason == "" {
			reason = "connection error"
		}
		return ErrorStyle.Render(IconError + " " + reason)
	}
}

func (m RosterModel) rosterLines() string {
	if len(m.state.Roster) == 0 {
		return MutedStyle.Render("Waiting for participants...")
	}

	records := make([]presence.ParticipantRecord, 0, len(m.state.Roster))
	for _, rec := range m.state.Roster {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].JoinedAt.Before(records[j].JoinedAt)
	})

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		icon := IconPeer
		if rec.Role == presence.RoleTherapist {
			icon = IconTherapist
		}

		mic := IconMicOn
		if rec.IsMuted {
			mic = IconMicOff
		}
		cam := IconCamOn
		if rec.IsVideoOff {
			cam = IconCamOff
		}

		name := rec.DisplayName
		if !rec.IsActive {
			name = MutedStyle.Render(name + " (away)")
		} else {
			name = BoldStyle.Render(name)
		}

		lines = append(lines, fmt.Sprintf("%s %s  %s %s", icon, name, mic, cam))
	}

	return strings.Join(lines, "\n")
}

func (m RosterModel) localControls() string {
	mic := IconMicOn + " on"
	if !m.media.AudioEnabled() {
		mic = IconMicOff + " muted"
	}
	cam := IconCamOn + " on"
	if !m.media.VideoEnabled() {
		cam = IconCamOff + " off"
	}
	return MutedStyle.Render(fmt.Sprintf("you: %s  %s", mic, cam))
}
