package rtc

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/voclara/roomkit/internal/config"
	"github.com/voclara/roomkit/internal/signaling"
)

// Peer wraps one pion peer connection. Room membership and presence are
// handled elsewhere; this type only negotiates media transport through
// opaque signal payloads relayed by the signaling server.
type Peer struct {
	pc       *webrtc.PeerConnection
	onSignal func(signaling.SignalPayload)
	control  *webrtc.DataChannel
}

func NewPeer(cfg *config.Config) (*Peer, error) {
	iceServers := []webrtc.ICEServer{
		{URLs: cfg.GetSTUNServers()},
	}
	if turn := cfg.GetTURNServers(); turn != nil {
		user, pass := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turn,
			Username:   user,
			Credential: pass,
		})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || p.onSignal == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		p.onSignal(signaling.SignalPayload{Candidate: raw})
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Debug().Str("state", state.String()).Msg("ice connection state")
	})

	return p, nil
}

// OnSignal registers the callback that forwards locally generated
// negotiation payloads to the signaling session.
func (p *Peer) OnSignal(fn func(signaling.SignalPayload)) {
	p.onSignal = fn
}

// Publish attaches the local capture tracks to the connection.
func (p *Peer) Publish(tracks *Tracks) error {
	if tracks.audio != nil {
		if _, err := p.pc.AddTrack(tracks.audio.track); err != nil {
			return fmt.Errorf("add audio track: %w", err)
		}
	}
	if tracks.video != nil {
		if _, err := p.pc.AddTrack(tracks.video.track); err != nil {
			return fmt.Errorf("add video track: %w", err)
		}
	}
	return nil
}

// StartOffer opens the control channel and sends the initial offer.
func (p *Peer) StartOffer() error {
	dc, err := p.pc.CreateDataChannel("control", nil)
	if err != nil {
		return fmt.Errorf("create control channel: %w", err)
	}
	p.control = dc
	p.setupControl(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	if p.onSignal != nil {
		p.onSignal(signaling.SignalPayload{Type: offer.Type.String(), SDP: offer.SDP})
	}
	return nil
}

// HandleSignal applies one relayed negotiation payload: offer, answer, or
// ICE candidate.
func (p *Peer) HandleSignal(payload signaling.SignalPayload) error {
	switch payload.Type {
	case webrtc.SDPTypeOffer.String():
		if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  payload.SDP,
		}); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}

		p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() == "control" {
				p.control = dc
				p.setupControl(dc)
			}
		})

		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		if p.onSignal != nil {
			p.onSignal(signaling.SignalPayload{Type: answer.Type.String(), SDP: answer.SDP})
		}
		return nil

	case webrtc.SDPTypeAnswer.String():
		return p.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  payload.SDP,
		})

	default:
		if len(payload.Candidate) == 0 {
			return nil
		}
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(payload.Candidate, &candidate); err != nil {
			return fmt.Errorf("parse ice candidate: %w", err)
		}
		return p.pc.AddICECandidate(candidate)
	}
}

func (p *Peer) setupControl(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		if err := SendHello(dc); err != nil {
			log.Debug().Err(err).Msg("control hello not sent")
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		ctrl, err := ParseControl(msg.Data)
		if err != nil {
			log.Warn().Err(err).Msg("malformed control frame")
			return
		}
		if ctrl.Type == ControlTypePing {
			_ = SendControl(dc, ControlMessage{Type: ControlTypePong, SentAt: ctrl.SentAt})
		}
	})
}

// Close tears the connection down.
func (p *Peer) Close() {
	if p.control != nil {
		p.control.Close()
	}
	if p.pc != nil {
		p.pc.Close()
	}
}
