package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/voclara/roomkit/internal/room"
)

// ErrDeviceUnavailable means no capture device granted access: permission
// denied, hardware absent, or held exclusively elsewhere. Recoverable by
// retrying after the user fixes the device.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// TrackKind identifies a capture track.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Track is one local capture track with an independent enabled flag.
// Toggling the flag never renegotiates the device.
type Track interface {
	Kind() TrackKind
	SetEnabled(bool)
	Enabled() bool
	Stop()
}

// Device is an acquired audio+video capture handle.
type Device interface {
	Audio() Track
	Video() Track
	Close() error
}

// Constraints select which tracks to request at acquire time.
type Constraints struct {
	Audio bool
	Video bool
}

// Opener acquires a capture device. The pion-backed implementation lives
// in internal/rtc; tests substitute a fake.
type Opener func(ctx context.Context, c Constraints) (Device, error)

// ToggleSender receives the broadcast side of a local toggle. Implemented
// by the room session.
type ToggleSender interface {
	SendToggle(kind room.ToggleKind, value bool) error
}

// Controller exclusively owns the local capture handles. Every toggle
// flows through here so that one toggle maps to exactly one broadcast;
// no other component reads or writes track-enabled state directly.
type Controller struct {
	mu     sync.Mutex
	open   Opener
	sender ToggleSender
	dev    Device
}

func NewController(open Opener, sender ToggleSender) *Controller {
	return &Controller{open: open, sender: sender}
}

// Acquire requests local capture. Acquiring while a device is already held
// is a no-op. Failures are reported as ErrDeviceUnavailable; the caller may
// continue in audio/video-off mode and retry later.
func (c *Controller) Acquire(ctx context.Context, constraints Constraints) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != nil {
		return nil
	}

	dev, err := c.open(ctx, constraints)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	c.dev = dev
	log.Info().Bool("audio", constraints.Audio).Bool("video", constraints.Video).Msg("capture device acquired")
	return nil
}

// SetAudioEnabled toggles the local audio track. A no-op before Acquire or
// after Release. Each successful toggle sends exactly one mute intent; if
// the transport is down the intent is dropped with a warning, never
// queued or duplicated.
func (c *Controller) SetAudioEnabled(enabled bool) {
	c.toggle(TrackAudio, enabled)
}

// SetVideoEnabled toggles the local video track. Same contract as
// SetAudioEnabled.
func (c *Controller) SetVideoEnabled(enabled bool) {
	c.toggle(TrackVideo, enabled)
}

func (c *Controller) toggle(kind TrackKind, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return
	}

	var track Track
	toggleKind := room.ToggleMute
	if kind == TrackAudio {
		track = c.dev.Audio()
	} else {
		track = c.dev.Video()
		toggleKind = room.ToggleVideo
	}
	if track == nil {
		return
	}

	track.SetEnabled(enabled)

	// Wire value is the "off" flag: muted / video-off.
	if err := c.sender.SendToggle(toggleKind, !enabled); err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("toggle not broadcast")
	}
}

// AudioEnabled reports the local audio track state; false without a device.
func (c *Controller) AudioEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil || c.dev.Audio() == nil {
		return false
	}
	return c.dev.Audio().Enabled()
}

// VideoEnabled reports the local video track state; false without a device.
func (c *Controller) VideoEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil || c.dev.Video() == nil {
		return false
	}
	return c.dev.Video().Enabled()
}

// Device exposes the acquired handle so its tracks can be attached to the
// peer connection. Track-enabled state still changes only through the
// controller's toggles.
func (c *Controller) Device() Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev
}

// Release stops and releases all local tracks. Idempotent.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return
	}

	if t := c.dev.Audio(); t != nil {
		t.Stop()
	}
	if t := c.dev.Video(); t != nil {
		t.Stop()
	}
	if err := c.dev.Close(); err != nil {
		log.Warn().Err(err).Msg("closing capture device")
	}
	c.dev = nil
	log.Info().Msg("capture device released")
}
