package rtc

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/voclara/roomkit/internal/media"
)

// localTrack wraps a pion sample track with an enabled gate. Disabling
// drops samples at the gate; no device renegotiation happens.
type localTrack struct {
	kind    media.TrackKind
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	stopped atomic.Bool
}

func (t *localTrack) Kind() media.TrackKind { return t.kind }

func (t *localTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

func (t *localTrack) Enabled() bool { return t.enabled.Load() }

func (t *localTrack) Stop() { t.stopped.Store(true) }

// WriteSample forwards a capture sample to the peer connection unless the
// track is disabled or stopped.
func (t *localTrack) WriteSample(sample pionmedia.Sample) error {
	if t.stopped.Load() || !t.enabled.Load() {
		return nil
	}
	return t.track.WriteSample(sample)
}

// Tracks is the acquired local capture handle: at most one audio and one
// video track, independently toggleable. Implements media.Device.
type Tracks struct {
	audio *localTrack
	video *localTrack
}

func (d *Tracks) Audio() media.Track {
	if d.audio == nil {
		return nil
	}
	return d.audio
}

func (d *Tracks) Video() media.Track {
	if d.video == nil {
		return nil
	}
	return d.video
}

func (d *Tracks) Close() error {
	if d.audio != nil {
		d.audio.Stop()
	}
	if d.video != nil {
		d.video.Stop()
	}
	return nil
}

// WriteAudioSample feeds the audio pipeline; a no-op while muted.
func (d *Tracks) WriteAudioSample(sample pionmedia.Sample) error {
	if d.audio == nil {
		return nil
	}
	return d.audio.WriteSample(sample)
}

// WriteVideoSample feeds the video pipeline; a no-op while video is off.
func (d *Tracks) WriteVideoSample(sample pionmedia.Sample) error {
	if d.video == nil {
		return nil
	}
	return d.video.WriteSample(sample)
}

// Open acquires local track handles. Satisfies media.Opener.
func Open(_ context.Context, constraints media.Constraints) (media.Device, error) {
	streamID := "roomkit-" + uuid.NewString()
	dev := &Tracks{}

	if constraints.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", streamID,
		)
		if err != nil {
			return nil, err
		}
		dev.audio = &localTrack{kind: media.TrackAudio, track: track}
		dev.audio.enabled.Store(true)
	}

	if constraints.Video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", streamID,
		)
		if err != nil {
			return nil, err
		}
		dev.video = &localTrack{kind: media.TrackVideo, track: track}
		dev.video.enabled.Store(true)
	}

	return dev, nil
}
