package media_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voclara/roomkit/internal/media"
	"github.com/voclara/roomkit/internal/room"
)

type fakeTrack struct {
	kind    media.TrackKind
	enabled bool
	stopped bool
}

func (t *fakeTrack) Kind() media.TrackKind { return t.kind }
func (t *fakeTrack) SetEnabled(v bool)     { t.enabled = v }
func (t *fakeTrack) Enabled() bool         { return t.enabled }
func (t *fakeTrack) Stop()                 { t.stopped = true }

type fakeDevice struct {
	audio  *fakeTrack
	video  *fakeTrack
	closed bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		audio: &fakeTrack{kind: media.TrackAudio, enabled: true},
		video: &fakeTrack{kind: media.TrackVideo, enabled: true},
	}
}

func (d *fakeDevice) Audio() media.Track { return d.audio }
func (d *fakeDevice) Video() media.Track { return d.video }
func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

type toggleCall struct {
	kind  room.ToggleKind
	value bool
}

type recordingSender struct {
	calls []toggleCall
	err   error
}

func (s *recordingSender) SendToggle(kind room.ToggleKind, value bool) error {
	s.calls = append(s.calls, toggleCall{kind: kind, value: value})
	return s.err
}

func opener(dev *fakeDevice, err error) media.Opener {
	return func(context.Context, media.Constraints) (media.Device, error) {
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
}

func TestAcquire(t *testing.T) {
	t.Run("failure wraps device unavailable", func(t *testing.T) {
		sender := &recordingSender{}
		c := media.NewController(opener(nil, errors.New("permission denied")), sender)

		err := c.Acquire(context.Background(), media.Constraints{Audio: true, Video: true})

		assert.ErrorIs(t, err, media.ErrDeviceUnavailable)
		assert.Nil(t, c.Device())
	})

	t.Run("second acquire is a no-op", func(t *testing.T) {
		dev := newFakeDevice()
		opens := 0
		open := func(ctx context.Context, cs media.Constraints) (media.Device, error) {
			opens++
			return dev, nil
		}
		c := media.NewController(open, &recordingSender{})

		require.NoError(t, c.Acquire(context.Background(), media.Constraints{Audio: true}))
		require.NoError(t, c.Acquire(context.Background(), media.Constraints{Audio: true}))

		assert.Equal(t, 1, opens)
	})
}

func TestToggle(t *testing.T) {
	t.Run("mute sends exactly one intent with the off value", func(t *testing.T) {
		dev := newFakeDevice()
		sender := &recordingSender{}
		c := media.NewController(opener(dev, nil), sender)
		require.NoError(t, c.Acquire(context.Background(), media.Constraints{Audio: true, Video: true}))

		c.SetAudioEnabled(false)

		require.Len(t, sender.calls, 1)
		assert.Equal(t, room.ToggleMute, sender.calls[0].kind)
		assert.True(t, sender.calls[0].value)
		assert.False(t, dev.audio.enabled)
		assert.False(t, c.AudioEnabled())
	})

	t.Run("unmute round trip restores the track", func(t *testing.T) {
		dev := newFakeDevice()
		sender := &recordingSender{}
		c := media.NewController(opener(dev, nil), sender)
		require.NoError(t, c.Acquire(context.Background(), media.Constraints{Audio: true, Video: true}))

		c.SetAudioEnabled(false)
		c.SetAudioEnabled(true)

		require.Len(t, sender.calls, 2)
		assert.Equal(t, toggleCall{kind: room.ToggleMute, value: true}, sender.calls[0])
		assert.Equal(t, toggleCall{kind: room.ToggleMute, value: false}, sender.calls[1])
		assert.True(t, c.AudioEnabled())
	})

	t.Run("video toggle uses the video kind", func(t *testing.T) {
		dev := newFakeDevice()
		sender := &recordingSender{}
		c := media.NewController(opener(dev, nil), sender)
		require.NoError(t, c.Acquire(context.Background(), media.Constraints{Audio: true, Video: true}))

		c.SetVideoEnabled(false)

		require.Len(t, sender.calls, 1)
		assert.Equal(t, room.ToggleVideo, sender.calls[0].kind)
		assert.True(t, sender.calls[0].value)
		assert.False(t, c.VideoEnabled())
	})

	t.Run("before acquire nothing is sent", func(t *testing.T) {
		sender := &recordingSender{}
		c := media.NewController(opener(newFakeDevice(), nil), sender)

		c.SetAudioEnabled(false)
		c.SetVideoEnabled(false)

		assert.Empty(t, sender.calls)
		assert.False(t, c.AudioEnabled())
	})

	t.Run("send failure never retries", func(t *testing.T) {
		dev := newFakeDevice()
		sender := &recordingSender{err: room.ErrNotConnected}
		c := media.NewController(opener(dev, nil), sender)
		require.NoError(t, c.Acquire(context.Background(), media.Constraints{Audio: true, Video: true}))

		c.SetAudioEnabled(false)

		assert.Len(t, sender.calls, 1)
		assert.False(t, dev.audio.enabled)
	})
}

func TestRelease(t *testing.T) {
	t.Run("stops tracks and closes the device", func(t *testing.T) {
		dev := newFakeDevice()
		sender := &recordingSender{}
		c := media.NewController(opener(dev, nil), sender)
		require.NoError(t, c.Acquire(context.Background(), media.Constraints{Audio: true, Video: true}))

		c.Release()

		assert.True(t, dev.audio.stopped)
		assert.True(t, dev.video.stopped)
		assert.True(t, dev.closed)
		assert.Nil(t, c.Device())
	})

	t.Run("idempotent", func(t *testing.T) {
		dev := newFakeDevice()
		c := media.NewController(opener(dev, nil), &recordingSender{})
		require.NoError(t, c.Acquire(context.Background(), media.Constraints{Audio: true}))

		c.Release()
		c.Release()
	})

	t.Run("toggles after release are dropped", func(t *testing.T) {
		dev := newFakeDevice()
		sender := &recordingSender{}
		c := media.NewController(opener(dev, nil), sender)
		require.NoError(t, c.Acquire(context.Background(), media.Constraints{Audio: true, Video: true}))
		c.Release()

		c.SetAudioEnabled(false)

		assert.Empty(t, sender.calls)
	})
}
