package rtc

import (
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/voclara/roomkit/internal/version"
)

// Control frames ride the data channel next to the media tracks. They are
// msgpack-framed to stay compact on constrained clinic links.
const (
	ControlTypeHello = "hello"
	ControlTypePing  = "ping"
	ControlTypePong  = "pong"
)

var errChannelNotOpen = errors.New("control channel not open")

// ControlMessage is the envelope for all control frames.
type ControlMessage struct {
	Type    string `msgpack:"type"`
	Version string `msgpack:"version,omitempty"`
	SentAt  int64  `msgpack:"sent_at,omitempty"`
}

// SendControl marshals and sends one control frame.
func SendControl(dc *webrtc.DataChannel, msg ControlMessage) error {
	if dc == nil {
		return errChannelNotOpen
	}
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	return dc.Send(data)
}

// SendHello announces the client build on channel open.
func SendHello(dc *webrtc.DataChannel) error {
	return SendControl(dc, ControlMessage{
		Type:    ControlTypeHello,
		Version: version.Version,
		SentAt:  time.Now().UnixMilli(),
	})
}

// ParseControl decodes one control frame.
func ParseControl(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
