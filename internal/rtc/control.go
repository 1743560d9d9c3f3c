package rtc

import (
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	controlLabel = "control"
	controlID    = 0

	controlMediaState = "media_state"
)

// controlMessage is the envelope on the control data channel.
type controlMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

func newControlMessage(t string, payload any) ([]byte, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(controlMessage{Type: t, Payload: b})
}

// controlChannel carries in-call state the peer should know about. Both
// sides create it as a negotiated channel with a fixed id, so neither has
// to wait for the other to open it.
type controlChannel struct {
	dc *webrtc.DataChannel

	mu      sync.Mutex
	open    bool
	pending []byte
}

func newControlChannel(pc *webrtc.PeerConnection, onMediaState func(call.MediaState)) (*controlChannel, error) {
	negotiated := true
	id := uint16(controlID)
	dc, err := pc.CreateDataChannel(controlLabel, &webrtc.DataChannelInit{Negotiated: &negotiated, ID: &id})
	if err != nil {
		return nil, err
	}

	c := &controlChannel{dc: dc}
	dc.OnOpen(func() {
		c.mu.Lock()
		c.open = true
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()

		if pending != nil {
			if err := dc.Send(pending); err != nil {
				slog.Debug("control send", "err", err)
			}
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var m controlMessage
		if err := msgpack.Unmarshal(msg.Data, &m); err != nil {
			slog.Warn("bad control message", "err", err)
			return
		}
		switch m.Type {
		case controlMediaState:
			var ms call.MediaState
			if err := msgpack.Unmarshal(m.Payload, &ms); err != nil {
				slog.Warn("bad media state", "err", err)
				return
			}
			onMediaState(ms)
		default:
			slog.Debug("unknown control message", "type", m.Type)
		}
	})
	return c, nil
}

// send delivers ms now, or when the channel opens. Only the latest state
// is kept while waiting.
func (c *controlChannel) send(ms call.MediaState) error {
	data, err := newControlMessage(controlMediaState, ms)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.open {
		c.pending = data
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.dc.Send(data)
}
