package rtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/pion/webrtc/v4"
)

const streamID = "warpcall"

// Capturer produces the local tracks for one call.
type Capturer interface {
	// Register adds the codecs the capturer encodes with.
	Register(m *webrtc.MediaEngine) error
	Capture(ctx context.Context) (*LocalMedia, error)
}

// LocalMedia owns the local tracks of one call. Muting a track detaches
// it from its RTP sender; the peer keeps the negotiated transceiver.
type LocalMedia struct {
	mu      sync.Mutex
	tracks  map[call.TrackKind]webrtc.TrackLocal
	senders map[call.TrackKind]*webrtc.RTPSender
	enabled map[call.TrackKind]bool

	stop      func()
	closeOnce sync.Once
}

func newLocalMedia(stop func()) *LocalMedia {
	if stop == nil {
		stop = func() {}
	}
	return &LocalMedia{
		tracks:  make(map[call.TrackKind]webrtc.TrackLocal),
		senders: make(map[call.TrackKind]*webrtc.RTPSender),
		enabled: map[call.TrackKind]bool{call.TrackAudio: true, call.TrackVideo: true},
		stop:    stop,
	}
}

func (m *LocalMedia) add(kind call.TrackKind, t webrtc.TrackLocal) {
	m.mu.Lock()
	m.tracks[kind] = t
	m.mu.Unlock()
}

// Tracks returns the local tracks by kind.
func (m *LocalMedia) Tracks() map[call.TrackKind]webrtc.TrackLocal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[call.TrackKind]webrtc.TrackLocal, len(m.tracks))
	for k, t := range m.tracks {
		out[k] = t
	}
	return out
}

func (m *LocalMedia) bind(kind call.TrackKind, s *webrtc.RTPSender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.senders[kind] = s
	if !m.enabled[kind] {
		m.replace(kind, false)
	}
}

// SetEnabled starts or stops sending the track of kind.
func (m *LocalMedia) SetEnabled(kind call.TrackKind, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enabled[kind] == enabled {
		return
	}
	m.enabled[kind] = enabled
	m.replace(kind, enabled)
}

// Enabled reports whether the track of kind is being sent.
func (m *LocalMedia) Enabled(kind call.TrackKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[kind]
}

func (m *LocalMedia) replace(kind call.TrackKind, enabled bool) {
	sender := m.senders[kind]
	if sender == nil {
		return
	}
	var track webrtc.TrackLocal
	if enabled {
		track = m.tracks[kind]
	}
	if err := sender.ReplaceTrack(track); err != nil {
		slog.Warn("failed to switch local track", "kind", kind, "enabled", enabled, "err", err)
	}
}

// Close stops every source. It is safe to call more than once.
func (m *LocalMedia) Close() error {
	m.closeOnce.Do(m.stop)
	return nil
}

var errNoTracks = errors.New("no local tracks")

// kindOf maps a pion codec type to the call's track kind.
func kindOf(t webrtc.RTPCodecType) (call.TrackKind, error) {
	switch t {
	case webrtc.RTPCodecTypeAudio:
		return call.TrackAudio, nil
	case webrtc.RTPCodecTypeVideo:
		return call.TrackVideo, nil
	}
	return "", fmt.Errorf("unsupported codec type %s", t)
}
