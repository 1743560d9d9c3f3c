package call

import (
	"context"

	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// Description and Candidate are opaque to the machine; they travel
// unchanged between the transport and the signaling channel.
type (
	Description = signaling.Description
	Candidate   = signaling.Candidate
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// TrackInfo describes a remote track announced by the transport.
type TrackInfo struct {
	Kind  TrackKind
	ID    string
	Codec string
}

// MediaState says which local tracks are currently sending.
type MediaState struct {
	Audio bool `msgpack:"audio"`
	Video bool `msgpack:"video"`
}

type Connectivity string

const (
	ConnectivityConnecting   Connectivity = "connecting"
	ConnectivityConnected    Connectivity = "connected"
	ConnectivityDisconnected Connectivity = "disconnected"
	ConnectivityFailed       Connectivity = "failed"
	ConnectivityClosed       Connectivity = "closed"
)

// Adapter acquires the resources a call needs.
type Adapter interface {
	// AcquireLocalMedia may block; failures wrap ErrResourceUnavailable.
	AcquireLocalMedia(ctx context.Context) (Media, error)
	// CreateTransport builds a peer transport sending media. Events for it
	// are reported to l from arbitrary goroutines.
	CreateTransport(media Media, l Listener) (Transport, error)
}

type Media interface {
	SetEnabled(kind TrackKind, enabled bool)
	Close() error
}

type Transport interface {
	CreateOffer(iceRestart bool) (Description, error)
	CreateAnswer() (Description, error)
	SetLocalDescription(Description) error
	SetRemoteDescription(Description) error
	// Rollback discards a local offer that has not been answered.
	Rollback() error
	AddCandidate(Candidate) error
	SetMediaState(MediaState) error
	Close() error
}

// Listener receives transport events.
type Listener interface {
	LocalCandidate(Candidate)
	RemoteTrack(TrackInfo)
	ConnectivityChanged(Connectivity)
	RemoteMediaState(MediaState)
}

// Sender delivers outbound signaling messages.
type Sender interface {
	Send(*signaling.Message) error
}
