package call

import "time"

type State int

const (
	Idle State = iota
	RingingIn
	RingingOut
	Negotiating
	Connected
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RingingIn:
		return "ringing-in"
	case RingingOut:
		return "ringing-out"
	case Negotiating:
		return "negotiating"
	case Connected:
		return "connected"
	case Ended:
		return "ended"
	}
	return "unknown"
}

type Role int

const (
	RoleNone Role = iota
	RoleCaller
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	}
	return "none"
}

// Session is the single active call. Only the machine loop touches it.
type Session struct {
	State    State
	RemoteID string
	Role     Role

	LocalDescription  *Description
	RemoteDescription *Description

	// Armed is set when a call was started with nobody to call yet.
	Armed bool
	// Acquiring is set while media acquisition runs outside the loop.
	Acquiring bool
	// Dialing is set between a call intent and its media being ready.
	// The state stays Idle until then.
	Dialing bool
	// acceptOnReady turns a pending outgoing call into an accept once
	// media is ready, when the remote invited us meanwhile.
	acceptOnReady bool
	// offerPending is set while a local offer waits for its answer.
	offerPending bool

	StartedAt   time.Time
	ConnectedAt time.Time
	Restarts    int
	// failedRestarts counts restarts since the last connected report.
	failedRestarts int

	CandidatesSent int
}

// Snapshot is a read-only copy of the session and room, taken in the loop.
type Snapshot struct {
	Session
	Room              string
	RoomCandidate     string
	PendingCandidates int
	HasTransport      bool
	HasMedia          bool
	Local             MediaState
	Buffer            BufferStats
}

// Summary describes a finished call.
type Summary struct {
	Peer               string
	Role               Role
	Reason             string
	Duration           time.Duration
	WasConnected       bool
	CandidatesSent     int
	CandidatesBuffered int
	CandidatesApplied  int
	CandidatesFailed   int
	Restarts           int
}

type NotificationKind int

const (
	NotifyStatus NotificationKind = iota
	NotifyStateChanged
	NotifyPeerJoined
	NotifyPeerLeft
	NotifyIncomingCall
	NotifyCallConnected
	NotifyCallEnded
	NotifyRemoteTrack
	NotifyRemoteMediaState
	NotifyError
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyStatus:
		return "status"
	case NotifyStateChanged:
		return "state"
	case NotifyPeerJoined:
		return "peer-joined"
	case NotifyPeerLeft:
		return "peer-left"
	case NotifyIncomingCall:
		return "incoming-call"
	case NotifyCallConnected:
		return "call-connected"
	case NotifyCallEnded:
		return "call-ended"
	case NotifyRemoteTrack:
		return "remote-track"
	case NotifyRemoteMediaState:
		return "remote-media"
	case NotifyError:
		return "error"
	}
	return "unknown"
}

// Notification is emitted outward by the machine.
type Notification struct {
	Kind    NotificationKind
	State   State
	Peer    string
	Message string
	Err     error
	Track   TrackInfo
	Media   MediaState
	Summary *Summary
}
