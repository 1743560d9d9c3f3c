package signaling

// Message represents all WebSocket messages between client and relay.
// It is a flat tagged record: Type selects which of the other fields matter.
type Message struct {
	Type         string       `json:"type"`
	RoomID       string       `json:"room_id,omitempty"`
	UserID       string       `json:"user_id,omitempty"`
	TargetUserID string       `json:"target_user_id,omitempty"`
	FromUserID   string       `json:"from_user_id,omitempty"`
	Offer        *Description `json:"offer,omitempty"`
	Answer       *Description `json:"answer,omitempty"`
	Candidate    *Candidate   `json:"candidate,omitempty"`
	ICERestart   bool         `json:"ice_restart,omitempty"`
	Reason       string       `json:"reason,omitempty"`
}

// Message type constants.
const (
	TypeJoinRoom     = "join_room"
	TypeUserJoined   = "user_joined"
	TypeUserLeft     = "user_left"
	TypeCallRequest  = "call_request"
	TypeCallAccepted = "call_accepted"
	TypeCallDeclined = "call_declined"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"
)

// Reasons carried by call_declined.
const (
	ReasonBusy        = "busy"
	ReasonUnavailable = "unavailable"
)

// Relayed reports whether the relay forwards messages of type t to a target.
func Relayed(t string) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate,
		TypeCallRequest, TypeCallAccepted, TypeCallDeclined:
		return true
	}
	return false
}

// Description is a session description as browsers serialize it.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is a network candidate in RTCIceCandidateInit shape.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func JoinRoom(roomID string) *Message {
	return &Message{Type: TypeJoinRoom, RoomID: roomID}
}

func CallRequest(target string) *Message {
	return &Message{Type: TypeCallRequest, TargetUserID: target}
}

func CallAccepted(target string) *Message {
	return &Message{Type: TypeCallAccepted, TargetUserID: target}
}

func CallDeclined(target, reason string) *Message {
	return &Message{Type: TypeCallDeclined, TargetUserID: target, Reason: reason}
}

func Offer(target string, d Description, iceRestart bool) *Message {
	return &Message{Type: TypeOffer, TargetUserID: target, Offer: &d, ICERestart: iceRestart}
}

func Answer(target string, d Description) *Message {
	return &Message{Type: TypeAnswer, TargetUserID: target, Answer: &d}
}

func ICECandidate(target string, c Candidate) *Message {
	return &Message{Type: TypeICECandidate, TargetUserID: target, Candidate: &c}
}
