// Package room tracks which participants share a room with this client.
package room

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/signaling"
)

var ErrEmptyRoom = errors.New("room id must not be empty")

// Sender delivers one outbound signaling message.
type Sender interface {
	Send(*signaling.Message) error
}

type State int

const (
	Outside State = iota
	AwaitingMembers
)

func (s State) String() string {
	if s == AwaitingMembers {
		return "awaiting-members"
	}
	return "outside"
}

// Membership is this client's view of its room. It is not safe for
// concurrent use; the call machine's loop owns it.
type Membership struct {
	self   string
	sender Sender

	room  string
	state State

	// members in join order; the last entry is the call candidate.
	members []string
}

func NewMembership(self string, sender Sender) *Membership {
	return &Membership{self: self, sender: sender}
}

// Join asks the relay to add us to roomID. Joining again simply re-sends
// the request; the relay decides what that means.
func (m *Membership) Join(roomID string) error {
	if roomID == "" {
		return ErrEmptyRoom
	}
	if m.room != roomID {
		m.members = nil
	}
	if err := m.sender.Send(signaling.JoinRoom(roomID)); err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}
	m.room = roomID
	m.state = AwaitingMembers
	slog.Info("joined room", "room", roomID, "self", m.self)
	return nil
}

// PeerJoined records id as the most recent remote, which becomes the
// candidate for the next call. It reports whether id was recorded.
func (m *Membership) PeerJoined(id string) bool {
	if id == "" || id == m.self {
		return false
	}
	m.remove(id)
	m.members = append(m.members, id)
	return true
}

// PeerLeft forgets id and reports whether it was the current candidate.
// The previous joiner, if any, becomes the candidate again.
func (m *Membership) PeerLeft(id string) bool {
	wasCandidate := id != "" && id == m.Candidate()
	m.remove(id)
	return wasCandidate
}

// Candidate returns the remote a call would go to, or "" if nobody is around.
func (m *Membership) Candidate() string {
	if len(m.members) == 0 {
		return ""
	}
	return m.members[len(m.members)-1]
}

func (m *Membership) Room() string { return m.room }
func (m *Membership) State() State { return m.state }
func (m *Membership) Self() string { return m.self }

// Members returns the known remotes in join order.
func (m *Membership) Members() []string {
	return append([]string(nil), m.members...)
}

func (m *Membership) remove(id string) {
	for i, member := range m.members {
		if member == id {
			m.members = append(m.members[:i], m.members[i+1:]...)
			return
		}
	}
}
