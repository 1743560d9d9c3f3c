package call

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// callee drives h into Negotiating as the callee of remote.
func callee(t *testing.T, h *harness, remote string) *fakeTransport {
	t.Helper()
	h.m.Deliver(msgFrom(signaling.TypeCallRequest, remote))
	waitState(t, h.m, RingingIn)
	h.m.Accept()
	waitState(t, h.m, Negotiating)
	return h.adapter.transport(t, 0)
}

// caller drives h through call, accept and answer with remote.
func caller(t *testing.T, h *harness, remote string) *fakeTransport {
	t.Helper()
	h.m.Deliver(&signaling.Message{Type: signaling.TypeUserJoined, UserID: remote})
	h.m.Call()
	waitFor(t, "call_request", func() bool { return len(h.sender.ofType(signaling.TypeCallRequest)) == 1 })
	h.m.Deliver(msgFrom(signaling.TypeCallAccepted, remote))
	waitState(t, h.m, Negotiating)
	h.m.Deliver(answerFrom(remote))
	waitFor(t, "remote answer", func() bool { return h.m.Snapshot().RemoteDescription != nil })
	return h.adapter.transport(t, 0)
}

func connect(t *testing.T, h *harness, tr *fakeTransport) {
	t.Helper()
	tr.listener.ConnectivityChanged(ConnectivityConnected)
	waitState(t, h.m, Connected)
}

func TestHangupInIdleIsNoop(t *testing.T) {
	h := newHarness(t, "user_me")

	h.m.Hangup()
	h.m.Hangup()

	if snap := h.m.Snapshot(); snap.State != Idle {
		t.Fatalf("state = %v", snap.State)
	}
	if h.sender.count() != 0 {
		t.Fatalf("hang-up in idle sent %d messages", h.sender.count())
	}
	if medias, transports := h.adapter.created(); medias != 0 || transports != 0 {
		t.Fatalf("hang-up in idle touched resources")
	}
	if len(h.notes.ofKind(NotifyCallEnded)) != 0 {
		t.Fatalf("hang-up in idle reported a call end")
	}
}

func TestJoinSendsJoinRoom(t *testing.T) {
	h := newHarness(t, "user_me")
	h.m.Join("R")

	snap := h.m.Snapshot()
	if snap.Room != "R" {
		t.Fatalf("room = %q", snap.Room)
	}
	if got := h.sender.ofType(signaling.TypeJoinRoom); len(got) != 1 || got[0].RoomID != "R" {
		t.Fatalf("join_room not sent: %+v", got)
	}
}

func TestCallWithoutRemoteArmsThenInvites(t *testing.T) {
	h := newHarness(t, "user_me")
	h.m.Join("R")
	h.m.Call()

	snap := waitState(t, h.m, RingingOut)
	if !snap.Armed || snap.RemoteID != "" || !snap.HasMedia || !snap.HasTransport {
		t.Fatalf("expected armed session with media, got %+v", snap)
	}
	if n := len(h.sender.ofType(signaling.TypeCallRequest)); n != 0 {
		t.Fatalf("armed session sent %d call_request", n)
	}

	h.m.Deliver(&signaling.Message{Type: signaling.TypeUserJoined, UserID: "user_b"})

	snap = h.m.Snapshot()
	if snap.RemoteID != "user_b" {
		t.Fatalf("remote not bound on join: %q", snap.RemoteID)
	}
	reqs := h.sender.ofType(signaling.TypeCallRequest)
	if len(reqs) != 1 || reqs[0].TargetUserID != "user_b" {
		t.Fatalf("call_request = %+v", reqs)
	}
}

func TestArmedAcceptsIncomingInvitation(t *testing.T) {
	h := newHarness(t, "user_me")
	h.m.Call()
	waitState(t, h.m, RingingOut)

	h.m.Deliver(msgFrom(signaling.TypeCallRequest, "user_b"))

	snap := waitState(t, h.m, Negotiating)
	if snap.Role != RoleCallee || snap.RemoteID != "user_b" {
		t.Fatalf("unexpected session %+v", snap.Session)
	}
	if got := h.sender.ofType(signaling.TypeCallAccepted); len(got) != 1 || got[0].TargetUserID != "user_b" {
		t.Fatalf("call_accepted = %+v", got)
	}
}

func TestCallAcquireFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, "user_me")
	h.adapter.setErr(errors.New("no camera"))

	h.m.Deliver(&signaling.Message{Type: signaling.TypeUserJoined, UserID: "user_b"})
	h.m.Call()

	waitFor(t, "resource error", func() bool { return h.notes.errorIs(ErrResourceUnavailable) })
	snap := waitState(t, h.m, Idle)
	if snap.RemoteID != "" || snap.HasTransport {
		t.Fatalf("half-initialised session left behind: %+v", snap)
	}
	if n := len(h.sender.ofType(signaling.TypeCallRequest)); n != 0 {
		t.Fatalf("call_request sent despite failure")
	}
	if changes := h.notes.ofKind(NotifyStateChanged); len(changes) != 0 {
		t.Fatalf("failed call left the idle state: %+v", changes)
	}
	if n := len(h.notes.ofKind(NotifyCallEnded)); n != 0 {
		t.Fatalf("failed call reported %d call ends", n)
	}
}

func TestHangupWhileDialingCancels(t *testing.T) {
	h := newHarness(t, "user_me")
	gate := make(chan struct{})
	h.adapter.setGate(gate)

	h.m.Deliver(&signaling.Message{Type: signaling.TypeUserJoined, UserID: "user_b"})
	h.m.Call()
	if snap := h.m.Snapshot(); snap.State != Idle || !snap.Dialing || snap.RemoteID != "user_b" {
		t.Fatalf("dialing session = %+v", snap.Session)
	}

	h.m.Hangup()
	close(gate)
	waitFor(t, "stale media released", func() bool {
		medias, _ := h.adapter.created()
		return medias == 1 && h.adapter.media(t, 0).closeCount() == 1
	})

	snap := h.m.Snapshot()
	if snap.State != Idle || snap.Dialing || snap.HasMedia {
		t.Fatalf("cancelled call committed: %+v", snap)
	}
	if h.sender.count() != 0 {
		t.Fatalf("cancelled call sent %d messages", h.sender.count())
	}
	if len(h.notes.ofKind(NotifyStateChanged)) != 0 || len(h.notes.ofKind(NotifyCallEnded)) != 0 {
		t.Fatalf("cancelled call reported lifecycle changes")
	}
}

func TestAcceptFailureDeclinesAndReturnsToIdle(t *testing.T) {
	h := newHarness(t, "user_me")
	h.adapter.setErr(errors.New("mic busy"))

	h.m.Deliver(msgFrom(signaling.TypeCallRequest, "user_a"))
	waitState(t, h.m, RingingIn)
	h.m.Accept()

	waitFor(t, "resource error", func() bool { return h.notes.errorIs(ErrResourceUnavailable) })
	waitState(t, h.m, Idle)

	declined := h.sender.ofType(signaling.TypeCallDeclined)
	if len(declined) != 1 || declined[0].Reason != signaling.ReasonUnavailable {
		t.Fatalf("call_declined = %+v", declined)
	}
	if n := len(h.sender.ofType(signaling.TypeCallAccepted)); n != 0 {
		t.Fatalf("call_accepted sent despite failure")
	}
}

func TestIncomingCallNotifies(t *testing.T) {
	h := newHarness(t, "user_me")
	h.m.Deliver(msgFrom(signaling.TypeCallRequest, "user_a"))

	snap := waitState(t, h.m, RingingIn)
	if snap.RemoteID != "user_a" || snap.HasMedia {
		t.Fatalf("ringing must bind the inviter without media: %+v", snap)
	}
	incoming := h.notes.ofKind(NotifyIncomingCall)
	if len(incoming) != 1 || incoming[0].Peer != "user_a" {
		t.Fatalf("incoming call notifications = %+v", incoming)
	}
}

func TestDeclineRaceDiscardsAcquisition(t *testing.T) {
	h := newHarness(t, "user_me")
	gate := make(chan struct{})
	h.adapter.setGate(gate)

	h.m.Deliver(msgFrom(signaling.TypeCallRequest, "user_a"))
	waitState(t, h.m, RingingIn)

	h.m.Accept()
	h.m.Decline()
	if snap := h.m.Snapshot(); snap.State != Idle {
		t.Fatalf("decline during acquisition: state %v", snap.State)
	}

	close(gate)
	waitFor(t, "stale media released", func() bool {
		medias, _ := h.adapter.created()
		return medias == 1 && h.adapter.media(t, 0).closeCount() == 1
	})
	if got := h.adapter.transport(t, 0).closeCount(); got != 1 {
		t.Fatalf("stale transport closed %d times", got)
	}

	if n := len(h.sender.ofType(signaling.TypeCallAccepted)); n != 0 {
		t.Fatalf("call_accepted followed a decline")
	}
	if n := len(h.sender.ofType(signaling.TypeCallDeclined)); n != 1 {
		t.Fatalf("expected one call_declined, got %d", n)
	}
	if snap := h.m.Snapshot(); snap.State != Idle || snap.HasMedia {
		t.Fatalf("stale acquisition committed: %+v", snap)
	}
}

func TestBusyWhileInCall(t *testing.T) {
	h := newHarness(t, "user_me")
	h.m.Deliver(msgFrom(signaling.TypeCallRequest, "user_a"))
	waitState(t, h.m, RingingIn)

	h.m.Deliver(msgFrom(signaling.TypeCallRequest, "user_c"))

	snap := h.m.Snapshot()
	if snap.State != RingingIn || snap.RemoteID != "user_a" {
		t.Fatalf("busy invitation disturbed the session: %+v", snap.Session)
	}
	declined := h.sender.ofType(signaling.TypeCallDeclined)
	if len(declined) != 1 || declined[0].TargetUserID != "user_c" || declined[0].Reason != signaling.ReasonBusy {
		t.Fatalf("busy decline = %+v", declined)
	}
}

func TestBusyDeclineReceivedEndsCall(t *testing.T) {
	h := newHarness(t, "user_me")
	h.m.Deliver(&signaling.Message{Type: signaling.TypeUserJoined, UserID: "user_b"})
	h.m.Call()
	waitFor(t, "call_request", func() bool { return len(h.sender.ofType(signaling.TypeCallRequest)) == 1 })

	h.m.Deliver(&signaling.Message{Type: signaling.TypeCallDeclined, FromUserID: "user_b", Reason: signaling.ReasonBusy})

	waitState(t, h.m, Idle)
	if !h.notes.errorIs(ErrBusy) {
		t.Fatalf("busy decline not reported")
	}
	if got := h.adapter.media(t, 0).closeCount(); got != 1 {
		t.Fatalf("media closed %d times", got)
	}
}

func TestDescriptionWithoutTransportRejected(t *testing.T) {
	h := newHarness(t, "user_me")
	h.m.Deliver(msgFrom(signaling.TypeCallRequest, "user_a"))
	waitState(t, h.m, RingingIn)

	h.m.Deliver(offerFrom("user_a", false))

	snap := h.m.Snapshot()
	if snap.State != RingingIn || snap.RemoteDescription != nil {
		t.Fatalf("offer without transport changed the session: %+v", snap.Session)
	}
	if !h.notes.errorIs(ErrInvalidRemoteState) {
		t.Fatalf("expected InvalidRemoteState")
	}
	if n := len(h.sender.ofType(signaling.TypeAnswer)); n != 0 {
		t.Fatalf("answer sent without transport")
	}
}

func TestCandidateRaceBufferedUntilOffer(t *testing.T) {
	h := newHarness(t, "user_me")

	h.m.Deliver(msgFrom(signaling.TypeCallRequest, "user_a"))
	waitState(t, h.m, RingingIn)
	h.m.Deliver(candidateFrom("user_a", "c0"))
	h.m.Accept()
	waitState(t, h.m, Negotiating)
	tr := h.adapter.transport(t, 0)

	h.m.Deliver(candidateFrom("user_a", "c1"))
	h.m.Deliver(candidateFrom("user_a", "c2"))

	snap := h.m.Snapshot()
	if snap.PendingCandidates != 3 {
		t.Fatalf("pending = %d, want 3", snap.PendingCandidates)
	}
	if got := tr.appliedCandidates(); len(got) != 0 {
		t.Fatalf("candidates applied before offer: %v", got)
	}

	h.m.Deliver(offerFrom("user_a", false))
	h.m.Deliver(candidateFrom("user_a", "c3"))

	snap = h.m.Snapshot()
	if snap.PendingCandidates != 0 {
		t.Fatalf("pending after offer = %d", snap.PendingCandidates)
	}
	if got := fmt.Sprint(tr.appliedCandidates()); got != "[c0 c1 c2 c3]" {
		t.Fatalf("applied = %s", got)
	}
	answers := h.sender.ofType(signaling.TypeAnswer)
	if len(answers) != 1 || answers[0].TargetUserID != "user_a" || answers[0].Answer.Type != "answer" {
		t.Fatalf("answer = %+v", answers)
	}
	if snap.LocalDescription == nil || snap.RemoteDescription == nil {
		t.Fatalf("descriptions not stored: %+v", snap.Session)
	}
}

func TestBadCandidateIsSkipped(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := callee(t, h, "user_a")

	h.m.Deliver(candidateFrom("user_a", "c1"))
	h.m.Deliver(candidateFrom("user_a", "bad"))
	h.m.Deliver(candidateFrom("user_a", "c2"))
	h.m.Deliver(offerFrom("user_a", false))
	h.m.Deliver(candidateFrom("user_a", "bad"))
	h.m.Deliver(candidateFrom("user_a", "c3"))

	snap := h.m.Snapshot()
	if got := fmt.Sprint(tr.appliedCandidates()); got != "[c1 c2 c3]" {
		t.Fatalf("applied = %s", got)
	}
	if snap.Buffer.Failed != 2 || snap.State != Negotiating {
		t.Fatalf("bad candidates must be skipped without aborting: %+v", snap)
	}
}

func TestCandidatesFromStrangersIgnored(t *testing.T) {
	h := newHarness(t, "user_me")
	callee(t, h, "user_a")

	h.m.Deliver(candidateFrom("user_x", "c1"))
	if snap := h.m.Snapshot(); snap.PendingCandidates != 0 {
		t.Fatalf("stranger candidate buffered")
	}
}

func TestCallerHappyPathAndRestart(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := caller(t, h, "user_b")

	offers := h.sender.ofType(signaling.TypeOffer)
	if len(offers) != 1 || offers[0].ICERestart || offers[0].TargetUserID != "user_b" {
		t.Fatalf("initial offer = %+v", offers)
	}

	connect(t, h, tr)
	if n := len(h.notes.ofKind(NotifyCallConnected)); n != 1 {
		t.Fatalf("CallConnected notifications = %d", n)
	}
	snap := h.m.Snapshot()
	if snap.PendingCandidates != 0 {
		t.Fatalf("pending candidates while connected")
	}
	remoteBefore := snap.RemoteDescription

	tr.listener.ConnectivityChanged(ConnectivityFailed)
	waitFor(t, "restart offer", func() bool { return len(h.sender.ofType(signaling.TypeOffer)) == 2 })

	restart := h.sender.ofType(signaling.TypeOffer)[1]
	if !restart.ICERestart || restart.TargetUserID != "user_b" {
		t.Fatalf("restart offer = %+v", restart)
	}
	snap = h.m.Snapshot()
	if snap.State != Negotiating || snap.RemoteDescription == nil || *snap.RemoteDescription != *remoteBefore {
		t.Fatalf("restart must keep the remote description: %+v", snap.Session)
	}
	if tr.restartCount() != 1 || tr.closeCount() != 0 || snap.Restarts != 1 {
		t.Fatalf("restart=%d closes=%d restarts=%d", tr.restartCount(), tr.closeCount(), snap.Restarts)
	}

	h.m.Deliver(answerFrom("user_b"))
	connect(t, h, tr)
	if n := len(h.notes.ofKind(NotifyCallConnected)); n != 2 {
		t.Fatalf("CallConnected after restart = %d", n)
	}
}

func TestDisconnectedIsOnlyReported(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := caller(t, h, "user_b")
	connect(t, h, tr)

	tr.listener.ConnectivityChanged(ConnectivityDisconnected)
	snap := h.m.Snapshot()
	if snap.State != Connected || len(h.sender.ofType(signaling.TypeOffer)) != 1 {
		t.Fatalf("disconnected must not change the call: %+v", snap.Session)
	}
}

func TestCalleeRestartsOnFailure(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := callee(t, h, "user_a")
	h.m.Deliver(offerFrom("user_a", false))
	connect(t, h, tr)

	tr.listener.ConnectivityChanged(ConnectivityFailed)
	waitFor(t, "restart offer", func() bool { return len(h.sender.ofType(signaling.TypeOffer)) == 1 })

	restart := h.sender.ofType(signaling.TypeOffer)[0]
	if !restart.ICERestart || restart.TargetUserID != "user_a" {
		t.Fatalf("restart offer = %+v", restart)
	}
	snap := h.m.Snapshot()
	if snap.State != Negotiating || snap.Role != RoleCallee || snap.Restarts != 1 || tr.restartCount() != 1 {
		t.Fatalf("callee restart: %+v", snap.Session)
	}

	h.m.Deliver(answerFrom("user_a"))
	connect(t, h, tr)
	if snap := h.m.Snapshot(); snap.RemoteDescription == nil || snap.RemoteDescription.Type != "answer" {
		t.Fatalf("restart answer not applied: %+v", snap.Session)
	}
	if h.notes.errorIs(ErrInvalidRemoteState) {
		t.Fatalf("restart answer rejected")
	}
}

func TestCalleeAnswersCallerRestart(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := callee(t, h, "user_a")
	h.m.Deliver(offerFrom("user_a", false))
	connect(t, h, tr)

	h.m.Deliver(offerFrom("user_a", true))
	snap := h.m.Snapshot()
	if len(h.sender.ofType(signaling.TypeAnswer)) != 2 || snap.State != Connected || snap.Restarts != 1 {
		t.Fatalf("restart offer not answered in place: %+v", snap.Session)
	}
	if tr.rollbackCount() != 0 {
		t.Fatalf("rolled back without an offer of our own")
	}
}

func TestRestartGlareLowerIDKeepsOffer(t *testing.T) {
	h := newHarness(t, "user_a")
	tr := callee(t, h, "user_b")
	h.m.Deliver(offerFrom("user_b", false))
	connect(t, h, tr)

	tr.listener.ConnectivityChanged(ConnectivityFailed)
	waitFor(t, "restart offer", func() bool { return len(h.sender.ofType(signaling.TypeOffer)) == 1 })

	h.m.Deliver(offerFrom("user_b", true))
	snap := h.m.Snapshot()
	if n := len(h.sender.ofType(signaling.TypeAnswer)); n != 1 {
		t.Fatalf("lower id answered the crossing offer: %d answers", n)
	}
	if tr.rollbackCount() != 0 || snap.LocalDescription == nil || snap.LocalDescription.Type != "offer" {
		t.Fatalf("lower id dropped its offer: %+v", snap.Session)
	}

	h.m.Deliver(answerFrom("user_b"))
	connect(t, h, tr)
	if snap := h.m.Snapshot(); snap.Restarts != 1 || h.notes.errorIs(ErrInvalidRemoteState) {
		t.Fatalf("restart did not complete: %+v", snap.Session)
	}
}

func TestRestartGlareHigherIDAnswers(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := caller(t, h, "user_a")
	connect(t, h, tr)

	tr.listener.ConnectivityChanged(ConnectivityFailed)
	waitFor(t, "restart offer", func() bool { return len(h.sender.ofType(signaling.TypeOffer)) == 2 })

	h.m.Deliver(offerFrom("user_a", true))
	snap := h.m.Snapshot()
	if tr.rollbackCount() != 1 {
		t.Fatalf("higher id kept its offer")
	}
	answers := h.sender.ofType(signaling.TypeAnswer)
	if len(answers) != 1 || answers[0].TargetUserID != "user_a" {
		t.Fatalf("answers = %+v", answers)
	}
	if snap.Restarts != 1 || snap.LocalDescription == nil || snap.LocalDescription.Type != "answer" {
		t.Fatalf("glare session = %+v", snap.Session)
	}

	// The dropped offer has no answer coming; a late one is rejected.
	h.m.Deliver(answerFrom("user_a"))
	waitFor(t, "stray answer rejected", func() bool { return h.notes.errorIs(ErrInvalidRemoteState) })

	connect(t, h, tr)
}

func TestTransportFailureWithoutPeer(t *testing.T) {
	h := newHarness(t, "user_me")
	h.m.Call()
	waitState(t, h.m, RingingOut)

	h.adapter.transport(t, 0).listener.ConnectivityChanged(ConnectivityFailed)
	waitFor(t, "no remote error", func() bool { return h.notes.errorIs(ErrNoRemote) })

	if snap := h.m.Snapshot(); snap.State != RingingOut || !snap.Armed {
		t.Fatalf("armed session disturbed: %+v", snap.Session)
	}
	if n := len(h.sender.ofType(signaling.TypeOffer)); n != 0 {
		t.Fatalf("restart offered to nobody: %d", n)
	}
}

func TestRestartGivesUpAfterLimit(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := caller(t, h, "user_b")
	connect(t, h, tr)

	for range maxRestarts + 1 {
		tr.listener.ConnectivityChanged(ConnectivityFailed)
	}

	waitState(t, h.m, Idle)
	if got := tr.restartCount(); got != maxRestarts {
		t.Fatalf("restarts = %d, want %d", got, maxRestarts)
	}
	if n := len(h.sender.ofType(signaling.TypeCallDeclined)); n != 1 {
		t.Fatalf("remote not told about the end")
	}
}

func TestRemoteDepartureReleasesOnce(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := caller(t, h, "user_b")
	connect(t, h, tr)

	h.m.Deliver(&signaling.Message{Type: signaling.TypeUserLeft, UserID: "user_b"})
	snap := waitState(t, h.m, Idle)
	if snap.PendingCandidates != 0 || snap.RemoteID != "" {
		t.Fatalf("session not reset: %+v", snap)
	}

	sent := h.sender.count()
	h.m.Hangup()
	h.m.Deliver(&signaling.Message{Type: signaling.TypeUserLeft, UserID: "user_b"})
	h.m.Snapshot()

	if tr.closeCount() != 1 || h.adapter.media(t, 0).closeCount() != 1 {
		t.Fatalf("released transport %d times, media %d times", tr.closeCount(), h.adapter.media(t, 0).closeCount())
	}
	if h.sender.count() != sent {
		t.Fatalf("messages sent after teardown")
	}
	ended := h.notes.ofKind(NotifyCallEnded)
	if len(ended) != 1 || ended[0].Summary == nil || !ended[0].Summary.WasConnected {
		t.Fatalf("call ended notifications = %+v", ended)
	}
}

func TestOtherPeerLeavingKeepsCall(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := caller(t, h, "user_b")
	connect(t, h, tr)

	h.m.Deliver(&signaling.Message{Type: signaling.TypeUserJoined, UserID: "user_c"})
	h.m.Deliver(&signaling.Message{Type: signaling.TypeUserLeft, UserID: "user_c"})

	if snap := h.m.Snapshot(); snap.State != Connected || snap.RemoteID != "user_b" {
		t.Fatalf("unrelated departure affected call: %+v", snap.Session)
	}
}

func TestHangupNotifiesRemote(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := caller(t, h, "user_b")
	connect(t, h, tr)

	h.m.Hangup()
	waitState(t, h.m, Idle)

	declined := h.sender.ofType(signaling.TypeCallDeclined)
	if len(declined) != 1 || declined[0].TargetUserID != "user_b" {
		t.Fatalf("hang-up message = %+v", declined)
	}
	if tr.closeCount() != 1 {
		t.Fatalf("transport closed %d times", tr.closeCount())
	}
}

func TestStaleTransportEventsIgnored(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := caller(t, h, "user_b")
	h.m.Hangup()
	waitState(t, h.m, Idle)

	tr.listener.ConnectivityChanged(ConnectivityConnected)
	tr.listener.LocalCandidate(Candidate{Candidate: "late"})
	tr.listener.ConnectivityChanged(ConnectivityFailed)

	snap := h.m.Snapshot()
	if snap.State != Idle {
		t.Fatalf("stale event moved state to %v", snap.State)
	}
	if n := len(h.sender.ofType(signaling.TypeICECandidate)); n != 0 {
		t.Fatalf("stale candidate forwarded")
	}
	if n := len(h.notes.ofKind(NotifyCallConnected)); n != 0 {
		t.Fatalf("stale connected reported")
	}
}

func TestLocalCandidatesForwarded(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := caller(t, h, "user_b")

	tr.listener.LocalCandidate(Candidate{Candidate: "l1"})
	tr.listener.LocalCandidate(Candidate{Candidate: "l2"})

	snap := h.m.Snapshot()
	sent := h.sender.ofType(signaling.TypeICECandidate)
	if len(sent) != 2 || sent[0].Candidate.Candidate != "l1" || sent[1].TargetUserID != "user_b" {
		t.Fatalf("forwarded candidates = %+v", sent)
	}
	if snap.CandidatesSent != 2 {
		t.Fatalf("CandidatesSent = %d", snap.CandidatesSent)
	}
}

func TestGlareLowerIDKeepsCaller(t *testing.T) {
	low := newHarness(t, "user_a")
	low.m.Deliver(&signaling.Message{Type: signaling.TypeUserJoined, UserID: "user_b"})
	low.m.Call()
	waitFor(t, "call_request", func() bool { return len(low.sender.ofType(signaling.TypeCallRequest)) == 1 })
	low.m.Deliver(msgFrom(signaling.TypeCallRequest, "user_b"))
	if snap := low.m.Snapshot(); snap.State != RingingOut || snap.Role != RoleCaller {
		t.Fatalf("lower id should stay caller: %+v", snap.Session)
	}

	high := newHarness(t, "user_b")
	high.m.Deliver(&signaling.Message{Type: signaling.TypeUserJoined, UserID: "user_a"})
	high.m.Call()
	waitFor(t, "call_request", func() bool { return len(high.sender.ofType(signaling.TypeCallRequest)) == 1 })
	high.m.Deliver(msgFrom(signaling.TypeCallRequest, "user_a"))
	snap := waitState(t, high.m, Negotiating)
	if snap.Role != RoleCallee || len(high.sender.ofType(signaling.TypeCallAccepted)) != 1 {
		t.Fatalf("higher id should yield: %+v", snap.Session)
	}
}

func TestToggleMedia(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := caller(t, h, "user_b")

	h.m.ToggleAudio()
	snap := h.m.Snapshot()
	if snap.Local.Audio || !snap.Local.Video {
		t.Fatalf("local state = %+v", snap.Local)
	}
	if h.adapter.media(t, 0).isEnabled(TrackAudio) {
		t.Fatalf("audio track still enabled")
	}

	tr.mu.Lock()
	last := tr.mediaStates[len(tr.mediaStates)-1]
	tr.mu.Unlock()
	if last.Audio || !last.Video {
		t.Fatalf("remote not told about mute: %+v", last)
	}
}

func TestChannelLostEndsCall(t *testing.T) {
	h := newHarness(t, "user_me")
	tr := callee(t, h, "user_a")

	h.m.ChannelLost(errors.New("eof"))
	waitState(t, h.m, Idle)

	if !h.notes.errorIs(ErrChannel) {
		t.Fatalf("channel loss not reported")
	}
	if tr.closeCount() != 1 {
		t.Fatalf("transport closed %d times", tr.closeCount())
	}
}

func TestSendFailureIsContained(t *testing.T) {
	h := newHarness(t, "user_me")
	h.sender.err = errors.New("socket closed")

	h.m.Join("R")
	h.m.Deliver(msgFrom(signaling.TypeCallRequest, "user_a"))
	h.m.Accept()

	waitFor(t, "call end", func() bool { return len(h.notes.ofKind(NotifyCallEnded)) == 1 })
	if !h.notes.errorIs(ErrChannel) {
		t.Fatalf("send failure not reported as channel error")
	}
	if snap := h.m.Snapshot(); snap.State != Idle || snap.HasTransport {
		t.Fatalf("session not released: %+v", snap)
	}
}

func TestShutdownReleasesActiveCall(t *testing.T) {
	h := &harness{adapter: &fakeAdapter{}, sender: &recordingSender{}, notes: &noteLog{}}
	m := New(Options{Self: "user_me", Sender: h.sender, Adapter: h.adapter, Notify: h.notes.add})
	h.m = m

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Run(ctx) }()

	tr := callee(t, h, "user_a")
	cancel()
	<-m.Done()

	if tr.closeCount() != 1 {
		t.Fatalf("transport closed %d times on shutdown", tr.closeCount())
	}
	if snap := m.Snapshot(); snap.State != Idle {
		t.Fatalf("snapshot after stop = %+v", snap)
	}
}
