package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/Warpcall/internal/metrics"
	"github.com/BioHazard786/Warpcall/internal/room"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

const (
	eventQueueSize = 256

	// maxRestarts bounds consecutive restarts without reaching connected.
	maxRestarts = 3
)

// Options configures a Machine.
type Options struct {
	Self    string
	Sender  Sender
	Adapter Adapter
	// Notify is called from the machine goroutine and must not block.
	Notify  func(Notification)
	Metrics *metrics.Call
}

type event struct {
	run     func()
	// discard releases whatever run would have taken ownership of.
	discard func()
}

// Machine is the call negotiation state machine. All session state is owned
// by the goroutine running Run; every other method only enqueues an event.
type Machine struct {
	self    string
	sender  Sender
	adapter Adapter
	notify  func(Notification)
	metrics *metrics.Call

	events   chan event
	stopping chan struct{}
	done     chan struct{}
	postMu   sync.RWMutex
	stopped  bool

	// Owned by the loop.
	ctx       context.Context
	room      *room.Membership
	inbound   *signaling.Router
	session   Session
	epoch     uint64
	media     Media
	transport Transport
	buffer    CandidateBuffer
	local     MediaState
}

func New(opts Options) *Machine {
	m := &Machine{
		self:     opts.Self,
		sender:   opts.Sender,
		adapter:  opts.Adapter,
		notify:   opts.Notify,
		metrics:  opts.Metrics,
		events:   make(chan event, eventQueueSize),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		local:    MediaState{Audio: true, Video: true},
	}
	if m.notify == nil {
		m.notify = func(Notification) {}
	}
	m.room = room.NewMembership(opts.Self, opts.Sender)

	m.inbound = signaling.NewRouter()
	m.inbound.Handle(signaling.TypeUserJoined, m.onUserJoined)
	m.inbound.Handle(signaling.TypeUserLeft, m.onUserLeft)
	m.inbound.Handle(signaling.TypeCallRequest, m.onCallRequest)
	m.inbound.Handle(signaling.TypeCallAccepted, m.onCallAccepted)
	m.inbound.Handle(signaling.TypeCallDeclined, m.onCallDeclined)
	m.inbound.Handle(signaling.TypeOffer, m.onOffer)
	m.inbound.Handle(signaling.TypeAnswer, m.onAnswer)
	m.inbound.Handle(signaling.TypeICECandidate, m.onCandidate)
	return m
}

// Run processes events until ctx is cancelled. Any active call is released
// locally on the way out.
func (m *Machine) Run(ctx context.Context) error {
	m.ctx = ctx
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			ev.run()
		}
	}
}

func (m *Machine) shutdown() {
	m.teardown("shutdown")

	close(m.stopping)
	m.postMu.Lock()
	m.stopped = true
	m.postMu.Unlock()

	for {
		select {
		case ev := <-m.events:
			if ev.discard != nil {
				ev.discard()
			}
		default:
			close(m.done)
			return
		}
	}
}

// Done is closed after Run has returned and released everything.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

func (m *Machine) post(ev event) bool {
	m.postMu.RLock()
	defer m.postMu.RUnlock()

	if m.stopped {
		return false
	}
	select {
	case m.events <- ev:
		return true
	case <-m.stopping:
		return false
	}
}

func (m *Machine) enqueue(fn func()) {
	m.post(event{run: fn})
}

// Register routes every message type the machine understands from r into
// the machine's queue.
func (m *Machine) Register(r *signaling.Router) {
	for _, t := range []string{
		signaling.TypeUserJoined, signaling.TypeUserLeft,
		signaling.TypeCallRequest, signaling.TypeCallAccepted, signaling.TypeCallDeclined,
		signaling.TypeOffer, signaling.TypeAnswer, signaling.TypeICECandidate,
	} {
		r.Handle(t, m.Deliver)
	}
}

// Deliver enqueues one inbound channel message.
func (m *Machine) Deliver(msg *signaling.Message) {
	m.enqueue(func() { m.inbound.Dispatch(msg) })
}

func (m *Machine) Join(roomID string) { m.enqueue(func() { m.join(roomID) }) }
func (m *Machine) Call()              { m.enqueue(m.call) }
func (m *Machine) Accept()            { m.enqueue(m.accept) }
func (m *Machine) Decline()           { m.enqueue(m.decline) }
func (m *Machine) Hangup()            { m.enqueue(m.hangup) }
func (m *Machine) ToggleAudio()       { m.enqueue(func() { m.toggle(TrackAudio) }) }
func (m *Machine) ToggleVideo()       { m.enqueue(func() { m.toggle(TrackVideo) }) }

// ChannelLost reports that the signaling channel is gone. The active call,
// if any, is released; nothing is reconnected.
func (m *Machine) ChannelLost(err error) {
	m.enqueue(func() {
		m.fail(WrapError("signaling", "", ErrChannel, fmt.Sprint(err)))
		m.teardown("signaling channel lost")
	})
}

// Snapshot returns a copy of the current session, evaluated in the loop.
// It returns the zero Snapshot once the machine has stopped.
func (m *Machine) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !m.post(event{run: func() { reply <- m.snapshot() }}) {
		return Snapshot{}
	}
	select {
	case s := <-reply:
		return s
	case <-m.done:
		return Snapshot{}
	}
}

func (m *Machine) snapshot() Snapshot {
	return Snapshot{
		Session:           m.session,
		Room:              m.room.Room(),
		RoomCandidate:     m.room.Candidate(),
		PendingCandidates: m.buffer.Len(),
		HasTransport:      m.transport != nil,
		HasMedia:          m.media != nil,
		Local:             m.local,
		Buffer:            m.buffer.Stats(),
	}
}

// --- intents ---

func (m *Machine) join(roomID string) {
	if err := m.room.Join(roomID); err != nil {
		if errors.Is(err, room.ErrEmptyRoom) {
			m.fail(NewError("join room", "", err))
		} else {
			m.fail(WrapError("join room", "", ErrChannel, err.Error()))
		}
		return
	}
	m.status(fmt.Sprintf("Joined room %s", roomID))
}

func (m *Machine) call() {
	if m.session.State != Idle || m.session.Dialing {
		m.status("Already in a call")
		return
	}

	// RingingOut is entered once media is ready; until then the state
	// stays Idle and a failed acquisition leaves no trace in it.
	remote := m.room.Candidate()
	m.session = Session{
		Role:      RoleCaller,
		RemoteID:  remote,
		Armed:     remote == "",
		Dialing:   true,
		StartedAt: time.Now(),
	}
	if remote == "" {
		m.status("Waiting for someone to join...")
	} else {
		m.status("Calling...")
	}
	m.acquire()
}

func (m *Machine) accept() {
	s := &m.session
	if s.State != RingingIn || s.Acquiring {
		m.status("No incoming call to accept")
		return
	}
	m.status("Accepting call...")
	m.acquire()
}

func (m *Machine) decline() {
	s := &m.session
	if s.State != RingingIn {
		m.status("No incoming call to decline")
		return
	}
	m.send(signaling.CallDeclined(s.RemoteID, ""))
	m.status("Call declined")
	m.teardown("declined")
}

func (m *Machine) hangup() {
	if m.session.State == Idle {
		if m.session.Dialing {
			m.status("Call cancelled")
			m.teardown("cancelled")
		}
		return
	}
	m.status("Call ended")
	m.endWithRemote("hung up")
}

func (m *Machine) toggle(kind TrackKind) {
	var enabled bool
	switch kind {
	case TrackAudio:
		m.local.Audio = !m.local.Audio
		enabled = m.local.Audio
	case TrackVideo:
		m.local.Video = !m.local.Video
		enabled = m.local.Video
	}

	if m.media != nil {
		m.media.SetEnabled(kind, enabled)
	}
	if m.transport != nil {
		if err := m.transport.SetMediaState(m.local); err != nil {
			slog.Debug("media state not delivered", "err", err)
		}
	}

	label := "Microphone"
	if kind == TrackVideo {
		label = "Camera"
	}
	if enabled {
		m.status(label + " on")
	} else {
		m.status(label + " off")
	}
}

// --- media acquisition ---

type acquisition struct {
	epoch     uint64
	media     Media
	transport Transport
	err       error
}

func (a acquisition) release() {
	if a.transport != nil {
		_ = a.transport.Close()
	}
	if a.media != nil {
		_ = a.media.Close()
	}
}

// acquire starts media and transport acquisition off the loop. The result
// comes back as an event tagged with the epoch it started in.
func (m *Machine) acquire() {
	m.session.Acquiring = true
	epoch := m.epoch
	ctx := m.ctx
	l := &listener{m: m, epoch: epoch}

	go func() {
		res := acquisition{epoch: epoch}
		res.media, res.err = m.adapter.AcquireLocalMedia(ctx)
		if res.err == nil {
			res.transport, res.err = m.adapter.CreateTransport(res.media, l)
			if res.err != nil {
				_ = res.media.Close()
				res.media = nil
			}
		}

		if !m.post(event{run: func() { m.onAcquired(res) }, discard: res.release}) {
			res.release()
		}
	}()
}

func (m *Machine) onAcquired(res acquisition) {
	s := &m.session
	if res.epoch != m.epoch || !s.Acquiring || (!s.Dialing && s.State != RingingIn) {
		slog.Debug("discarding stale media acquisition", "epoch", res.epoch, "current", m.epoch)
		res.release()
		return
	}
	s.Acquiring = false

	if res.err != nil {
		m.fail(WrapError("acquire media", s.RemoteID, ErrResourceUnavailable, res.err.Error()))
		if s.State == RingingIn {
			m.send(signaling.CallDeclined(s.RemoteID, signaling.ReasonUnavailable))
		}
		m.teardown("media unavailable")
		return
	}

	if s.Dialing {
		s.Dialing = false
		m.setState(RingingOut)
	}
	m.media, m.transport = res.media, res.transport
	m.buffer.Attach(m.transport)
	m.media.SetEnabled(TrackAudio, m.local.Audio)
	m.media.SetEnabled(TrackVideo, m.local.Video)
	if err := m.transport.SetMediaState(m.local); err != nil {
		slog.Debug("initial media state not delivered", "err", err)
	}

	switch {
	case s.State == RingingIn || s.acceptOnReady:
		m.acceptCall()
	case s.RemoteID != "":
		m.invite()
	default:
		m.status("Ready. Waiting for someone to join...")
	}
}

// --- channel messages ---

func (m *Machine) onUserJoined(msg *signaling.Message) {
	id := msg.UserID
	if !m.room.PeerJoined(id) {
		return
	}
	m.emit(Notification{Kind: NotifyPeerJoined, Peer: id, Message: fmt.Sprintf("User %s joined the room", id)})

	s := &m.session
	if (s.State == RingingOut || s.Dialing) && s.Armed && s.RemoteID == "" {
		s.RemoteID = id
		if !s.Acquiring {
			m.invite()
		}
	}
}

func (m *Machine) onUserLeft(msg *signaling.Message) {
	id := msg.UserID
	m.room.PeerLeft(id)
	m.emit(Notification{Kind: NotifyPeerLeft, Peer: id, Message: fmt.Sprintf("User %s left the room", id)})

	if id != "" && id == m.session.RemoteID && (m.session.State != Idle || m.session.Dialing) {
		m.status("The other participant left")
		m.teardown("remote left")
	}
}

func (m *Machine) onCallRequest(msg *signaling.Message) {
	from := msg.FromUserID
	if from == "" || from == m.self {
		return
	}
	m.room.PeerJoined(from)

	s := &m.session
	switch {
	case s.State == Idle && !s.Dialing:
		m.session = Session{Role: RoleCallee, RemoteID: from, StartedAt: time.Now()}
		m.setState(RingingIn)
		m.emit(Notification{Kind: NotifyIncomingCall, Peer: from, Message: fmt.Sprintf("User %s is calling...", from)})

	case (s.State == RingingOut || s.Dialing) && s.RemoteID == "":
		s.RemoteID = from
		m.yield()

	case (s.State == RingingOut || s.Dialing) && s.RemoteID == from:
		// Both sides called each other; the lower id keeps the caller role.
		if m.self < from {
			slog.Debug("call glare, keeping caller role", "peer", from)
			return
		}
		m.yield()

	case s.State == RingingIn && s.RemoteID == from:
		// repeated invitation

	default:
		slog.Info("declining call while busy", "peer", from, "state", s.State)
		m.send(signaling.CallDeclined(from, signaling.ReasonBusy))
	}
}

// yield turns an outgoing call into an accepted incoming one.
func (m *Machine) yield() {
	s := &m.session
	s.Role = RoleCallee
	if s.Acquiring {
		s.acceptOnReady = true
		return
	}
	m.acceptCall()
}

func (m *Machine) onCallAccepted(msg *signaling.Message) {
	s := &m.session
	if msg.FromUserID != s.RemoteID || s.State != RingingOut {
		slog.Debug("ignoring call_accepted", "from", msg.FromUserID, "state", s.State)
		return
	}
	if m.transport == nil {
		m.fail(NewError("handle call_accepted", s.RemoteID, ErrInvalidRemoteState))
		return
	}
	m.sendOffer(false)
}

func (m *Machine) onCallDeclined(msg *signaling.Message) {
	s := &m.session
	if msg.FromUserID != s.RemoteID || s.State == Idle {
		return
	}
	if msg.Reason == signaling.ReasonBusy {
		m.fail(NewError("call", s.RemoteID, ErrBusy))
		m.teardown("remote busy")
		return
	}
	m.status("Call declined")
	m.teardown("declined by remote")
}

func (m *Machine) onOffer(msg *signaling.Message) {
	s := &m.session
	from := msg.FromUserID
	if from != s.RemoteID || s.State == Idle {
		slog.Debug("ignoring offer", "from", from, "state", s.State)
		return
	}
	if msg.Offer == nil {
		m.fail(WrapError("handle offer", from, ErrInvalidRemoteState, "missing description"))
		return
	}
	if m.transport == nil {
		m.fail(NewError("handle offer", from, ErrInvalidRemoteState))
		return
	}
	if s.State != Negotiating && s.State != Connected {
		m.fail(WrapError("handle offer", from, ErrInvalidRemoteState, "unexpected in state "+s.State.String()))
		return
	}

	rolledBack := false
	if s.offerPending {
		// Both sides offered at once; the lower id keeps its offer.
		if m.self < from {
			slog.Debug("offer glare, keeping our offer", "peer", from)
			return
		}
		if err := m.transport.Rollback(); err != nil {
			m.fail(WrapError("roll back offer", from, ErrInvalidRemoteState, err.Error()))
			m.endWithRemote("negotiation failed")
			return
		}
		slog.Debug("offer glare, answering remote offer", "peer", from)
		s.offerPending = false
		rolledBack = true
	}

	if err := m.transport.SetRemoteDescription(*msg.Offer); err != nil {
		m.fail(WrapError("set remote offer", from, ErrInvalidRemoteState, err.Error()))
		return
	}
	offer := *msg.Offer
	s.RemoteDescription = &offer
	m.flush()

	answer, err := m.transport.CreateAnswer()
	if err == nil {
		err = m.transport.SetLocalDescription(answer)
	}
	if err != nil {
		m.fail(WrapError("create answer", from, ErrInvalidRemoteState, err.Error()))
		m.endWithRemote("negotiation failed")
		return
	}
	s.LocalDescription = &answer
	if msg.ICERestart {
		if !rolledBack {
			s.Restarts++
		}
		m.status("Reconnecting at the other side's request...")
	}
	m.send(signaling.Answer(from, answer))
}

func (m *Machine) onAnswer(msg *signaling.Message) {
	s := &m.session
	from := msg.FromUserID
	if from != s.RemoteID || s.State == Idle {
		slog.Debug("ignoring answer", "from", from, "state", s.State)
		return
	}
	if msg.Answer == nil {
		m.fail(WrapError("handle answer", from, ErrInvalidRemoteState, "missing description"))
		return
	}
	if m.transport == nil {
		m.fail(NewError("handle answer", from, ErrInvalidRemoteState))
		return
	}
	if !s.offerPending {
		m.fail(WrapError("handle answer", from, ErrInvalidRemoteState, "no offer outstanding"))
		return
	}

	if err := m.transport.SetRemoteDescription(*msg.Answer); err != nil {
		m.fail(WrapError("set remote answer", from, ErrInvalidRemoteState, err.Error()))
		return
	}
	s.offerPending = false
	answer := *msg.Answer
	s.RemoteDescription = &answer
	m.flush()
}

func (m *Machine) onCandidate(msg *signaling.Message) {
	s := &m.session
	from := msg.FromUserID
	if from != s.RemoteID || s.State == Idle {
		slog.Debug("ignoring candidate", "from", from, "state", s.State)
		return
	}
	if msg.Candidate == nil {
		m.fail(WrapError("handle candidate", from, ErrInvalidCandidate, "missing candidate"))
		return
	}

	buffered, err := m.buffer.Offer(*msg.Candidate)
	switch {
	case buffered:
		m.metrics.Candidate(metrics.CandidateBuffered, 1)
	case err != nil:
		m.metrics.Candidate(metrics.CandidateFailed, 1)
		m.metrics.Error(Kind(err))
	default:
		m.metrics.Candidate(metrics.CandidateApplied, 1)
	}
}

// --- transport events ---

type listener struct {
	m     *Machine
	epoch uint64
}

func (l *listener) LocalCandidate(c Candidate) {
	l.m.enqueue(func() { l.m.onLocalCandidate(l.epoch, c) })
}

func (l *listener) RemoteTrack(t TrackInfo) {
	l.m.enqueue(func() { l.m.onRemoteTrack(l.epoch, t) })
}

func (l *listener) ConnectivityChanged(c Connectivity) {
	l.m.enqueue(func() { l.m.onConnectivity(l.epoch, c) })
}

func (l *listener) RemoteMediaState(ms MediaState) {
	l.m.enqueue(func() { l.m.onRemoteMediaState(l.epoch, ms) })
}

func (m *Machine) live(epoch uint64) bool {
	return epoch == m.epoch && m.transport != nil
}

func (m *Machine) onLocalCandidate(epoch uint64, c Candidate) {
	if !m.live(epoch) || m.session.RemoteID == "" {
		return
	}
	if m.send(signaling.ICECandidate(m.session.RemoteID, c)) {
		m.session.CandidatesSent++
		m.metrics.Candidate(metrics.CandidateSent, 1)
	}
}

func (m *Machine) onRemoteTrack(epoch uint64, t TrackInfo) {
	if !m.live(epoch) {
		return
	}
	m.emit(Notification{Kind: NotifyRemoteTrack, Peer: m.session.RemoteID, Track: t,
		Message: fmt.Sprintf("Receiving %s (%s)", t.Kind, t.Codec)})
}

func (m *Machine) onRemoteMediaState(epoch uint64, ms MediaState) {
	if !m.live(epoch) {
		return
	}
	m.emit(Notification{Kind: NotifyRemoteMediaState, Peer: m.session.RemoteID, Media: ms})
}

func (m *Machine) onConnectivity(epoch uint64, c Connectivity) {
	if !m.live(epoch) {
		return
	}
	s := &m.session
	slog.Debug("connectivity changed", "state", c, "peer", s.RemoteID)

	switch c {
	case ConnectivityConnecting:
		m.status("Connecting...")

	case ConnectivityConnected:
		s.failedRestarts = 0
		if s.State != Negotiating || s.RemoteDescription == nil {
			m.status("Connection restored")
			return
		}
		if s.ConnectedAt.IsZero() {
			s.ConnectedAt = time.Now()
		}
		m.setState(Connected)
		m.emit(Notification{Kind: NotifyCallConnected, Peer: s.RemoteID, Message: "Call connected successfully"})

	case ConnectivityDisconnected:
		m.status("Connection unstable, waiting for it to recover...")

	case ConnectivityFailed:
		m.onTransportFailed()

	case ConnectivityClosed:
		if s.State != Idle {
			m.fail(WrapError("transport", s.RemoteID, ErrResourceUnavailable, "closed unexpectedly"))
			m.endWithRemote("transport closed")
		}
	}
}

// onTransportFailed restarts connectivity with an ice_restart offer. Either
// side may restart; crossing offers are settled in onOffer.
func (m *Machine) onTransportFailed() {
	s := &m.session
	if s.RemoteID == "" {
		m.fail(WrapError("restart", "", ErrNoRemote, "transport failed before a peer was bound"))
		return
	}
	if s.RemoteDescription == nil {
		return
	}
	if s.failedRestarts >= maxRestarts {
		m.fail(WrapError("restart", s.RemoteID, ErrResourceUnavailable, "connectivity did not recover"))
		m.endWithRemote("connection failed")
		return
	}

	s.failedRestarts++
	s.Restarts++
	m.metrics.Restart()
	m.status("Connection failed - trying to reconnect...")
	m.sendOffer(true)
}

// --- transitions ---

func (m *Machine) invite() {
	if !m.send(signaling.CallRequest(m.session.RemoteID)) {
		m.teardown("signaling failed")
		return
	}
	m.status("Calling...")
}

func (m *Machine) acceptCall() {
	s := &m.session
	s.acceptOnReady = false
	s.Role = RoleCallee
	if !m.send(signaling.CallAccepted(s.RemoteID)) {
		m.teardown("signaling failed")
		return
	}
	m.setState(Negotiating)
}

func (m *Machine) sendOffer(iceRestart bool) {
	s := &m.session
	if !iceRestart {
		s.Role = RoleCaller
	}

	offer, err := m.transport.CreateOffer(iceRestart)
	if err == nil {
		err = m.transport.SetLocalDescription(offer)
	}
	if err != nil {
		m.fail(WrapError("create offer", s.RemoteID, ErrInvalidRemoteState, err.Error()))
		m.endWithRemote("negotiation failed")
		return
	}

	s.LocalDescription = &offer
	s.offerPending = true
	if !m.send(signaling.Offer(s.RemoteID, offer, iceRestart)) {
		m.teardown("signaling failed")
		return
	}
	m.setState(Negotiating)
}

func (m *Machine) flush() {
	if m.buffer.Ready() {
		return
	}
	applied, failed := m.buffer.Flush()
	m.metrics.Candidate(metrics.CandidateApplied, applied)
	m.metrics.Candidate(metrics.CandidateFailed, failed)
	slog.Debug("flushed buffered candidates", "applied", applied, "failed", failed)
}

// endWithRemote tells the bound remote the call is over, then tears down.
func (m *Machine) endWithRemote(reason string) {
	if remote := m.session.RemoteID; remote != "" {
		m.send(signaling.CallDeclined(remote, ""))
	}
	m.teardown(reason)
}

// teardown releases the media and transport exactly once and resets the
// session to Idle. Results of in-flight acquisitions become stale.
func (m *Machine) teardown(reason string) {
	s := m.session
	if s.State == Idle && m.transport == nil && m.media == nil {
		if s.Dialing {
			// Nothing was acquired or sent yet; drop the intent quietly.
			m.epoch++
			m.session = Session{}
			slog.Debug("call intent dropped", "reason", reason)
		}
		return
	}

	m.epoch++
	m.release()

	stats := m.buffer.Stats()
	m.buffer.Reset()

	summary := &Summary{
		Peer:               s.RemoteID,
		Role:               s.Role,
		Reason:             reason,
		WasConnected:       !s.ConnectedAt.IsZero(),
		CandidatesSent:     s.CandidatesSent,
		CandidatesBuffered: stats.Buffered,
		CandidatesApplied:  stats.Applied,
		CandidatesFailed:   stats.Failed,
		Restarts:           s.Restarts,
	}
	if summary.WasConnected {
		summary.Duration = time.Since(s.ConnectedAt)
	}

	m.setState(Ended)
	m.session = Session{State: Ended}
	m.setState(Idle)
	m.emit(Notification{Kind: NotifyCallEnded, Peer: s.RemoteID, Message: reason, Summary: summary})
}

func (m *Machine) release() {
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			slog.Debug("closing transport", "err", err)
		}
		m.transport = nil
	}
	if m.media != nil {
		if err := m.media.Close(); err != nil {
			slog.Debug("closing media", "err", err)
		}
		m.media = nil
	}
}

// --- outward ---

func (m *Machine) send(msg *signaling.Message) bool {
	if err := m.sender.Send(msg); err != nil {
		m.fail(WrapError("send "+msg.Type, msg.TargetUserID, ErrChannel, err.Error()))
		return false
	}
	return true
}

func (m *Machine) setState(to State) {
	from := m.session.State
	if from == to {
		return
	}
	m.session.State = to
	m.metrics.Transition(from.String(), to.String())
	slog.Debug("call state", "from", from, "to", to, "peer", m.session.RemoteID)
	m.emit(Notification{Kind: NotifyStateChanged, Peer: m.session.RemoteID})
}

func (m *Machine) status(text string) {
	m.emit(Notification{Kind: NotifyStatus, Message: text})
}

func (m *Machine) fail(err *Error) {
	slog.Warn("call error", "op", err.Op, "peer", err.Peer, "err", err)
	m.metrics.Error(Kind(err))
	m.emit(Notification{Kind: NotifyError, Peer: err.Peer, Err: err, Message: err.Error()})
}

func (m *Machine) emit(n Notification) {
	n.State = m.session.State
	m.notify(n)
}
