package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Warpcall/internal/signaling"
)

var (
	_ Adapter   = (*fakeAdapter)(nil)
	_ Media     = (*fakeMedia)(nil)
	_ Transport = (*fakeTransport)(nil)
	_ Sender    = (*recordingSender)(nil)
)

type fakeAdapter struct {
	mu         sync.Mutex
	acquireErr error
	// gate, when set, holds AcquireLocalMedia until it is closed.
	gate       chan struct{}
	medias     []*fakeMedia
	transports []*fakeTransport
}

func (a *fakeAdapter) AcquireLocalMedia(ctx context.Context) (Media, error) {
	a.mu.Lock()
	gate, err := a.gate, a.acquireErr
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	md := &fakeMedia{enabled: map[TrackKind]bool{}}
	a.mu.Lock()
	a.medias = append(a.medias, md)
	a.mu.Unlock()
	return md, nil
}

func (a *fakeAdapter) CreateTransport(_ Media, l Listener) (Transport, error) {
	tr := &fakeTransport{listener: l}
	a.mu.Lock()
	a.transports = append(a.transports, tr)
	a.mu.Unlock()
	return tr, nil
}

func (a *fakeAdapter) setGate(g chan struct{}) {
	a.mu.Lock()
	a.gate = g
	a.mu.Unlock()
}

func (a *fakeAdapter) setErr(err error) {
	a.mu.Lock()
	a.acquireErr = err
	a.mu.Unlock()
}

func (a *fakeAdapter) transport(t *testing.T, i int) *fakeTransport {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if i >= len(a.transports) {
		t.Fatalf("transport %d not created (have %d)", i, len(a.transports))
	}
	return a.transports[i]
}

func (a *fakeAdapter) media(t *testing.T, i int) *fakeMedia {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if i >= len(a.medias) {
		t.Fatalf("media %d not acquired (have %d)", i, len(a.medias))
	}
	return a.medias[i]
}

func (a *fakeAdapter) created() (medias, transports int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.medias), len(a.transports)
}

type fakeMedia struct {
	mu      sync.Mutex
	closes  int
	enabled map[TrackKind]bool
}

func (m *fakeMedia) SetEnabled(kind TrackKind, on bool) {
	m.mu.Lock()
	m.enabled[kind] = on
	m.mu.Unlock()
}

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	return nil
}

func (m *fakeMedia) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *fakeMedia) isEnabled(kind TrackKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[kind]
}

type fakeTransport struct {
	listener Listener

	mu          sync.Mutex
	offers      int
	restarts    int
	local       *Description
	remote      *Description
	applied     []string
	mediaStates []MediaState
	closes      int
	rollbacks   int
}

func (f *fakeTransport) CreateOffer(iceRestart bool) (Description, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers++
	if iceRestart {
		f.restarts++
	}
	return Description{Type: "offer", SDP: fmt.Sprintf("v=0 offer-%d restart=%v", f.offers, iceRestart)}, nil
}

func (f *fakeTransport) CreateAnswer() (Description, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		return Description{}, errors.New("no remote offer")
	}
	return Description{Type: "answer", SDP: "v=0 answer"}, nil
}

func (f *fakeTransport) SetLocalDescription(d Description) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.local = &d
	return nil
}

func (f *fakeTransport) SetRemoteDescription(d Description) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.SDP == "" {
		return errors.New("empty sdp")
	}
	f.remote = &d
	return nil
}

func (f *fakeTransport) Rollback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.local == nil || f.local.Type != "offer" {
		return errors.New("no local offer to roll back")
	}
	f.local = nil
	f.rollbacks++
	return nil
}

func (f *fakeTransport) AddCandidate(c Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		return errors.New("remote description not set")
	}
	if c.Candidate == "bad" {
		return errors.New("malformed candidate")
	}
	f.applied = append(f.applied, c.Candidate)
	return nil
}

func (f *fakeTransport) SetMediaState(ms MediaState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mediaStates = append(f.mediaStates, ms)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) appliedCandidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) restartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}

func (f *fakeTransport) rollbackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rollbacks
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []*signaling.Message
	err  error
}

func (s *recordingSender) Send(m *signaling.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *recordingSender) ofType(typ string) []*signaling.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*signaling.Message
	for _, m := range s.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type noteLog struct {
	mu   sync.Mutex
	list []Notification
}

func (n *noteLog) add(x Notification) {
	n.mu.Lock()
	n.list = append(n.list, x)
	n.mu.Unlock()
}

func (n *noteLog) ofKind(k NotificationKind) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Notification
	for _, x := range n.list {
		if x.Kind == k {
			out = append(out, x)
		}
	}
	return out
}

func (n *noteLog) errorIs(target error) bool {
	for _, x := range n.ofKind(NotifyError) {
		if errors.Is(x.Err, target) {
			return true
		}
	}
	return false
}

type harness struct {
	m       *Machine
	adapter *fakeAdapter
	sender  *recordingSender
	notes   *noteLog
}

func newHarness(t *testing.T, self string) *harness {
	t.Helper()
	h := &harness{adapter: &fakeAdapter{}, sender: &recordingSender{}, notes: &noteLog{}}
	h.m = New(Options{Self: self, Sender: h.sender, Adapter: h.adapter, Notify: h.notes.add})
	start(t, h.m)
	return h
}

func start(t *testing.T, m *Machine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-m.Done()
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, m *Machine, want State) Snapshot {
	t.Helper()
	var snap Snapshot
	waitFor(t, "state "+want.String(), func() bool {
		snap = m.Snapshot()
		return snap.State == want && !snap.Acquiring
	})
	return snap
}

func msgFrom(typ, from string) *signaling.Message {
	return &signaling.Message{Type: typ, FromUserID: from}
}

func candidateFrom(from, c string) *signaling.Message {
	return &signaling.Message{Type: signaling.TypeICECandidate, FromUserID: from, Candidate: &Candidate{Candidate: c}}
}

func offerFrom(from string, restart bool) *signaling.Message {
	return &signaling.Message{
		Type:       signaling.TypeOffer,
		FromUserID: from,
		Offer:      &Description{Type: "offer", SDP: "v=0 remote-offer"},
		ICERestart: restart,
	}
}

func answerFrom(from string) *signaling.Message {
	return &signaling.Message{Type: signaling.TypeAnswer, FromUserID: from, Answer: &Description{Type: "answer", SDP: "v=0 remote-answer"}}
}
