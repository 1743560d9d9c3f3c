package rtc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

const (
	iceKeepalive = 2 * time.Second

	// pliInterval asks the remote for a keyframe so a recorder or a late
	// decoder can start cleanly.
	pliInterval = 3 * time.Second
)

var errClosed = errors.New("transport closed")

// Transport is one peer connection for one call.
type Transport struct {
	pc       *webrtc.PeerConnection
	media    *LocalMedia
	listener call.Listener
	control  *controlChannel
	recorder *recorder

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	// remoteUfrag is the ICE username fragment of the last applied remote
	// description. A new value means the remote restarted ICE.
	remoteUfrag    string
	remoteRestarts int
}

var _ call.Transport = (*Transport)(nil)

func newTransport(pc *webrtc.PeerConnection, lm *LocalMedia, l call.Listener, recordDir string) (*Transport, error) {
	t := &Transport{
		pc:       pc,
		media:    lm,
		listener: l,
		recorder: newRecorder(recordDir),
		done:     make(chan struct{}),
	}

	control, err := newControlChannel(pc, l.RemoteMediaState)
	if err != nil {
		return nil, fmt.Errorf("create control channel: %w", err)
	}
	t.control = control

	tracks := lm.Tracks()
	for _, kind := range []call.TrackKind{call.TrackAudio, call.TrackVideo} {
		track, ok := tracks[kind]
		if !ok {
			// Still receive what the peer sends.
			codecType := webrtc.RTPCodecTypeAudio
			if kind == call.TrackVideo {
				codecType = webrtc.RTPCodecTypeVideo
			}
			if _, err := pc.AddTransceiverFromKind(codecType, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
			}
			continue
		}

		sender, err := pc.AddTrack(track)
		if err != nil {
			return nil, fmt.Errorf("add %s track: %w", kind, err)
		}
		lm.bind(kind, sender)
		go drainRTCP(sender)
	}

	t.setupHandlers()
	return t, nil
}

// setupHandlers forwards pion events to the listener.
func (t *Transport) setupHandlers() {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		t.listener.LocalCandidate(candidateFromPion(c.ToJSON()))
	})

	t.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnecting:
			t.listener.ConnectivityChanged(call.ConnectivityConnecting)
		case webrtc.PeerConnectionStateConnected:
			t.listener.ConnectivityChanged(call.ConnectivityConnected)
		case webrtc.PeerConnectionStateDisconnected:
			t.listener.ConnectivityChanged(call.ConnectivityDisconnected)
		case webrtc.PeerConnectionStateFailed:
			t.listener.ConnectivityChanged(call.ConnectivityFailed)
		case webrtc.PeerConnectionStateClosed:
			if !t.isClosed() {
				t.listener.ConnectivityChanged(call.ConnectivityClosed)
			}
		}
	})

	t.pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		kind, err := kindOf(remote.Kind())
		if err != nil {
			slog.Warn("ignoring remote track", "err", err)
			return
		}
		codec := remote.Codec().MimeType
		slog.Info("remote track", "kind", kind, "codec", codec, "ssrc", remote.SSRC())
		t.listener.RemoteTrack(call.TrackInfo{Kind: kind, ID: remote.ID(), Codec: codec})

		if kind == call.TrackVideo {
			go t.requestKeyframes(remote)
		}
		go t.recorder.consume(remote, t.done)
	})
}

// requestKeyframes sends a PLI for remote until the transport closes.
func (t *Transport) requestKeyframes(remote *webrtc.TrackRemote) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			err := t.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())}})
			if err != nil {
				slog.Debug("sending PLI", "err", err)
			}
		}
	}
}

// drainRTCP reads incoming RTCP so interceptors (NACK, reports) run.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (t *Transport) CreateOffer(iceRestart bool) (call.Description, error) {
	if t.isClosed() {
		return call.Description{}, errClosed
	}
	offer, err := t.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return call.Description{}, err
	}
	return descriptionFromPion(offer), nil
}

func (t *Transport) CreateAnswer() (call.Description, error) {
	if t.isClosed() {
		return call.Description{}, errClosed
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return call.Description{}, err
	}
	return descriptionFromPion(answer), nil
}

func (t *Transport) SetLocalDescription(d call.Description) error {
	sd, err := descriptionToPion(d)
	if err != nil {
		return err
	}
	return t.pc.SetLocalDescription(sd)
}

func (t *Transport) SetRemoteDescription(d call.Description) error {
	sd, err := descriptionToPion(d)
	if err != nil {
		return err
	}
	info, err := inspectSDP(d.SDP)
	if err != nil {
		return err
	}
	slog.Debug("remote description", "type", d.Type, "media", info.Media, "ice_ufrag", info.ICEUfrag)
	if err := t.pc.SetRemoteDescription(sd); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if info.ICEUfrag != "" && t.remoteUfrag != "" && info.ICEUfrag != t.remoteUfrag {
		t.remoteRestarts++
		slog.Info("remote restarted ICE", "type", d.Type, "previous_ufrag", t.remoteUfrag, "ice_ufrag", info.ICEUfrag)
	}
	if info.ICEUfrag != "" {
		t.remoteUfrag = info.ICEUfrag
	}
	return nil
}

// RemoteRestarts reports how many applied remote descriptions carried new
// ICE credentials.
func (t *Transport) RemoteRestarts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteRestarts
}

// Rollback returns the connection to stable, dropping an unanswered local
// offer. Without one it does nothing.
func (t *Transport) Rollback() error {
	pending := t.pc.PendingLocalDescription()
	if pending == nil || pending.Type != webrtc.SDPTypeOffer {
		return nil
	}
	return t.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback, SDP: pending.SDP})
}

func (t *Transport) AddCandidate(c call.Candidate) error {
	if c.Candidate == "" {
		// End-of-candidates marker.
		return nil
	}
	return t.pc.AddICECandidate(candidateToPion(c))
}

// SetMediaState tells the peer which local tracks are live.
func (t *Transport) SetMediaState(ms call.MediaState) error {
	return t.control.send(ms)
}

// Close releases the peer connection. It is safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	return errors.Join(t.pc.Close(), t.recorder.close())
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func descriptionFromPion(sd webrtc.SessionDescription) call.Description {
	return call.Description{Type: sd.Type.String(), SDP: sd.SDP}
}

func descriptionToPion(d call.Description) (webrtc.SessionDescription, error) {
	typ := webrtc.NewSDPType(d.Type)
	if typ == webrtc.SDPTypeUnknown {
		return webrtc.SessionDescription{}, fmt.Errorf("unknown description type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: typ, SDP: d.SDP}, nil
}

func candidateFromPion(c webrtc.ICECandidateInit) call.Candidate {
	return call.Candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func candidateToPion(c call.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
