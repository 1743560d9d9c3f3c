// Package rtc implements the call transport on top of pion/webrtc.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/pion/interceptor"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
)

// ErrNoDeviceSupport is returned when device capture is requested from a
// binary built without the devices tag.
var ErrNoDeviceSupport = errors.New("built without camera and microphone support (rebuild with -tags devices)")

// deviceCapturer is set by the devices build.
var deviceCapturer func() (Capturer, error)

// NewCapturer picks the local media source the configuration asks for.
func NewCapturer(cfg *config.Config) (Capturer, error) {
	if cfg.Devices {
		if deviceCapturer == nil {
			return nil, ErrNoDeviceSupport
		}
		return deviceCapturer()
	}
	return FileCapturer{VideoPath: cfg.VideoFile, AudioPath: cfg.AudioFile}, nil
}

type Options struct {
	Config *config.Config
	// Capturer overrides the source chosen from Config.
	Capturer Capturer
	// Net replaces the host network, for tests on a virtual network.
	Net    *vnet.Net
	Logger *slog.Logger
}

// Provider acquires local media and builds peer transports for the call
// machine. One Provider serves every call of the process.
type Provider struct {
	api      *webrtc.API
	cfg      *config.Config
	capturer Capturer
}

var _ call.Adapter = (*Provider)(nil)

func NewProvider(opts Options) (*Provider, error) {
	if opts.Config == nil {
		return nil, errors.New("rtc: missing config")
	}
	capturer := opts.Capturer
	if capturer == nil {
		var err error
		if capturer, err = NewCapturer(opts.Config); err != nil {
			return nil, err
		}
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := capturer.Register(mediaEngine); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = newLoggerFactory(opts.Logger)
	se.SetICETimeouts(opts.Config.ICEDisconnectedTimeout, opts.Config.ICEFailedTimeout, iceKeepalive)
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}

	return &Provider{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(registry),
			webrtc.WithSettingEngine(se),
		),
		cfg:      opts.Config,
		capturer: capturer,
	}, nil
}

// AcquireLocalMedia starts the configured local sources.
func (p *Provider) AcquireLocalMedia(ctx context.Context) (call.Media, error) {
	lm, err := p.capturer.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", call.ErrResourceUnavailable, err)
	}
	return lm, nil
}

// CreateTransport builds a peer connection carrying media's tracks.
func (p *Provider) CreateTransport(media call.Media, l call.Listener) (call.Transport, error) {
	lm, ok := media.(*LocalMedia)
	if !ok {
		return nil, fmt.Errorf("%w: media of type %T", call.ErrResourceUnavailable, media)
	}

	pc, err := p.api.NewPeerConnection(p.configuration())
	if err != nil {
		return nil, fmt.Errorf("%w: create peer connection: %v", call.ErrResourceUnavailable, err)
	}

	t, err := newTransport(pc, lm, l, p.cfg.RecordDir)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("%w: %v", call.ErrResourceUnavailable, err)
	}
	return t, nil
}

// configuration centralizes ICE server configuration.
func (p *Provider) configuration() webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	if len(p.cfg.STUNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: p.cfg.STUNServers})
	}
	if turn := p.cfg.TURNServers(); turn != nil {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turn,
			Username:   p.cfg.TURNUser,
			Credential: p.cfg.TURNPass,
		})
	}

	// Relay-only keeps the host address private behind restrictive networks.
	policy := webrtc.ICETransportPolicyAll
	if p.cfg.RelayOnly() {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}
