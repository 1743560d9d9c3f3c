package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BioHazard786/Warpcall/internal/utils"
	"github.com/google/uuid"
)

// Default configuration values
const (
	DefaultServer          = "ws://localhost:8000"
	DefaultListen          = ":8000"
	DefaultMetricsPath     = "/metrics"
	DefaultICEDisconnected = 5 * time.Second
	DefaultICEFailed       = 25 * time.Second
)

// DefaultSTUN mirrors the public Google pair most browsers ship with.
var DefaultSTUN = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

var (
	ErrInvalidServer    = errors.New("invalid server URL")
	ErrRelayWithoutTURN = errors.New("cannot force relay mode without TURN server configured")
)

// Config holds the client configuration.
type Config struct {
	// Server is the relay base URL (ws, wss, http or https).
	Server string

	// UserID is this process' participant id.
	UserID string

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	ICEDisconnectedTimeout time.Duration
	ICEFailedTimeout       time.Duration

	// Local media sources. Empty means placeholder samples.
	VideoFile string
	AudioFile string
	// Devices captures camera and microphone instead of files.
	Devices bool

	// RecordDir receives remote tracks when set.
	RecordDir string

	// MetricsAddr enables a Prometheus listener when set.
	MetricsAddr string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server      string
	UserID      string
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	ICEDisconnectedTimeout time.Duration
	ICEFailedTimeout       time.Duration

	VideoFile   string
	AudioFile   string
	Devices     bool
	RecordDir   string
	MetricsAddr string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		Server:      firstNonEmpty(opts.Server, os.Getenv("WARPCALL_SERVER"), DefaultServer),
		UserID:      firstNonEmpty(opts.UserID, os.Getenv("WARPCALL_USER")),
		TURNServer:  firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:    firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:    firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:  opts.ForceRelay,
		VideoFile:   opts.VideoFile,
		AudioFile:   opts.AudioFile,
		Devices:     opts.Devices,
		RecordDir:   firstNonEmpty(opts.RecordDir, os.Getenv("WARPCALL_RECORD_DIR")),
		MetricsAddr: firstNonEmpty(opts.MetricsAddr, os.Getenv("WARPCALL_METRICS")),

		ICEDisconnectedTimeout: opts.ICEDisconnectedTimeout,
		ICEFailedTimeout:       opts.ICEFailedTimeout,
	}

	switch {
	case len(opts.STUNServers) > 0:
		cfg.STUNServers = opts.STUNServers
	case os.Getenv("STUN_SERVER") != "":
		cfg.STUNServers = splitList(os.Getenv("STUN_SERVER"))
	default:
		cfg.STUNServers = append([]string(nil), DefaultSTUN...)
	}

	if cfg.UserID == "" {
		cfg.UserID = NewParticipantID()
	}
	if cfg.ICEDisconnectedTimeout <= 0 {
		cfg.ICEDisconnectedTimeout = DefaultICEDisconnected
	}
	if cfg.ICEFailedTimeout <= 0 {
		cfg.ICEFailedTimeout = DefaultICEFailed
	}

	if _, err := cfg.WebSocketURL(); err != nil {
		return nil, err
	}
	if cfg.ForceRelay && cfg.TURNServers() == nil {
		return nil, ErrRelayWithoutTURN
	}

	return cfg, nil
}

// NewParticipantID returns a fresh "user_" prefixed id.
func NewParticipantID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "user_" + id[:12]
}

// WebSocketURL returns the relay endpoint for this participant.
func (c *Config) WebSocketURL() (string, error) {
	u, err := url.Parse(c.Server)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidServer, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidServer, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidServer)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/" + url.PathEscape(c.UserID)
	return u.String(), nil
}

// TURNServers returns TURN server URLs if configured
func (c *Config) TURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Contains(c.TURNServer, "?") || hasPort(c.TURNServer) {
		return []string{c.TURNServer}
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// RelayOnly reports whether ICE should be restricted to TURN candidates.
func (c *Config) RelayOnly() bool {
	if c.TURNServers() == nil {
		return false
	}
	if c.ForceRelay {
		return true
	}
	if iface, ok := utils.RelayHint(); ok {
		slog.Debug("tunnel or carrier NAT interface found, relaying through TURN", "iface", iface)
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// hasPort reports whether a turn: URI already names a port.
func hasPort(uri string) bool {
	rest := uri
	if i := strings.Index(rest, ":"); i >= 0 {
		rest = rest[i+1:]
	}
	return strings.Contains(rest, ":")
}
