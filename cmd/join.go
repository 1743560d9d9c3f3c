package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/room"
	"github.com/BioHazard786/Warpcall/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	flagServer     string
	flagUser       string
	flagSTUN       []string
	flagTURN       string
	flagTURNUser   string
	flagTURNPass   string
	flagForceRelay bool
	flagVideo      string
	flagAudio      string
	flagDevices    bool
	flagRecord     string
	flagMetrics    string
	flagAutoAnswer bool
	flagCall       bool
	flagICEDisconn time.Duration
	flagICEFailed  time.Duration
)

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Join a room and place or answer a call",
	Long: `Join a room on the relay and wait for the other participant.

Without a room id a fresh four-word id is generated; share it with the
person you want to call.

Examples:
  warpcall join
  warpcall join ocean-tiger-maple --call
  warpcall join ocean-tiger-maple --auto-answer --record ./calls
  warpcall join --server wss://relay.example.com --video clip.ivf --audio voice.ogg`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := ""
		if len(args) == 1 {
			roomID = args[0]
		}
		return joinRoom(cmd.Context(), roomID)
	},
}

func init() {
	f := joinCmd.Flags()
	f.StringVarP(&flagServer, "server", "s", "", "Relay URL (env WARPCALL_SERVER)")
	f.StringVarP(&flagUser, "user", "u", "", "Participant id (env WARPCALL_USER, default random)")
	f.StringSliceVar(&flagSTUN, "stun", nil, "STUN server URLs (env STUN_SERVER)")
	f.StringVar(&flagTURN, "turn", "", "TURN server URL (env TURN_SERVER)")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	f.BoolVar(&flagForceRelay, "force-relay", false, "Only use TURN relay candidates")
	f.StringVar(&flagVideo, "video", "", "IVF file to send as video")
	f.StringVar(&flagAudio, "audio", "", "Ogg/Opus file to send as audio (default silence)")
	f.BoolVar(&flagDevices, "devices", false, "Capture camera and microphone (needs a devices build)")
	f.StringVar(&flagRecord, "record", "", "Directory to record the remote tracks into")
	f.StringVar(&flagMetrics, "metrics", "", "Serve Prometheus metrics on this address")
	f.BoolVar(&flagAutoAnswer, "auto-answer", false, "Accept incoming calls without asking")
	f.BoolVar(&flagCall, "call", false, "Call the other participant as soon as they are in the room")
	f.DurationVar(&flagICEDisconn, "ice-disconnected", config.DefaultICEDisconnected, "Time without ICE traffic before reporting disconnected")
	f.DurationVar(&flagICEFailed, "ice-failed", config.DefaultICEFailed, "Time without ICE traffic before reporting failed")
}

func joinRoom(ctx context.Context, roomID string) error {
	logs, err := setupLogging(defaultClientLog())
	if err != nil {
		return err
	}
	defer logs.Close()

	cfg, err := LoadConfig(config.Options{
		Server:                 flagServer,
		UserID:                 flagUser,
		STUNServers:            flagSTUN,
		TURNServer:             flagTURN,
		TURNUser:               flagTURNUser,
		TURNPass:               flagTURNPass,
		ForceRelay:             flagForceRelay,
		ICEDisconnectedTimeout: flagICEDisconn,
		ICEFailedTimeout:       flagICEFailed,
		VideoFile:              flagVideo,
		AudioFile:              flagAudio,
		Devices:                flagDevices,
		RecordDir:              flagRecord,
		MetricsAddr:            flagMetrics,
	})
	if err != nil {
		return err
	}

	if roomID == "" {
		roomID = room.GenerateID()
	}

	model := ui.NewCallModel(ui.RoomInfo{RoomID: roomID, UserID: cfg.UserID, Server: cfg.Server}, flagAutoAnswer)
	defer model.Close()

	sp := ui.NewConnectionSpinner("Connecting to relay...")
	sp.Start()
	conn, err := NewConnectionContext(ctx, cfg, model.Notify)
	if err != nil {
		sp.Error("Could not reach the relay")
		return err
	}
	defer conn.Close()
	sp.Success("Connected to " + cfg.Server)

	model.SetControls(conn.Machine)
	conn.Start(ctx)
	conn.Machine.Join(roomID)
	if flagCall {
		conn.Machine.Call()
	}

	program := tea.NewProgram(model, tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("ui: %w", err)
	}

	summaries := model.Summaries()
	if len(summaries) > 0 {
		fmt.Println()
		ui.RenderSummary(summaries[len(summaries)-1])
	}
	return nil
}
