package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/BioHazard786/Warpcall/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagLogLevel string
	flagLogFile  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpcall",
	Short: "Two-party audio/video calls over WebRTC, signaled through a tiny relay",
	Long: `Warpcall places direct audio/video calls between two participants of a room.
A small WebSocket relay only forwards call signaling; media flows peer to peer
over WebRTC, through TURN when a direct path is not available.

Run "warpcall relay" somewhere both sides can reach, then "warpcall join" on
each side with the same room id.`,
	Version: version.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error (env LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Write logs to this file instead of stderr")

	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(relayCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
