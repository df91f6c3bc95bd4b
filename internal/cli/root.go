// Package cli is the headless call peer's command line.
package cli

import (
	"os"

	"github.com/dkeye/p2pcall/internal/ui"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "p2pcall",
	Short: "Headless WebRTC call peer",
	Long: `p2pcall joins a room on a p2pcall signaling server and holds a direct
WebRTC call with everyone else in it. Media comes from Ogg/Opus and IVF/VP8
files, or Opus silence when no audio file is given. Lines typed on stdin are
sent as chat.

Examples:
  p2pcall --room standup
  p2pcall --server ws://example.com:8080/api/ws/signal --mode video --video clip.ivf`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd)
	},
}

func init() {
	f := rootCmd.Flags()
	f.String("server", "", "signaling server WebSocket URL")
	f.String("room", "", "room to join")
	f.String("mode", "", "call mode: audio or video")
	f.String("audio", "", "Ogg/Opus file to send (silence when empty)")
	f.String("video", "", "IVF/VP8 file to send in video calls")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.StringSlice("ice", nil, "STUN server URLs")
}

func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
