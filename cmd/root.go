package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/voclara/roomkit/internal/ui"
	"github.com/voclara/roomkit/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "roomkit",
	Short:   "Therapy room client and signaling server for the Voclara teletherapy platform",
	Long: `RoomKit joins speech-therapy video rooms from the terminal: it connects to
the signaling server, announces your presence, and keeps a live, server-confirmed
view of who is in the room along with their mute and camera state. It also ships
the reference signaling server used in development and small deployments.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
