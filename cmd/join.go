package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/voclara/roomkit/internal/config"
	"github.com/voclara/roomkit/internal/media"
	"github.com/voclara/roomkit/internal/presence"
	"github.com/voclara/roomkit/internal/room"
	"github.com/voclara/roomkit/internal/rtc"
	"github.com/voclara/roomkit/internal/signaling"
	"github.com/voclara/roomkit/internal/ui"
)

var (
	flagDomain   string
	flagInsecure bool
	flagToken    string
	flagUserID   string
	flagName     string
	flagRole     string
	flagNoMedia  bool
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id>",
	Aliases: []string{"j"},
	Short:   "Join a therapy room",
	Long: `Join a therapy room and show the live roster.

Examples:
  roomkit join 4f1c... --name "Dana" --role therapist
  roomkit join 4f1c... --domain localhost:8080 --insecure --role student`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(args[0])
	},
}

func joinRoom(roomID string) error {
	cfg, err := config.Load(config.Options{
		Domain:     flagDomain,
		Insecure:   flagInsecure,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
	})
	if err != nil {
		return err
	}

	token := flagToken
	if token == "" {
		token = os.Getenv("ROOMKIT_TOKEN")
	}

	role := presence.Role(flagRole)
	if role != presence.RoleTherapist && role != presence.RoleStudent {
		return fmt.Errorf("invalid role %q: must be therapist or student", flagRole)
	}

	identity := room.Identity{
		UserID:      flagUserID,
		DisplayName: flagName,
		Role:        role,
	}
	if identity.UserID == "" {
		identity.UserID = uuid.NewString()
	}

	reconciler := presence.NewReconciler(roomID)
	session := room.NewSession(room.Options{ServerURL: cfg.WebSocketURL})
	session.OnEvent(func(ev presence.Event) {
		// Stale updates are recovered locally; nothing to surface.
		_ = reconciler.Apply(ev)
	})

	controller := media.NewController(rtc.Open, session)
	defer controller.Release()

	stopSpinner := ui.RunConnectionSpinner("Connecting to " + cfg.Domain + "...")
	defer stopSpinner()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := session.Connect(ctx, roomID, room.Credentials{Token: token}); err != nil {
		stopSpinner()
		if errors.Is(err, room.ErrAuthenticationFailed) {
			return fmt.Errorf("authentication failed: sign in again and retry (%w)", err)
		}
		return err
	}
	defer session.AnnounceLeave()

	if err := session.AnnounceJoin(identity); err != nil {
		stopSpinner()
		return err
	}
	if err := session.WaitForRoster(ctx); err != nil {
		stopSpinner()
		return err
	}
	stopSpinner()

	if !flagNoMedia {
		if err := controller.Acquire(ctx, media.Constraints{Audio: true, Video: true}); err != nil {
			// Non-blocking: the user continues in audio/video-off mode.
			ui.PrintWarning("no capture device available, joining without media")
		}
	}

	peer, err := rtc.NewPeer(cfg)
	if err != nil {
		return err
	}
	defer peer.Close()

	peer.OnSignal(func(p signaling.SignalPayload) {
		_ = session.SendSignal(p)
	})
	session.OnSignal(func(p signaling.SignalPayload) {
		_ = peer.HandleSignal(p)
	})

	if tracks, ok := controller.Device().(*rtc.Tracks); ok && tracks != nil {
		if err := peer.Publish(tracks); err != nil {
			ui.PrintWarning("could not publish local tracks: " + err.Error())
		}
	}

	// The newcomer offers when someone is already in the room; the peer
	// already present answers.
	if len(reconciler.Snapshot().Roster) > 1 {
		if err := peer.StartOffer(); err != nil {
			ui.PrintWarning("media negotiation not started: " + err.Error())
		}
	}

	program := tea.NewProgram(ui.NewRosterModel(reconciler.Snapshot(), controller))
	unsubscribe := reconciler.Subscribe(func(state presence.RoomState) {
		program.Send(ui.StateMsg(state))
	})
	defer unsubscribe()

	if _, err := program.Run(); err != nil {
		return err
	}
	return nil
}

func init() {
	joinCmd.Flags().StringVar(&flagDomain, "domain", "", "signaling server domain")
	joinCmd.Flags().BoolVar(&flagInsecure, "insecure", false, "use ws/http instead of wss/https")
	joinCmd.Flags().StringVar(&flagToken, "token", "", "bearer token (or ROOMKIT_TOKEN)")
	joinCmd.Flags().StringVar(&flagUserID, "user-id", "", "stable user id (generated if empty)")
	joinCmd.Flags().StringVar(&flagName, "name", "guest", "display name")
	joinCmd.Flags().StringVar(&flagRole, "role", "student", "role: therapist or student")
	joinCmd.Flags().BoolVar(&flagNoMedia, "no-media", false, "join without acquiring capture devices")
	joinCmd.Flags().StringVar(&flagSTUN, "stun", "", "STUN server URL")
	joinCmd.Flags().StringVar(&flagTURN, "turn", "", "TURN server URL")
	joinCmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")

	rootCmd.AddCommand(joinCmd)
}
