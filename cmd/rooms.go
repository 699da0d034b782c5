package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/voclara/roomkit/internal/config"
	"github.com/voclara/roomkit/internal/server"
	"github.com/voclara/roomkit/internal/ui"
)

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"ls"},
	Short:   "List open rooms on the signaling server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRooms()
	},
}

func listRooms() error {
	cfg, err := config.Load(config.Options{Domain: flagDomain, Insecure: flagInsecure})
	if err != nil {
		return err
	}

	token := flagToken
	if token == "" {
		token = os.Getenv("ROOMKIT_TOKEN")
	}

	req, err := http.NewRequest(http.MethodGet, cfg.APIBaseURL+"/rooms", nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("authentication failed: check your token")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("list rooms: unexpected status %s", resp.Status)
	}

	var summaries []server.RoomSummary
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		return fmt.Errorf("decode room list: %w", err)
	}

	items := make([]ui.RoomTableItem, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, ui.RoomTableItem{
			RoomID:           s.RoomID,
			Title:            s.Title,
			ParticipantCount: s.ParticipantCount,
			CreatedAt:        s.CreatedAt,
		})
	}
	ui.RenderRoomTable(items)
	return nil
}

func init() {
	roomsCmd.Flags().StringVar(&flagDomain, "domain", "", "signaling server domain")
	roomsCmd.Flags().BoolVar(&flagInsecure, "insecure", false, "use ws/http instead of wss/https")
	roomsCmd.Flags().StringVar(&flagToken, "token", "", "bearer token (or ROOMKIT_TOKEN)")

	rootCmd.AddCommand(roomsCmd)
}
