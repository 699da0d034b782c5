package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RoomTableItem represents one open room in the listing.
type RoomTableItem struct {
	RoomID           string
	Title            string
	ParticipantCount int
	CreatedAt        time.Time
}

// RenderRoomTable prints the open-rooms listing.
func RenderRoomTable(items []RoomTableItem) {
	if len(items) == 0 {
		fmt.Println(MutedStyle.Render("No open rooms"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Room ID", "Title", "Participants", "Created"})

	for _, item := range items {
		t.AppendRow(table.Row{
			item.RoomID,
			item.Title,
			item.ParticipantCount,
			item.CreatedAt.Format("15:04:05"),
		})
	}

	t.Render()
}
