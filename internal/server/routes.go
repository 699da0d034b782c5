package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/voclara/roomkit/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Browser clients connect from the webapp origin; the CLI sends none.
	// Origin policy is enforced at the edge proxy, not here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Options carry the per-connection knobs from server config into the
// router and the websocket pumps.
type Options struct {
	Secret     string
	ReadLimit  int64
	PingPeriod time.Duration
}

// Router builds the HTTP surface: websocket signaling plus the minimal
// room REST used by the room-listing collaborator.
func Router(hub *Hub, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(requireBearer(opts.Secret))

		r.Get("/ws", serveWs(hub, opts))

		r.Post("/rooms", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Title string `json:"title"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Title == "" {
				http.Error(w, "title required", http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusCreated, hub.CreateRoom(body.Title))
		})

		r.Get("/rooms", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, hub.ListRooms())
		})
	})

	return r
}

// requireBearer rejects requests without the expected bearer token. An
// empty secret disables the check (local development).
func requireBearer(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" {
				token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
				if token == "" {
					token = r.URL.Query().Get("token")
				}
				if token != secret {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func serveWs(hub *Hub, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			Hub:        hub,
			Conn:       conn,
			ReadLimit:  opts.ReadLimit,
			PingPeriod: opts.PingPeriod,
			Send:       make(chan *signaling.Message, 256),
		}
		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encoding response")
	}
}
