package relay

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Browsers on any origin may use the relay.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs upgrades /ws/{user_id} requests and attaches them to hub.
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("user_id")
		if userID == "" {
			http.Error(w, "missing user id", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "err", err)
			return
		}

		client := newClient(hub, conn, userID)
		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// Routes returns the relay's HTTP handler. metrics may be nil.
func Routes(hub *Hub, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /ws/{user_id}", ServeWs(hub))
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}
