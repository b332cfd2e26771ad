package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"sensorpipe/internal/publish"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The UI is served from the same host; no cross-origin callers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	liveWriteTimeout = 2 * time.Second
	livePingInterval = 15 * time.Second
)

// LiveHandler streams conditioned sensor updates over a websocket. Each
// message is one publish.Update as JSON. Slow clients miss updates rather
// than stall the pipeline.
func LiveHandler(b *publish.Broadcaster) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b == nil {
			http.Error(w, "live stream unavailable", http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, ch := b.Subscribe(64)
		defer b.Unsubscribe(id)

		// Reader goroutine: detect client close.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(livePingInterval)
		defer ping.Stop()

		for {
			select {
			case <-done:
				return
			case <-r.Context().Done():
				return
			case u, ok := <-ch:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
				if err := conn.WriteJSON(u); err != nil {
					return
				}
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}
