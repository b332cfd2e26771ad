package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sensorpipe/internal/alarms"
	"sensorpipe/internal/pipeline"
	"sensorpipe/internal/publish"
)

// StatusSource reports pipeline health for /api/status.
type StatusSource interface {
	Snapshot() pipeline.Snapshot
}

type StatusResponse struct {
	State    string                    `json:"state"`
	Resets   int64                     `json:"resets"`
	Alarms   map[string]string         `json:"alarms"`
	Channels map[string]publish.Update `json:"channels"`
	NowUTC   string                    `json:"now_utc"`
}

type Deps struct {
	Status    StatusSource
	Alarms    *alarms.Registry
	Broadcast *publish.Broadcaster
	Settings  SettingsStore
	Logs      *LogBuffer

	// Metrics, when set, is mounted at /metrics (promhttp).
	Metrics http.Handler
}

func Handler(deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		resp := StatusResponse{
			State:    "unknown",
			Alarms:   map[string]string{},
			Channels: map[string]publish.Update{},
			NowUTC:   time.Now().UTC().Format(time.RFC3339Nano),
		}
		if deps.Status != nil {
			snap := deps.Status.Snapshot()
			resp.State = snap.State
			resp.Resets = snap.Resets
		}
		if deps.Alarms != nil {
			for name, sev := range deps.Alarms.Snapshot() {
				resp.Alarms[name] = sev.String()
			}
		}
		if deps.Broadcast != nil {
			for _, ch := range []string{"accel", "gyro", "mag", "auxmag", "baro"} {
				if u, ok := deps.Broadcast.Latest(ch); ok {
					resp.Channels[ch] = u
				}
			}
		}
		writeJSON(w, resp)
	})

	mux.Handle("/api/settings", deps.Settings.Handler())
	mux.Handle("/api/live", LiveHandler(deps.Broadcast))

	if deps.Logs != nil {
		mux.Handle("/api/logs", deps.Logs.Handler())
	}
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>sensorpipe</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>sensorpipe</h1>")
		_, _ = fmt.Fprintf(w, "<p>APIs: <a href=\"/api/status\">/api/status</a>, <a href=\"/api/settings\">/api/settings</a>, <a href=\"/api/logs\">/api/logs</a>, <a href=\"/metrics\">/metrics</a>; live stream at /api/live (websocket).</p>")
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

func Serve(ctx context.Context, listenAddr string, deps Deps) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
