package web

import (
	"encoding/json"
	"net/http"
	"time"
)

func Handler(status *Status, logs *LogBuffer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		b, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	// Plain health probe: 200 while every device passes its watchdog.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snap := status.Snapshot(time.Now().UTC())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !snap.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unhealthy\n"))
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.Handle("/api/about", AboutHandler())

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	return mux
}
