package main

import (
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/kwv/gridbot/gridnav"
)

const maxCommandBytes = 4096

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *gridnav.StateTracker, controller *gridnav.Controller) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasPose   bool      `json:"hasPose"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasPose:   stateTracker.HasPose(),
		}
		writeJSON(w, "application/json", status)
	})

	mux.HandleFunc("/pose", func(w http.ResponseWriter, r *http.Request) {
		if !stateTracker.HasPose() {
			http.Error(w, "No pose available", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, "application/json", stateTracker.Snapshot())
	})

	mux.HandleFunc("/localization", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, "application/json", stateTracker.Snapshot().Localization)
	})

	mux.HandleFunc("/trace.geojson", func(w http.ResponseWriter, r *http.Request) {
		s := stateTracker.Snapshot()
		fc := gridnav.TraceFeatureCollection(stateTracker.Course(), stateTracker.Trace().Simplified(0.5), s.Pose)
		writeJSON(w, "application/geo+json", fc)
	})

	mux.HandleFunc("/course.svg", func(w http.ResponseWriter, r *http.Request) {
		if !hasScene(stateTracker) {
			http.Error(w, "Nothing to draw yet", http.StatusServiceUnavailable)
			return
		}
		s := stateTracker.Snapshot()
		renderer := gridnav.NewVectorRenderer(stateTracker.Course(), stateTracker.Trace().LineString(), s.Pose)

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w); err != nil {
			log.Printf("Error rendering course SVG: %v", err)
		}
	})

	// ?renderer=vector rasterizes the vector drawing instead of the pixel renderer
	mux.HandleFunc("/course.png", func(w http.ResponseWriter, r *http.Request) {
		if !hasScene(stateTracker) {
			http.Error(w, "Nothing to draw yet", http.StatusServiceUnavailable)
			return
		}
		s := stateTracker.Snapshot()
		trace := stateTracker.Trace().LineString()

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if r.URL.Query().Get("renderer") == "vector" {
			if err := gridnav.NewVectorRenderer(stateTracker.Course(), trace, s.Pose).RenderToPNG(w); err != nil {
				log.Printf("Error rendering course PNG: %v", err)
			}
			return
		}
		renderer := gridnav.NewRasterRenderer(stateTracker.Course(), trace, s.Pose)
		renderer.Label = fmt.Sprintf("%s  %s", s.Pose, s.Localization.Stage)
		if err := png.Encode(w, renderer.Render()); err != nil {
			log.Printf("Error encoding course PNG: %v", err)
		}
	})

	mux.HandleFunc("/command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "POST a JSON command", http.StatusMethodNotAllowed)
			return
		}
		if controller == nil {
			http.Error(w, "No controller running", http.StatusServiceUnavailable)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
		if err != nil {
			http.Error(w, "Error reading body", http.StatusBadRequest)
			return
		}
		cmd, err := gridnav.ParseCommand(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := controller.Submit(cmd); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		log.Printf("[HTTP] queued %s command", cmd.Command)
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}

// hasScene reports whether there is a course or a pose to draw
func hasScene(st *gridnav.StateTracker) bool {
	return st.Course() != nil || st.HasPose()
}

func writeJSON(w http.ResponseWriter, contentType string, v interface{}) {
	w.Header().Set("Content-Type", contentType)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding %s response: %v", contentType, err)
	}
}
