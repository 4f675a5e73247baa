package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger is satisfied by *database.DB.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// ConnStatus is satisfied by *mqttclient.Client.
type ConnStatus interface {
	IsConnected() bool
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Model         string            `json:"model,omitempty"`
	Checks        map[string]string `json:"checks"`
	Queue         *QueueInfo        `json:"queue,omitempty"`
	Watch         *WatchInfo        `json:"watch,omitempty"`
}

// QueueInfo mirrors the transcription queue counters.
type QueueInfo struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// WatchInfo mirrors the directory watcher's state.
type WatchInfo struct {
	Status  string `json:"status"`
	Dir     string `json:"dir"`
	Queued  int64  `json:"queued"`
	Dropped int64  `json:"dropped"`
}

type HealthHandler struct {
	db        Pinger     // nil = not configured
	mqtt      ConnStatus // nil = not configured
	ffmpeg    func() error
	queue     func() QueueInfo
	watch     func() WatchInfo
	model     string
	version   string
	startTime time.Time
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	degrade := func() {
		if status == "healthy" {
			status = "degraded"
		}
	}

	// Database check
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.db.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks["database"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			degrade()
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	// Synthesis needs the converter binary
	if h.ffmpeg != nil {
		if err := h.ffmpeg(); err != nil {
			checks["ffmpeg"] = "missing"
			degrade()
		} else {
			checks["ffmpeg"] = "ok"
		}
	}

	var watch *WatchInfo
	if h.watch != nil {
		wi := h.watch()
		watch = &wi
		checks["watcher"] = wi.Status
		if wi.Status == "stopped" {
			degrade()
		}
	}

	if h.model != "" {
		checks["model"] = "ok"
	} else {
		checks["model"] = "not_loaded"
		degrade()
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Model:         h.model,
		Checks:        checks,
		Watch:         watch,
	}
	if h.queue != nil {
		q := h.queue()
		resp.Queue = &q
	}
	WriteJSON(w, httpStatus, resp)
}
