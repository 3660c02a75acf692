package api

import (
	"bytes"
	"net/http"
	"time"

	"vigil/internal/dispatch"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/store"
	"vigil/internal/version"
)

// RestHandler serves the read-only JSON surface next to the websocket
// endpoints. All repository reads go through the same Store the engine uses.
type RestHandler struct {
	Store     store.Store
	Engine    *dispatch.Engine
	Metrics   *metrics.Registry
	Logger    *logging.Logger
	StartTime time.Time
}

type statusResponse struct {
	ServerTime    time.Time        `json:"server_time"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Connections   int              `json:"connections"`
	Agents        int              `json:"agents"`
	Missions      int              `json:"missions"`
	Version       string           `json:"version"`
	Major         int              `json:"major"`
	Minor         int              `json:"minor"`
	Patch         int              `json:"patch"`
	Built         string           `json:"built,omitempty"`
	GitCommit     string           `json:"git_commit,omitempty"`
	Metrics       metrics.Snapshot `json:"metrics"`
}

type agentsResponse struct {
	Agents []store.Agent `json:"agents"`
}

type missionsResponse struct {
	Missions []store.Mission `json:"missions"`
}

func (h *RestHandler) requireStore() *apiError {
	if h.Store == nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "repository unavailable"}
	}
	return nil
}

func (h *RestHandler) handleAgents(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	if err := h.requireStore(); err != nil {
		return err
	}

	agents, err := h.Store.GetAgents(r.Context())
	if err != nil {
		h.logError("list agents", err)
		return &apiError{Status: http.StatusInternalServerError, Message: "failed to list agents"}
	}
	if agents == nil {
		agents = []store.Agent{}
	}
	writeJSON(w, http.StatusOK, agentsResponse{Agents: agents})
	return nil
}

func (h *RestHandler) handleMissions(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	if err := h.requireStore(); err != nil {
		return err
	}

	missions, err := h.Store.GetMissions(r.Context())
	if err != nil {
		h.logError("list missions", err)
		return &apiError{Status: http.StatusInternalServerError, Message: "failed to list missions"}
	}
	if missions == nil {
		missions = []store.Mission{}
	}
	writeJSON(w, http.StatusOK, missionsResponse{Missions: missions})
	return nil
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	if err := h.requireStore(); err != nil {
		return err
	}

	agents, err := h.Store.GetAgents(r.Context())
	if err != nil {
		h.logError("count agents", err)
		return &apiError{Status: http.StatusInternalServerError, Message: "failed to read status"}
	}
	missions, err := h.Store.GetMissions(r.Context())
	if err != nil {
		h.logError("count missions", err)
		return &apiError{Status: http.StatusInternalServerError, Message: "failed to read status"}
	}

	versionInfo := version.GetVersionInfo()
	response := statusResponse{
		ServerTime:  time.Now().UTC(),
		Connections: h.Engine.Registry().Len(),
		Agents:      len(agents),
		Missions:    len(missions),
		Version:     versionInfo.Version,
		Major:       versionInfo.Major,
		Minor:       versionInfo.Minor,
		Patch:       versionInfo.Patch,
		Built:       versionInfo.Built,
		GitCommit:   versionInfo.GitCommit,
		Metrics:     h.Metrics.Snapshot(),
	}
	if !h.StartTime.IsZero() {
		response.UptimeSeconds = int64(time.Since(h.StartTime).Seconds())
	}

	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}

	var body bytes.Buffer
	if err := h.Metrics.WritePrometheus(&body); err != nil {
		h.logError("render metrics", err)
		return &apiError{Status: http.StatusInternalServerError, Message: "failed to render metrics"}
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body.Bytes())
	return nil
}

func (h *RestHandler) logError(message string, err error) {
	if h.Logger == nil || err == nil {
		return
	}
	h.Logger.Error(message, map[string]string{"error": err.Error()})
}
