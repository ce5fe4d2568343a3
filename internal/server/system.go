package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// systemInfoResponse is returned by GET /api/v1/system/info.
type systemInfoResponse struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	BuildDate     string `json:"build_date"`
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	EventLogDir   string `json:"event_log_dir"`
	RetentionSecs int64  `json:"retention_seconds"`
}

// systemInfo handles GET /api/v1/system/info.
func (s *Server) systemInfo(w http.ResponseWriter, _ *http.Request) {
	resp := systemInfoResponse{
		Name:          s.cfg.Server.Name,
		Version:       Version,
		Commit:        Commit,
		BuildDate:     Date,
		State:         s.checker.State(),
		UptimeSeconds: int64(time.Since(s.svc.Overview().Global.ServerStartTime) / time.Second),
		EventLogDir:   s.eventLog.Root(),
		RetentionSecs: int64(s.cfg.Telemetry.RetentionDelay / time.Second),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
