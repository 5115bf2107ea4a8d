package health

import (
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"

	"mercator-hq/keygate/pkg/config"
)

// VersionInfo contains build and version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// NewVersionInfo fills in the Go version of the running binary.
func NewVersionInfo(version, commit, buildTime string) VersionInfo {
	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
}

// LivenessHandler returns the liveness probe handler. It always answers 200
// while the process can serve HTTP.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusOK, c.CheckLiveness(r.Context()))
	}
}

// ReadinessHandler returns the readiness probe handler.
//
// Returns:
//   - 200 OK: every backend check passed
//   - 503 Service Unavailable: at least one check failed or timed out
//
// Example response (degraded):
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "keystore": {"status": "ok", "duration_ms": 0.4},
//	        "requestlog": {"status": "unhealthy", "message": "database is locked", "duration_ms": 5000}
//	    },
//	    "timestamp": "2026-03-02T10:30:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.CheckReadiness(r.Context())

		code := http.StatusOK
		if status.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, r, code, status)
	}
}

// VersionHandler returns a handler that reports build information.
func VersionHandler(info VersionInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusOK, info)
	}
}

// Mount registers the liveness, readiness and version endpoints on r.
// The probes accept GET and HEAD.
func (c *Checker) Mount(r chi.Router, cfg *config.HealthConfig, info VersionInfo) {
	liveness := c.LivenessHandler()
	readiness := c.ReadinessHandler()
	version := VersionHandler(info)

	r.Get(cfg.LivenessPath, liveness)
	r.Head(cfg.LivenessPath, liveness)
	r.Get(cfg.ReadinessPath, readiness)
	r.Head(cfg.ReadinessPath, readiness)
	r.Get("/version", version)
}

func writeStatus(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)

	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(body)
	}
}
