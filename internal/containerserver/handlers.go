package containerserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/storage"
)

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/execute", s.requireAuth(s.handleExecute)).Methods(http.MethodPost)
	r.HandleFunc("/info", s.requireAuth(s.handleInfo)).Methods(http.MethodGet)
	r.HandleFunc("/reset", s.requireAuth(s.handleReset)).Methods(http.MethodPost)
	r.HandleFunc("/install_deps", s.requireAuth(s.handleInstallDeps)).Methods(http.MethodPost)
	r.HandleFunc("/uninstall_deps", s.requireAuth(s.handleUninstallDeps)).Methods(http.MethodPost)
	r.HandleFunc("/metrics", s.requireAuth(s.handleMetrics)).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func sessionIDFrom(r *http.Request) (id string, isNew bool) {
	id = r.Header.Get("X-Session-ID")
	if id == "" {
		return uuid.NewString(), true
	}
	return id, false
}

type executeRequest struct {
	Code      string `json:"code"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

type executeResponse struct {
	Value         any    `json:"value"`
	Stdout        string `json:"stdout"`
	Error         string `json:"error,omitempty"`
	ExecutionMS   int64  `json:"execution_time_ms"`
	SessionID     string `json:"session_id"`
}

// handleExecute implements POST /execute per spec §6: a missing
// X-Session-ID creates a fresh session and returns its id.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, _ := sessionIDFrom(r)

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sess, err := s.getOrCreateSession(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	result := sess.Run(r.Context(), req.Code, timeout)

	outcome := "ok"
	if result.Error != "" {
		outcome = "error"
	}
	s.metrics.observeExecution(outcome, result.ElapsedMS)

	writeJSON(w, http.StatusOK, executeResponse{
		Value:       result.Value,
		Stdout:      result.Stdout,
		Error:       result.Error,
		ExecutionMS: result.ElapsedMS,
		SessionID:   id,
	})
}

// handleHealth implements GET /health per spec §6: unauthenticated, and
// deliberately silent about session count (information-disclosure note).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

// handleInfo implements GET /info per spec §6.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	toolList := s.cfg.ToolsRegistry.ListTools()
	toolsOut := make([]map[string]any, 0, len(toolList))
	for _, t := range toolList {
		toolsOut = append(toolsOut, map[string]any{"name": t.Name, "description": t.Description})
	}

	skillList, err := s.cfg.SkillLibrary.List(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	skillsOut := make([]map[string]any, 0, len(skillList))
	for _, sk := range skillList {
		skillsOut = append(skillsOut, map[string]any{"name": sk.Name, "description": sk.Description})
	}

	access, err := s.cfg.Backend.SerializableAccess()
	artifactsPath := ""
	if err == nil {
		switch a := access.(type) {
		case storage.FileAccess:
			artifactsPath = a.ArtifactsDir
		case storage.KVAccess:
			artifactsPath = a.ArtifactsPrefix
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tools":          toolsOut,
		"skills":         skillsOut,
		"artifacts_path": artifactsPath,
	})
}

// handleReset implements POST /reset per spec §6.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, isNew := sessionIDFrom(r)
	if isNew {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no X-Session-ID supplied"})
		return
	}

	sess, ok := s.manager.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown session: " + id})
		return
	}
	if err := sess.Reset(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "session_id": id})
}

type depsRequest struct {
	Packages []string `json:"packages"`
}

// validatePackageNames rejects spec §6's flag-injection guard: no package
// name may start with '-'.
func validatePackageNames(pkgs []string) error {
	for _, p := range pkgs {
		if strings.HasPrefix(p, "-") {
			return errs.New(errs.InvalidName, "validatePackageNames", "package name must not start with '-': "+p)
		}
	}
	return nil
}

// handleInstallDeps implements POST /install_deps per spec §6.
func (s *Server) handleInstallDeps(w http.ResponseWriter, r *http.Request) {
	id, isNew := sessionIDFrom(r)
	if isNew {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no X-Session-ID supplied"})
		return
	}

	var req depsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := validatePackageNames(req.Packages); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sess, ok := s.manager.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown session: " + id})
		return
	}

	existing, err := sess.ListDeps(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	already := make(map[string]bool, len(existing))
	for _, d := range existing {
		already[d.Spec] = true
	}

	installed, alreadyPresent, failed := []string{}, []string{}, []string{}
	toInstall := make([]string, 0, len(req.Packages))
	for _, p := range req.Packages {
		if already[p] {
			alreadyPresent = append(alreadyPresent, p)
			continue
		}
		toInstall = append(toInstall, p)
	}

	if len(toInstall) > 0 {
		if err := sess.InstallDeps(r.Context(), toInstall); err != nil {
			failed = append(failed, toInstall...)
		} else {
			installed = append(installed, toInstall...)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"installed":       installed,
		"already_present": alreadyPresent,
		"failed":          failed,
	})
}

// handleUninstallDeps implements POST /uninstall_deps per spec §6.
func (s *Server) handleUninstallDeps(w http.ResponseWriter, r *http.Request) {
	id, isNew := sessionIDFrom(r)
	if isNew {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no X-Session-ID supplied"})
		return
	}

	var req depsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sess, ok := s.manager.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown session: " + id})
		return
	}

	existing, err := sess.ListDeps(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	present := make(map[string]bool, len(existing))
	for _, d := range existing {
		present[d.Spec] = true
	}

	removed, notFound, failed := []string{}, []string{}, []string{}
	toRemove := make([]string, 0, len(req.Packages))
	for _, p := range req.Packages {
		if !present[p] {
			notFound = append(notFound, p)
			continue
		}
		toRemove = append(toRemove, p)
	}

	if len(toRemove) > 0 {
		if err := sess.UninstallDeps(r.Context(), toRemove); err != nil {
			failed = append(failed, toRemove...)
		} else {
			removed = append(removed, toRemove...)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"removed":   removed,
		"not_found": notFound,
		"failed":    failed,
	})
}

// handleMetrics implements GET /metrics, the §6 expansion exposing the
// Prometheus registry of execution count/latency/active sessions.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
