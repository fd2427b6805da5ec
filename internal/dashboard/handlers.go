package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/ai"
	"github.com/railsplan/railsplan/internal/appcontext"
	"github.com/railsplan/railsplan/internal/modules"
)

type contextResponse struct {
	Stale   bool                `json:"stale"`
	Context *appcontext.Context `json:"context"`
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	ctx, err := appcontext.NewStore(s.cfg.AppRoot).Load()
	if errors.Is(err, appcontext.ErrNoContext) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("context has not been extracted, run railsplan index"))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	stale, err := s.cfg.Extractor.Stale(s.cfg.AppRoot)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, contextResponse{Stale: stale, Context: ctx})
}

func (s *Server) handleContextRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, err := s.cfg.Extractor.Refresh(s.cfg.AppRoot)
	if err != nil {
		s.hub.Publish(&Event{Type: EventRefreshFailed, Error: err.Error()})
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.hub.Publish(&Event{Type: EventContextRefreshed, Hash: ctx.Hash})
	writeJSON(w, http.StatusOK, contextResponse{Context: ctx})
}

type moduleView struct {
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	Category         string `json:"category,omitempty"`
	Version          string `json:"version,omitempty"`
	Installed        bool   `json:"installed"`
	InstalledVersion string `json:"installed_version,omitempty"`
	UpgradeAvailable bool   `json:"upgrade_available"`
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	templates, err := s.cfg.Installer.Templates()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	registry := s.cfg.Installer.Registry()

	views := make([]moduleView, 0, len(templates))
	seen := make(map[string]bool)
	for _, tmpl := range templates {
		view := moduleView{
			Name:        tmpl.Name,
			Description: tmpl.Description(),
			Category:    tmpl.Manifest.Category,
			Version:     tmpl.Version,
		}
		if entry, ok := registry.Get(tmpl.Name); ok {
			view.Installed = true
			view.InstalledVersion = entry.Version
			view.UpgradeAvailable = modules.CompareVersions(tmpl.Version, entry.Version) > 0
		}
		seen[tmpl.Name] = true
		views = append(views, view)
	}

	// installed modules whose template has been removed
	for _, name := range registry.Names() {
		if seen[name] {
			continue
		}
		entry, _ := registry.Get(name)
		views = append(views, moduleView{Name: name, Installed: true, InstalledVersion: entry.Version})
	}

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleModuleAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	action := chi.URLParam(r, "action")
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	noBackup, _ := strconv.ParseBool(r.URL.Query().Get("no_backup"))

	var (
		result interface{}
		err    error
	)
	switch action {
	case "install":
		result, err = s.cfg.Installer.Install(r.Context(), name, modules.InstallOptions{Force: force})
	case "remove":
		err = s.cfg.Installer.Remove(r.Context(), name)
		result = map[string]string{"module": name, "status": "removed"}
	case "upgrade":
		result, err = s.cfg.Installer.Upgrade(r.Context(), name, modules.UpgradeOptions{NoBackup: noBackup})
	default:
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown module action %q", action))
		return
	}

	if err != nil {
		s.writeError(w, moduleErrorStatus(err), err)
		return
	}

	s.logger.Info("module action", zap.String("module", name), zap.String("action", action))
	s.hub.Publish(&Event{Type: EventModuleChanged, Module: name, Action: action})
	writeJSON(w, http.StatusOK, result)
}

func moduleErrorStatus(err error) int {
	switch {
	case errors.Is(err, modules.ErrModuleNotFound), errors.Is(err, modules.ErrNotInstalled):
		return http.StatusNotFound
	case errors.Is(err, modules.ErrInvalidModuleName):
		return http.StatusBadRequest
	case errors.Is(err, modules.ErrAlreadyInstalled):
		return http.StatusConflict
	case errors.Is(err, modules.ErrMissingDependency):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) handleDoctor(w http.ResponseWriter, r *http.Request) {
	report, err := s.cfg.Doctor.Run(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ai.LogFilter{
		Session: q.Get("session"),
		Command: q.Get("command"),
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", limit))
			return
		}
		filter.Limit = n
	}

	entries, err := s.cfg.PromptLog.Read(filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []ai.PromptLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type chatRequest struct {
	Prompt string `json:"prompt"`
	Format string `json:"format"`
}

type chatResponse struct {
	Answer   string `json:"answer"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Handoff  string `json:"handoff,omitempty"`
	Session  string `json:"session"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Prompt == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("prompt required"))
		return
	}
	format, err := ai.ParseFormat(req.Format)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if s.cfg.NewAssistant == nil {
		s.writeError(w, http.StatusServiceUnavailable, ai.ErrNotConfigured)
		return
	}
	assistant, err := s.cfg.NewAssistant(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	resp, err := assistant.Chat(r.Context(), req.Prompt, format)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Answer:   resp.Text,
		Provider: string(resp.Provider),
		Model:    resp.Model,
		Handoff:  resp.Handoff,
		Session:  assistant.Session(),
	})
}
