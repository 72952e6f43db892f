// Package api exposes the client state to the browser shell as JSON, a
// message/rfc822 preview and a server-sent event stream.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.io/infrasutra/outboxlab/internal/compose"
	"github.io/infrasutra/outboxlab/internal/config"
	"github.io/infrasutra/outboxlab/internal/dashboard"
	"github.io/infrasutra/outboxlab/internal/mailer"
	"github.io/infrasutra/outboxlab/internal/recipients"
	"github.io/infrasutra/outboxlab/internal/session"
	"github.io/infrasutra/outboxlab/internal/sse"
)

const (
	maxUploadBytes    = 10 << 20
	keepaliveInterval = 20 * time.Second
)

// Services are the stateful components the API drives.
type Services struct {
	Sessions  *session.Manager
	Composer  *compose.Composer
	Dashboard *dashboard.Synchronizer
	Hub       *sse.Hub
	Mailer    mailer.Sender
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	composer  *compose.Composer
	dashboard *dashboard.Synchronizer
	hub       *sse.Hub
	mailer    mailer.Sender
	logger    *slog.Logger
	now       func() time.Time
	handler   http.Handler
}

func NewServer(cfg config.Config, services Services, logger *slog.Logger) *Server {
	server := &Server{
		cfg:       cfg,
		sessions:  services.Sessions,
		composer:  services.Composer,
		dashboard: services.Dashboard,
		hub:       services.Hub,
		mailer:    services.Mailer,
		logger:    logger,
		now:       time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", server.handleHealth)

	if cfg.SetupRequired() {
		logger.Warn("GOOGLE_CLIENT_ID is not set, serving setup instructions only")
		r.HandleFunc("/*", server.handleSetup)
	} else {
		r.Route("/api", func(r chi.Router) {
			r.Get("/session", server.handleSession)
			r.Post("/session/credential", server.handleCredentialLogin)
			r.Post("/session/token", server.handleTokenLogin)
			r.Post("/logout", server.handleLogout)

			r.Get("/compose", server.handleCompose)
			r.Put("/compose", server.handleComposeUpdate)
			r.Post("/compose/open", server.handleComposeOpen)
			r.Post("/compose/close", server.handleComposeClose)
			r.Post("/compose/recipients", server.handleRecipients)
			r.Post("/compose/suggested/{index}", server.handleSuggestion)
			r.Post("/compose/submit", server.handleSubmit)
			r.Get("/compose/preview", server.handlePreview)
			r.Post("/compose/test-send", server.handleTestSend)

			r.Get("/dashboard", server.handleDashboard)
			r.Post("/dashboard/refresh", server.handleDashboardRefresh)
			r.Get("/stream", server.handleStream)
		})
	}

	server.handler = cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(r)
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondText(w, http.StatusOK, "ok")
}

func (s *Server) handleSetup(w http.ResponseWriter, _ *http.Request) {
	s.respondText(w, http.StatusServiceUnavailable, setupInstructions(s.cfg.APIURL))
}

func setupInstructions(apiURL string) string {
	return strings.Join([]string{
		"OutboxLab needs configuration before you can sign in.",
		"",
		"1. Create an OAuth client for a web application with your identity provider.",
		"2. Set GOOGLE_CLIENT_ID to its client identifier.",
		fmt.Sprintf("3. Set API_URL to the scheduling backend (currently %s).", apiURL),
		"4. Restart outboxlab.",
		"",
	}, "\n")
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	state := s.sessions.Snapshot()
	view := newSessionView(state)
	if current := r.URL.Query().Get("path"); current != "" {
		view.Redirect = state.RedirectPath(current)
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleCredentialLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Credential string `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	_, err := s.sessions.LoginWithCredential(r.Context(), payload.Credential)
	s.respondLogin(w, r, err)
}

func (s *Server) handleTokenLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	_, err := s.sessions.LoginWithAccessToken(r.Context(), payload.AccessToken)
	s.respondLogin(w, r, err)
}

// respondLogin never reports identity failures to the shell; the unchanged
// session state is the answer. A successful login loads the dashboard for the
// new identity before answering.
func (s *Server) respondLogin(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		s.dashboard.Refresh(r.Context())
	}
	view := newSessionView(s.sessions.Snapshot())
	if err == nil {
		view.Redirect = session.DashboardPath
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	target, err := s.sessions.Logout(r.Context())
	if err != nil {
		s.logger.Error("logout", "error", err)
		http.Error(w, "unable to clear session", http.StatusInternalServerError)
		return
	}
	s.composer.Reset()
	s.dashboard.Reset()
	s.respondJSON(w, http.StatusOK, map[string]string{"redirect": target})
}

func (s *Server) handleCompose(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.composeView(s.composer.Snapshot()))
}

func (s *Server) handleComposeUpdate(w http.ResponseWriter, r *http.Request) {
	var update compose.FormUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	s.respondJSON(w, http.StatusOK, s.composeView(s.composer.Update(update)))
}

func (s *Server) handleComposeOpen(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.composeView(s.composer.Open()))
}

func (s *Server) handleComposeClose(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.composeView(s.composer.Close()))
}

func (s *Server) handleRecipients(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !recipients.AcceptsFilename(header.Filename) {
		http.Error(w, "upload a .csv or .txt file", http.StatusBadRequest)
		return
	}
	if _, err := s.composer.LoadRecipients(r.Context(), file); err != nil {
		s.logger.Warn("read recipient list", "filename", header.Filename, "error", err)
		http.Error(w, "unable to read file", http.StatusBadRequest)
		return
	}
	s.respondJSON(w, http.StatusOK, s.composeView(s.composer.Snapshot()))
}

func (s *Server) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid index", http.StatusBadRequest)
		return
	}
	state, err := s.composer.ApplySuggestion(index)
	if errors.Is(err, compose.ErrUnknownSuggestion) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.respondJSON(w, http.StatusOK, s.composeView(state))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.composer.Submit(r.Context())
	state := s.composer.Snapshot()
	if err != nil {
		status := http.StatusBadGateway
		message := state.Error
		var validation *compose.ValidationError
		switch {
		case errors.As(err, &validation):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, compose.ErrSubmitInProgress):
			status = http.StatusConflict
			message = err.Error()
		}
		s.respondJSON(w, status, map[string]any{
			"error":   message,
			"compose": s.composeView(state),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"campaign": campaign,
		"compose":  s.composeView(state),
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	active, ok := s.sessions.Current()
	if !ok {
		http.Error(w, compose.ErrNotLoggedIn.Error(), http.StatusUnauthorized)
		return
	}
	raw, err := compose.Preview(active, s.composer.Snapshot().Form, "", s.now())
	if err != nil {
		s.respondPreviewError(w, err)
		return
	}
	w.Header().Set("Content-Type", "message/rfc822")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleTestSend(w http.ResponseWriter, r *http.Request) {
	active, ok := s.sessions.Current()
	if !ok {
		http.Error(w, compose.ErrNotLoggedIn.Error(), http.StatusUnauthorized)
		return
	}
	form := s.composer.Snapshot().Form
	raw, err := compose.Preview(active, form, active.Email, s.now())
	if err != nil {
		s.respondPreviewError(w, err)
		return
	}
	text, html, err := compose.RenderBody(form.Body)
	if err != nil {
		s.respondPreviewError(w, err)
		return
	}

	result, err := s.mailer.Send(r.Context(), mailer.Message{
		From:    active.Email,
		To:      []string{active.Email},
		Subject: strings.TrimSpace(form.Subject),
		Text:    text,
		HTML:    html,
		Raw:     raw,
	})
	if err != nil {
		http.Error(w, "unable to send test copy", http.StatusBadGateway)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) respondPreviewError(w http.ResponseWriter, err error) {
	if errors.Is(err, compose.ErrNoRecipients) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.logger.Error("render preview", "error", err)
	http.Error(w, "unable to render preview", http.StatusInternalServerError)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, newDashboardView(s.dashboard.Snapshot(), r.URL.Query()))
}

func (s *Server) handleDashboardRefresh(w http.ResponseWriter, r *http.Request) {
	s.dashboard.Refresh(r.Context())
	s.respondJSON(w, http.StatusOK, newDashboardView(s.dashboard.Snapshot(), r.URL.Query()))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	active, ok := s.sessions.Current()
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := s.hub.Subscribe(active.ID)
	defer unsubscribe()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(payload)
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondText(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}
