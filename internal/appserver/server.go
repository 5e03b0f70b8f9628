package appserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/codeteam/internal/agent"
	"github.com/haasonsaas/codeteam/internal/apperr"
	"github.com/haasonsaas/codeteam/internal/auth"
	"github.com/haasonsaas/codeteam/internal/multiagent"
	"github.com/haasonsaas/codeteam/internal/sandbox"
	"github.com/haasonsaas/codeteam/internal/sessions"
	"github.com/haasonsaas/codeteam/pkg/models"
)

// Server is the HTTP/WS transport in front of an App.
type Server struct {
	app *App
	mux *http.ServeMux
}

// NewServer builds the routed mux for app.
func NewServer(app *App) *Server {
	s := &Server{app: app, mux: http.NewServeMux()}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/sessions", s.handleListSessions)
	protected.HandleFunc("POST /api/sessions", s.handleCreateSession)
	protected.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	protected.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	protected.HandleFunc("GET /api/sessions/{id}/messages", s.handleListMessages)
	protected.HandleFunc("POST /api/sessions/{id}/messages", s.handleSendMessage)
	protected.HandleFunc("GET /api/sessions/{id}/files", s.handleFileTree)
	protected.HandleFunc("GET /api/sessions/{id}/files/content", s.handleFileRead)
	protected.HandleFunc("PUT /api/sessions/{id}/files/content", s.handleFileWrite)
	protected.HandleFunc("POST /api/sessions/{id}/sandbox", s.handleSandboxLaunch)
	protected.HandleFunc("DELETE /api/sessions/{id}/sandbox", s.handleSandboxDestroy)
	protected.HandleFunc("POST /api/sessions/{id}/sandbox/exec", s.handleSandboxExec)
	protected.HandleFunc("DELETE /api/sandbox", s.handleSandboxDestroyAll)
	protected.HandleFunc("GET /ws/sessions/{id}", s.handleWebSocket)

	protectedHandler := auth.RequireAuth(s.app.Auth, s.app.Logger, protected)

	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.Handle("/", protectedHandler)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.StatusFor(err), map[string]string{"error": apperr.SafeMessage(err)})
}

func ownerID(r *http.Request) string {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		return "anonymous"
	}
	return user.ID
}

// --- auth ---

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.BadRequest("invalid request body"))
		return
	}
	user, token, err := s.app.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, apperr.Unauthorized("invalid credentials"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

// --- sessions ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.Sessions.List(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, apperr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	id := uuid.NewString()
	session := &models.Session{
		ID:        id,
		OwnerID:   ownerID(r),
		Title:     models.DefaultSessionTitle(id),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.app.Sessions.Create(r.Context(), session); err != nil {
		writeError(w, apperr.Internal(err))
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.app.Sessions.Get(r.Context(), r.PathValue("id"), ownerID(r))
	if err != nil {
		writeError(w, sessionErr(err))
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.app.Sessions.Get(r.Context(), id, ownerID(r)); err != nil {
		writeError(w, sessionErr(err))
		return
	}
	if err := s.app.Sessions.Delete(r.Context(), id); err != nil {
		writeError(w, apperr.Internal(err))
		return
	}
	_ = s.app.Sandbox.DestroySessionContainer(r.Context(), id)
	_ = s.app.State.ClearSessionState(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.app.Sessions.ListMessages(r.Context(), r.PathValue("id"), ownerID(r))
	if err != nil {
		writeError(w, sessionErr(err))
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func sessionErr(err error) error {
	switch err {
	case sessions.ErrSessionNotFound:
		return apperr.NotFound("session not found")
	case sessions.ErrForbidden:
		return apperr.Unauthorized("session belongs to a different owner")
	default:
		return apperr.Internal(err)
	}
}

// --- chat ---

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	owner := ownerID(r)

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.BadRequest("invalid request body"))
		return
	}

	session, err := s.app.Sessions.Get(r.Context(), sessionID, owner)
	if err != nil {
		writeError(w, sessionErr(err))
		return
	}

	userMsg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    models.SenderUser,
		Content:   req.Content,
		Timestamp: time.Now(),
	}
	if err := s.app.Sessions.AppendMessage(r.Context(), sessionID, userMsg); err != nil {
		writeError(w, apperr.Internal(err))
		return
	}

	var state multiagent.PersistentState
	_ = s.app.State.LoadState(sessionID, &state)

	history, err := s.app.Sessions.ListMessages(r.Context(), sessionID, owner)
	if err != nil {
		writeError(w, apperr.Internal(err))
		return
	}

	persist := func(sender models.SenderKind, role models.Role, content, messageID string, timestamp time.Time) models.Message {
		msg := models.Message{ID: messageID, SessionID: sessionID, Sender: sender, Role: role, Content: content, Timestamp: timestamp}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		_ = s.app.Sessions.AppendMessage(r.Context(), sessionID, &msg)
		return msg
	}

	result, newState, err := s.app.Orchestrator.Run(r.Context(), sessionID, owner, owner, state, history, s.app.Hub, persist)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindLLMProvider, "agent run failed", err))
		return
	}
	if err := s.app.State.PersistState(sessionID, newState); err != nil {
		s.app.Logger.Warn("persist orchestration state failed", "session_id", sessionID, "error", err)
	}

	session.UpdatedAt = time.Now()
	_ = s.app.Sessions.Update(r.Context(), session)

	writeJSON(w, http.StatusOK, result)
}

// --- files ---

func (s *Server) handleFileTree(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))
	tree, err := s.app.Files.ListTree(sessionID, r.URL.Query().Get("path"), depth, 0, false)
	if err != nil {
		writeError(w, fileErr(err))
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleFileRead(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	info, err := s.app.Files.ReadFile(sessionID, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, fileErr(err))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleFileWrite(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req struct {
		Path      string `json:"path"`
		Content   string `json:"content"`
		Overwrite bool   `json:"overwrite"`
		Append    bool   `json:"append"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.BadRequest("invalid request body"))
		return
	}
	info, err := s.app.Files.WriteFile(sessionID, req.Path, req.Content, req.Overwrite, req.Append)
	if err != nil {
		writeError(w, fileErr(err))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func fileErr(err error) error {
	switch err {
	case sandbox.ErrPathEscapesWorkspace, sandbox.ErrFileExists, sandbox.ErrDirectoryTooLarge:
		return apperr.BadRequest(err.Error())
	case sandbox.ErrFileNotFound:
		return apperr.NotFound(err.Error())
	default:
		return apperr.Internal(err)
	}
}

// --- sandbox ---

func (s *Server) handleSandboxLaunch(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	inst, err := s.app.Sandbox.EnsureSessionContainer(r.Context(), sessionID, ownerID(r))
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindSandbox, "failed to launch sandbox", err))
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleSandboxDestroy(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Sandbox.DestroySessionContainer(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, apperr.Wrap(apperr.KindSandbox, "failed to destroy sandbox", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSandboxDestroyAll(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Sandbox.DestroyAll(r.Context(), ownerID(r)); err != nil {
		writeError(w, apperr.Wrap(apperr.KindSandbox, "failed to destroy sandboxes", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSandboxExec(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req struct {
		Command        string `json:"command"`
		Cwd            string `json:"cwd"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.BadRequest("invalid request body"))
		return
	}
	timeout := sandbox.DefaultCommandTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	result, err := s.app.Commands.RunCommand(r.Context(), sessionID, ownerID(r), req.Cwd, req.Command, timeout)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindSandbox, "command failed", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- websocket ---

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Hub.ServeWS(w, r, r.PathValue("id")); err != nil {
		s.app.Logger.Warn("websocket session ended", "session_id", r.PathValue("id"), "error", err)
	}
}

var _ agent.EventSink = (*Hub)(nil)
