package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fablegate/fable/internal/engine"
	"github.com/fablegate/fable/internal/services"
	"github.com/fablegate/fable/pkg/state"
	"github.com/fablegate/fable/pkg/story"
)

// SessionHandler exposes the session engine over HTTP.
// Routes:
//
//	GET    /v1/sessions           - list sessions, most recent first
//	POST   /v1/sessions           - start a new session (streams when SSE requested)
//	GET    /v1/sessions/active    - the active session
//	POST   /v1/sessions/select    - switch the active session
//	POST   /v1/sessions/choice    - advance one turn (streams when SSE requested)
//	POST   /v1/sessions/navigate  - move the page pointer
//	POST   /v1/sessions/reset     - clear the active session
//	GET    /v1/sessions/export    - download the active session as a save document
//	POST   /v1/sessions/import    - restore a session from a save document
//	DELETE /v1/sessions/{id}      - delete a session
type SessionHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewSessionHandler(e *engine.Engine, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		engine: e,
		logger: logger,
	}
}

type StartSessionRequest struct {
	GameMode string `json:"gameMode"`
	Name     string `json:"name,omitempty"`
}

type SelectSessionRequest struct {
	ID string `json:"id"`
}

type ChoiceRequest struct {
	ChoiceID   string `json:"choiceId,omitempty"`
	CustomText string `json:"customText,omitempty"`
}

type NavigateRequest struct {
	Direction string `json:"direction"`      // next, prev, goto
	Page      int    `json:"page,omitempty"` // 1-based, goto only
}

// TurnResponse is the payload for a completed generation turn.
type TurnResponse struct {
	Session *state.Session   `json:"session"`
	Node    *story.StoryNode `json:"node"`
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/")

	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.handleList(w, r)
	case sub == "" && r.Method == http.MethodPost:
		h.handleStart(w, r)
	case sub == "active" && r.Method == http.MethodGet:
		h.handleActive(w, r)
	case sub == "select" && r.Method == http.MethodPost:
		h.handleSelect(w, r)
	case sub == "choice" && r.Method == http.MethodPost:
		h.handleChoice(w, r)
	case sub == "navigate" && r.Method == http.MethodPost:
		h.handleNavigate(w, r)
	case sub == "reset" && r.Method == http.MethodPost:
		h.handleReset(w, r)
	case sub == "export" && r.Method == http.MethodGet:
		h.handleExport(w, r)
	case sub == "import" && r.Method == http.MethodPost:
		h.handleImport(w, r)
	case sub != "" && r.Method == http.MethodDelete:
		h.handleDelete(w, r, sub)
	default:
		h.logger.Warn("Unknown sessions route", "method", r.Method, "path", r.URL.Path)
		writeError(w, h.logger, http.StatusNotFound, "Unknown route")
	}
}

func (h *SessionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.engine.Sessions())
}

func (h *SessionHandler) handleActive(w http.ResponseWriter, r *http.Request) {
	active := h.engine.Active()
	if active == nil {
		writeError(w, h.logger, http.StatusNotFound, "No active session")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, active)
}

func (h *SessionHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if req.GameMode == "" {
		writeError(w, h.logger, http.StatusBadRequest, "gameMode field is required")
		return
	}

	if wantsSSE(r) {
		stream := newSSEWriter(w, h.logger)
		s, err := h.engine.StartSession(r.Context(), req.GameMode, req.Name, stream.token)
		if err != nil {
			stream.fail(err)
			return
		}
		stream.done(TurnResponse{Session: s, Node: h.engine.NodeAtCurrentPage()})
		return
	}

	s, err := h.engine.StartSession(r.Context(), req.GameMode, req.Name, nil)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, TurnResponse{Session: s, Node: h.engine.NodeAtCurrentPage()})
}

func (h *SessionHandler) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if req.ID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "id field is required")
		return
	}
	s, err := h.engine.SelectSession(r.Context(), req.ID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, s)
}

func (h *SessionHandler) handleChoice(w http.ResponseWriter, r *http.Request) {
	var req ChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if req.ChoiceID == "" && req.CustomText == "" {
		writeError(w, h.logger, http.StatusBadRequest, "choiceId or customText is required")
		return
	}

	if wantsSSE(r) {
		stream := newSSEWriter(w, h.logger)
		node, err := h.engine.MakeChoice(r.Context(), req.ChoiceID, req.CustomText, stream.token)
		if err != nil {
			stream.fail(err)
			return
		}
		stream.done(TurnResponse{Session: h.engine.Active(), Node: node})
		return
	}

	node, err := h.engine.MakeChoice(r.Context(), req.ChoiceID, req.CustomText, nil)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, TurnResponse{Session: h.engine.Active(), Node: node})
}

func (h *SessionHandler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	var dir engine.Direction
	switch req.Direction {
	case "next":
		dir = engine.NavNext
	case "prev":
		dir = engine.NavPrev
	case "goto":
		dir = engine.NavGoto
	default:
		writeError(w, h.logger, http.StatusBadRequest, "direction must be next, prev, or goto")
		return
	}

	if err := h.engine.Navigate(r.Context(), dir, req.Page); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, TurnResponse{Session: h.engine.Active(), Node: h.engine.NodeAtCurrentPage()})
}

func (h *SessionHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResetSession(r.Context()); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, h.engine.Active())
}

func (h *SessionHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := h.engine.Export()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=session.json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("Failed to write export", "error", err)
	}
}

func (h *SessionHandler) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Failed to read request body")
		return
	}
	s, err := h.engine.Import(r.Context(), data)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, s)
}

func (h *SessionHandler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.engine.DeleteSession(r.Context(), id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.logger.Debug("Session deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// writeEngineError maps engine errors to HTTP statuses.
func (h *SessionHandler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrGenerationInProgress):
		writeError(w, h.logger, http.StatusConflict, "A generation is already in progress")
	case errors.Is(err, engine.ErrNoActiveSession):
		writeError(w, h.logger, http.StatusConflict, "No active session")
	case errors.Is(err, engine.ErrSessionNotFound):
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
	case errors.Is(err, engine.ErrUnknownChoice):
		writeError(w, h.logger, http.StatusBadRequest, "Unknown choice")
	case errors.Is(err, state.ErrInvalidImport):
		writeError(w, h.logger, http.StatusBadRequest, "Invalid save document: "+err.Error())
	default:
		if genErr := services.AsGenerationError(err); genErr != nil {
			h.logger.Error("Generation failed", "kind", genErr.Kind, "error", err)
			writeError(w, h.logger, http.StatusBadGateway, "Story generation failed")
			return
		}
		h.logger.Error("Session operation failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
	}
}

func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// sseWriter streams generation tokens as Server-Sent Events, closing the
// stream with either a done event carrying the finished turn or an error
// event.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *slog.Logger
}

func newSSEWriter(w http.ResponseWriter, logger *slog.Logger) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	return &sseWriter{w: w, flusher: flusher, logger: logger}
}

func (s *sseWriter) send(eventType string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("Failed to marshal SSE data", "error", err)
		return
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, dataJSON); err != nil {
		s.logger.Error("Failed to write SSE event", "error", err)
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *sseWriter) token(tok string) {
	s.send("token", map[string]string{"text": tok})
}

func (s *sseWriter) done(payload interface{}) {
	s.send("done", payload)
}

func (s *sseWriter) fail(err error) {
	s.send("error", map[string]string{"error": err.Error()})
}
