package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/agentcore/runtime/internal/agent"
	"github.com/agentcore/runtime/internal/config"
	"github.com/agentcore/runtime/internal/eventbus"
	"github.com/agentcore/runtime/internal/providers"
	"github.com/agentcore/runtime/pkg/models"
)

// HTTP surface (spec.md §6.1), grounded on internal/gateway/
// http_server.go's bare net/http.ServeMux wiring (no router library
// appears in the pack, so Go 1.22+'s method/wildcard mux patterns are
// the grounded stdlib choice here too) and on internal/gateway/
// helpers.go's writeJSON/writeJSONError idiom for consistent JSON error
// bodies.

type chatRequestBody struct {
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content"`
}

type chatResponseBody struct {
	SessionID string `json:"session_id"`
	StreamURL string `json:"stream_url"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiErrorBody struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, apiErrorBody{Error: apiErrorDetail{Message: message, Type: errType}})
}

// writeAPIError maps err onto spec.md §7's "user-visible failure" status
// table (401 Auth, 429 RateLimited with Retry-After, 400 client errors,
// 5xx otherwise) and writes the {error:{message,type,code?}} body.
func writeAPIError(w http.ResponseWriter, err error) {
	if errors.Is(err, agent.ErrSessionBusy) {
		writeJSONError(w, http.StatusConflict, "busy", err.Error())
		return
	}
	if pe, ok := providers.AsError(err); ok {
		switch pe.Kind {
		case providers.KindAuth:
			writeJSONError(w, http.StatusUnauthorized, "auth_error", pe.Message)
		case providers.KindRateLimited:
			if pe.RetryAfter > 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", pe.RetryAfter))
			}
			writeJSONError(w, http.StatusTooManyRequests, "rate_limited", pe.Message)
		case providers.KindConfig, providers.KindTransform:
			writeJSONError(w, http.StatusBadRequest, string(pe.Kind), pe.Message)
		case providers.KindAPI:
			if pe.Status >= 400 && pe.Status < 500 {
				writeJSONError(w, pe.Status, "api_error", pe.Message)
			} else {
				writeJSONError(w, http.StatusBadGateway, "api_error", pe.Message)
			}
		default:
			writeJSONError(w, http.StatusInternalServerError, string(pe.Kind), pe.Message)
		}
		return
	}
	writeJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat implements POST /chat: create the session if absent,
// enqueue one user message, return {session_id, stream_url}.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if body.Content == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}

	sess, err := s.resolveOrCreateSession(body.SessionID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	chunks, err := s.Runtime.Run(r.Context(), sess.ID, body.Content, agent.DefaultRunOptions())
	if err != nil {
		writeAPIError(w, err)
		return
	}

	// Route chunks through the bus so any /stream/{id} subscriber
	// observes them (spec.md §4.8).
	go func() {
		target := models.WebSocketReply(sess.ID)
		for chunk := range chunks {
			s.Router.Deliver(sess.ID, target, chunk)
		}
	}()

	writeJSON(w, http.StatusOK, chatResponseBody{
		SessionID: sess.ID,
		StreamURL: fmt.Sprintf("/stream/%s", sess.ID),
	})
}

func (s *Server) resolveOrCreateSession(sessionID string) (*models.Session, error) {
	if sessionID != "" {
		if sess, err := s.Sessions.Get(sessionID); err == nil {
			return sess, nil
		}
	}
	sess := &models.Session{ID: uuid.NewString(), Provider: s.Config.LLM.DefaultProvider}
	if err := s.Sessions.Create(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// handleStream implements GET /stream/{session_id}: an SSE stream of
// ChatChunk events for the active run, delivered via the event bus so
// multiple readers of the same session see the same tokens.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	sub, unsub := s.Bus.Subscribe(sessionID)
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if evt.Kind != models.EventChatResponse {
				continue
			}
			data, err := json.Marshal(evt.Chunk)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			if evt.Chunk.Kind == models.ChunkFinish {
				return
			}
		}
	}
}

// handleHistory implements GET /history/{session_id}.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if _, err := s.Sessions.Get(sessionID); err != nil {
		writeJSONError(w, http.StatusNotFound, "not_found", "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   s.Sessions.Messages(sessionID),
	})
}

// handleStop implements POST /stop/{session_id}: cancel the active run.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	s.Runtime.Cancel(sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// --- OpenAI-compatible bridge (spec.md §6.1, optional) ---

type openAICompletionsRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Stream bool `json:"stream"`
}

// handleOpenAICompletions implements POST /v1/chat/completions: maps an
// OpenAI-shaped request onto the internal agent loop and streams back
// an OpenAI-compatible SSE (`data: {...}` frames terminated by
// `data: [DONE]`), for clients written against the OpenAI SDK.
func (s *Server) handleOpenAICompletions(w http.ResponseWriter, r *http.Request) {
	var req openAICompletionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	var lastUser string
	for _, m := range req.Messages {
		if m.Role == "user" {
			lastUser = m.Content
		}
	}

	sess := &models.Session{ID: uuid.NewString(), Provider: s.Config.LLM.DefaultProvider, Model: req.Model}
	if err := s.Sessions.Create(sess); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	chunks, err := s.Runtime.Run(r.Context(), sess.ID, lastUser, agent.DefaultRunOptions())
	if err != nil {
		writeAPIError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	// This request holds its own chunk producer open for its whole
	// lifetime (unlike /chat + /stream, which are two separate
	// requests), so the Http reply target feeds an SSE sink bound to
	// this request id directly instead of round-tripping through the
	// bus (spec.md §4.8's "do NOT publish ChatResponse" rule for Http
	// targets).
	requestID := uuid.NewString()
	sink := make(eventbus.HTTPSink, 16)
	unregister := s.Router.RegisterHTTP(requestID, sink)
	defer unregister()

	go func() {
		defer close(sink)
		target := models.HTTPReply(requestID)
		for chunk := range chunks {
			s.Router.Deliver(sess.ID, target, chunk)
		}
	}()

	completionID := "chatcmpl-" + uuid.NewString()
	for chunk := range sink {
		frame, done := openAIFrame(completionID, req.Model, chunk)
		if frame != nil {
			data, _ := json.Marshal(frame)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
		if done {
			break
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func openAIFrame(id, model string, chunk models.Chunk) (any, bool) {
	type delta struct {
		Content string `json:"content,omitempty"`
	}
	type choice struct {
		Index        int     `json:"index"`
		Delta        delta   `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	}
	type frame struct {
		ID      string   `json:"id"`
		Object  string   `json:"object"`
		Model   string   `json:"model"`
		Choices []choice `json:"choices"`
	}

	switch chunk.Kind {
	case models.ChunkContent:
		return frame{ID: id, Object: "chat.completion.chunk", Model: model,
			Choices: []choice{{Delta: delta{Content: chunk.Text}}}}, false
	case models.ChunkFinish:
		reason := string(chunk.Reason)
		return frame{ID: id, Object: "chat.completion.chunk", Model: model,
			Choices: []choice{{FinishReason: &reason}}}, true
	case models.ChunkError:
		return nil, true
	default:
		return nil, false
	}
}

// --- Config CRUD (spec.md §6.1, masked + preserve-on-empty) ---

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.Mask(*s.Config))
}

func (s *Server) handleConfigSectionGet(w http.ResponseWriter, r *http.Request) {
	section := r.PathValue("section")
	masked := config.Mask(*s.Config)
	switch section {
	case "server":
		writeJSON(w, http.StatusOK, masked.Server)
	case "gateway":
		writeJSON(w, http.StatusOK, masked.Gateway)
	case "llm":
		writeJSON(w, http.StatusOK, masked.LLM)
	case "skills":
		writeJSON(w, http.StatusOK, masked.Skills)
	case "agent":
		writeJSON(w, http.StatusOK, masked.Agent)
	case "storage":
		writeJSON(w, http.StatusOK, masked.Storage)
	case "logging":
		writeJSON(w, http.StatusOK, masked.Logging)
	default:
		writeJSONError(w, http.StatusNotFound, "not_found", "unknown config section")
	}
}

// handleConfigReload re-reads the config file from s.ConfigPath,
// applying preserve-on-empty secret semantics against the currently
// running config, and publishes a ConfigUpdated event on the bus. The
// event carries no session id, so only subscribers of the empty session
// id receive it.
func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if s.ConfigPath == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "no config file path configured")
		return
	}
	next, err := config.Load(s.ConfigPath)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_config", err.Error())
		return
	}

	s.mu.Lock()
	preserveMaskedSecrets(s.Config, next)
	s.Config = next
	s.mu.Unlock()

	s.Bus.Publish(models.Event{Kind: models.EventConfigUpdated, Sections: []string{"*"}})
	writeJSON(w, http.StatusOK, config.Mask(*next))
}

// preserveMaskedSecrets applies spec.md §6.1's "unspecified or
// ***MASKED*** values do not overwrite" rule across the provider auth
// map when reloading from disk.
func preserveMaskedSecrets(current, next *config.Config) {
	if current == nil || next == nil {
		return
	}
	for id, p := range next.LLM.Providers {
		if existing, ok := current.LLM.Providers[id]; ok {
			next.LLM.Providers[id] = config.MergePreserveMasked(existing, p)
		}
	}
}
