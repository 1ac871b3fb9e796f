package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/runner"
	"github.com/hupe1980/agentdesk/session"
)

type chatRequest struct {
	Messages       json.RawMessage `json:"messages"`
	ConversationID string          `json:"conversationId"`
}

type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		AddError(ctx, err)
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	transcript, ok := decodeMessages(body.Messages)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid messages format")
		return
	}

	chat, err := s.runner.Start(ctx, runner.Request{
		ConversationID: body.ConversationID,
		OwnerID:        s.userID(r),
		Messages:       transcript,
	})
	switch {
	case errors.Is(err, runner.ErrInvalidMessages):
		writeError(w, http.StatusBadRequest, "Invalid messages format")
		return
	case errors.Is(err, session.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	case err != nil:
		AddError(ctx, err)
		writeError(w, http.StatusInternalServerError, "Failed to start conversation")
		return
	}
	AddLogField(ctx, "conversation_id", chat.ConversationID)

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Conversation-Id", chat.ConversationID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	out, err := chat.Run(ctx, func(chunk string) error {
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		AddError(ctx, err)
		return
	}
	if out.Degraded {
		AddLogField(ctx, "degraded", "true")
	}
}

// decodeMessages accepts string content or an array of text parts.
func decodeMessages(raw json.RawMessage) (core.Transcript, bool) {
	var msgs []chatMessage
	if len(raw) == 0 || json.Unmarshal(raw, &msgs) != nil || msgs == nil {
		return nil, false
	}
	out := make(core.Transcript, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, core.Message{Role: core.Role(m.Role), Content: contentText(m.Content)})
	}
	return out, true
}

func contentText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var parts []contentPart
	if json.Unmarshal(raw, &parts) != nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == "text" || p.Type == "" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.conversations.ListConversations(r.Context(), s.userID(r))
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.conversations.CreateConversation(r.Context(), s.userID(r))
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to create conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.conversations.Messages(r.Context(), chi.URLParam(r, "id"))
	if s.conversationError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	err := s.conversations.DeleteConversation(r.Context(), chi.URLParam(r, "id"))
	if s.conversationError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	agents := s.opts.Agents
	if agents == nil {
		agents = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"agents": agents})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// conversationError writes the response for a failed conversation lookup
// and reports whether it did.
func (s *Server) conversationError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, session.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "Conversation not found")
	default:
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to load conversation")
	}
	return true
}

func (s *Server) userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-Id")); id != "" {
		return id
	}
	return s.opts.DefaultUserID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
