// Package server exposes the chat service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/VivianFuVivianFu/Luma-sub002/internal/backend"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/chat"
)

// ChatHandler is the part of the chat service the HTTP layer needs.
type ChatHandler interface {
	Handle(ctx context.Context, req chat.Request) (chat.Response, error)
}

type Server struct {
	chat ChatHandler
	mux  *http.ServeMux
}

func New(chatSvc ChatHandler) *Server {
	s := &Server{chat: chatSvc, mux: http.NewServeMux()}
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type chatRequest struct {
	Message   string         `json:"message"`
	History   []backend.Turn `json:"history"`
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
}

type chatResponse struct {
	Reply    string `json:"reply"`
	Fallback bool   `json:"fallback"`
	Model    string `json:"model"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	resp, err := s.chat.Handle(r.Context(), chat.Request{
		Message:   req.Message,
		History:   req.History,
		UserID:    req.UserID,
		SessionID: sessionID,
	})
	if err != nil {
		// The conversation must keep flowing even when everything behind
		// it is broken: answer with a canned supportive reply instead of
		// surfacing a 5xx to the client.
		log.Printf("chat handler failed session=%s err=%v", sessionID, err)
		writeJSON(w, http.StatusOK, chatResponse{
			Reply:    backend.FallbackReply(req.Message),
			Fallback: true,
			Model:    backend.LocalModelName,
		})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Reply:    resp.Reply,
		Fallback: resp.Fallback,
		Model:    resp.Model,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response failed err=%v", err)
	}
}
