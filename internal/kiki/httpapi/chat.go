package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bdobrica/Kiki/common/trace"
	"github.com/bdobrica/Kiki/internal/kiki/memory"
	"github.com/bdobrica/Kiki/internal/kiki/orchestrator"
)

type chatRequest struct {
	Message        string `json:"message"`
	UseRAG         *bool  `json:"use_rag"`
	IncludeSources *bool  `json:"include_sources"`
	UseMemory      *bool  `json:"use_memory"`
}

type chatResponse struct {
	Response string                  `json:"response"`
	Error    *string                 `json:"error"`
	Outcome  string                  `json:"outcome,omitempty"`
	Mode     string                  `json:"mode,omitempty"`
	Sources  []orchestrator.Citation `json:"sources,omitempty"`
	TraceID  string                  `json:"trace_id,omitempty"`
}

func errorText(s string) *string { return &s }

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, chatSchema, &req); err != nil {
		msg := err.Error()
		if errors.Is(err, errEmptyBody) {
			msg = "Empty message"
		}
		respondJSON(w, http.StatusBadRequest, chatResponse{Error: errorText(msg)})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondJSON(w, http.StatusBadRequest, chatResponse{Error: errorText("Empty message")})
		return
	}

	mode := memory.ModeChat
	if boolOr(req.UseRAG, true) {
		mode = memory.ModeRAG
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	ans, err := s.asker.Ask(ctx, orchestrator.Request{
		Question:       req.Message,
		Mode:           mode,
		IncludeSources: boolOr(req.IncludeSources, true),
		UseMemory:      boolOr(req.UseMemory, true),
	})
	if err != nil {
		status, msg := statusFor(err)
		log := trace.Logger(ctx, s.logger)
		if status >= http.StatusInternalServerError {
			log.Error("http: chat failed", "mode", string(mode), "err", err)
		} else {
			log.Info("http: chat rejected", "mode", string(mode), "err", err)
		}
		respondJSON(w, status, chatResponse{Error: errorText(msg), TraceID: trace.FromContext(ctx)})
		return
	}

	respondJSON(w, http.StatusOK, chatResponse{
		Response: ans.Text,
		Outcome:  string(ans.Outcome),
		Mode:     string(ans.Mode),
		Sources:  ans.Citations,
		TraceID:  ans.TraceID,
	})
}

type clearRequest struct {
	Mode *string `json:"mode"`
}

type clearResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := decodeJSON(r, clearSchema, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondJSON(w, http.StatusBadRequest, clearResponse{Error: err.Error()})
		return
	}

	var mode memory.Mode
	if req.Mode != nil && strings.TrimSpace(*req.Mode) != "" {
		m, err := memory.ParseMode(*req.Mode)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, clearResponse{Error: err.Error()})
			return
		}
		mode = m
	}

	if err := s.modes.Reset(mode); err != nil {
		trace.Logger(r.Context(), s.logger).Error("http: clear failed", "err", err)
		respondJSON(w, http.StatusInternalServerError, clearResponse{Error: "failed to clear history"})
		return
	}
	s.publishMemory()

	msg := "All conversation history cleared"
	if mode != "" {
		msg = strings.ToUpper(string(mode)) + " history cleared"
	}
	trace.Logger(r.Context(), s.logger).Info("http: history cleared", "mode", string(mode))
	respondJSON(w, http.StatusOK, clearResponse{Success: true, Message: msg})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "mode")
	if param == "" {
		respondJSON(w, http.StatusOK, map[string]any{"modes": s.modes.Stats()})
		return
	}
	mode, err := memory.ParseMode(param)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_mode", err.Error())
		return
	}
	store, err := s.modes.Get(mode)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_mode", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, store.Stats())
}

func (s *Server) publishMemory() {
	if s.metrics == nil {
		return
	}
	for _, st := range s.modes.Stats() {
		s.metrics.ObserveMemory(string(st.Mode), st.TotalTokens, st.Turns)
	}
}
