package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"MultiModel-Chat/internal/conversation"
	xerrors "MultiModel-Chat/internal/errors"
	"MultiModel-Chat/internal/llm"
	"MultiModel-Chat/internal/transcript"
)

// ChatRequest 是 POST /chat 的请求体。
type ChatRequest struct {
	Messages     []llm.Message  `json:"messages"`
	Endpoints    []llm.Endpoint `json:"endpoints"`
	AutoContinue bool           `json:"auto_continue"`
	MaxTurns     int            `json:"max_turns"`
}

// CodeExecutionRequest 是 POST /execute-code 的请求体，Timeout 单位为秒。
type CodeExecutionRequest struct {
	Code    string  `json:"code"`
	Timeout float64 `json:"timeout"`
}

// CodeExecutionResponse 是 POST /execute-code 的响应体。
type CodeExecutionResponse struct {
	Output string `json:"output"`
}

// EndpointSummary 是健康检查中展示的端点信息，不包含凭证。
type EndpointSummary struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// HealthResponse 是 GET /health 的响应体。
type HealthResponse struct {
	Status           string            `json:"status"`
	MissingEnvVars   []string          `json:"missing_env_vars"`
	DefaultEndpoints []EndpointSummary `json:"default_endpoints"`
}

// ConversationList 是对话历史列表的响应体。
type ConversationList struct {
	Conversations []transcript.Record `json:"conversations"`
}

type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Conversations == nil {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "conversation service is not configured"))
		return
	}

	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.cfg.Conversations.Run(r.Context(), conversation.Request{
		Messages:     req.Messages,
		Endpoints:    req.Endpoints,
		AutoContinue: req.AutoContinue,
		MaxTurns:     req.MaxTurns,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExecuteCode(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runner == nil {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "code runner is not configured"))
		return
	}

	var req CodeExecutionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		s.writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "code must not be empty"))
		return
	}

	timeout := s.cfg.CodeTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout * float64(time.Second))
	}
	output := s.cfg.Runner.Run(r.Context(), req.Code, timeout)
	writeJSON(w, http.StatusOK, CodeExecutionResponse{Output: output})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:           "healthy",
		MissingEnvVars:   append([]string{}, s.cfg.MissingEnv...),
		DefaultEndpoints: make([]EndpointSummary, 0, len(s.cfg.DefaultEndpoints)),
	}
	if len(resp.MissingEnvVars) > 0 {
		resp.Status = "warning"
	}
	for _, endpoint := range s.cfg.DefaultEndpoints {
		resp.DefaultEndpoints = append(resp.DefaultEndpoints, EndpointSummary{Name: endpoint.Name, Model: endpoint.ModelID})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Archive == nil {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "conversation archive is not configured"))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "limit must be a positive integer"))
			return
		}
		limit = min(parsed, 200)
	}

	records, err := s.cfg.Archive.ListLatest(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []transcript.Record{}
	}
	writeJSON(w, http.StatusOK, ConversationList{Conversations: records})
}

func (s *Server) handleConversationDetail(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Archive == nil {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "conversation archive is not configured"))
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "conversation id is required"))
		return
	}
	record, err := s.cfg.Archive.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid request body")
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := xerrors.StatusOf(err)
	attrs := []any{"code", xerrors.CodeOf(err), "status", status, "error", err}
	switch xerrors.SeverityOf(err) {
	case xerrors.SeverityCritical:
		s.logger.Error("request failed", attrs...)
	case xerrors.SeverityWarning:
		s.logger.Warn("request failed", attrs...)
	default:
		s.logger.Debug("request rejected", attrs...)
	}
	writeJSON(w, status, errorBody{Detail: xerrors.MessageOf(err), Code: string(xerrors.CodeOf(err))})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
