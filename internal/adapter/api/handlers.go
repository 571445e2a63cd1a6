package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"grist-assistant/internal/adapter/tool"
	"grist-assistant/internal/domain"
	"grist-assistant/internal/usecase"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages   []chatMessage `json:"messages"`
	DocumentID string        `json:"document_id"`
	TableID    string        `json:"current_table_id,omitempty"`
	TableName  string        `json:"current_table_name,omitempty"`
}

type toolCallEntry struct {
	ToolName   string          `json:"tool_name"`
	ToolInput  json.RawMessage `json:"tool_input"`
	ToolOutput string          `json:"tool_output"`
}

type chatResponse struct {
	Response             *string                     `json:"response"`
	SQLQuery             string                      `json:"sql_query,omitempty"`
	Model                string                      `json:"model"`
	ToolCalls            []toolCallEntry             `json:"tool_calls,omitempty"`
	Error                string                      `json:"error,omitempty"`
	RequiresConfirmation bool                        `json:"requires_confirmation"`
	ConfirmationRequest  *domain.ConfirmationRequest `json:"confirmation_request,omitempty"`
}

type confirmRequest struct {
	ConfirmationID string `json:"confirmation_id"`
	Approved       bool   `json:"approved"`
	Reason         string `json:"reason,omitempty"`
}

type confirmResponse struct {
	ConfirmationID string `json:"confirmation_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	Result         string `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// credential returns the caller's document credential, falling back to the
// server-wide key when the client sends none.
func (s *Server) credential(r *http.Request) string {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return key
	}
	return s.cfg.Server.APIKey
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errMsg := "invalid JSON: " + err.Error()
		if err.Error() == "http: request body too large" {
			errMsg = "request body too large (max 1MB)"
		}
		writeError(w, http.StatusBadRequest, "%s", errMsg)
		return
	}

	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != string(domain.RoleUser) || last.Content == "" {
		writeError(w, http.StatusBadRequest, "last message must be a non-empty user message")
		return
	}

	credential := s.credential(r)
	if credential == "" {
		writeError(w, http.StatusUnauthorized, "missing X-Api-Key")
		return
	}

	session := domain.DocumentSession{
		DocumentID:  req.DocumentID,
		AccessToken: credential,
		TableID:     req.TableID,
		TableName:   req.TableName,
	}

	history := make([]domain.Message, 0, len(req.Messages)-1)
	for _, m := range req.Messages[:len(req.Messages)-1] {
		role := domain.Role(m.Role)
		switch role {
		case domain.RoleUser, domain.RoleAssistant:
		default:
			// system and tool messages from past turns are not replayed
			continue
		}
		history = append(history, domain.Message{Role: role, Content: m.Content})
	}

	svc := s.factory(session)
	catalog := tool.BuildCatalog(svc, s.logger)
	agent := usecase.NewAgent(usecase.AgentDeps{
		LLM:           s.llm,
		Tools:         catalog,
		Previews:      usecase.NewPreviewBuilder(svc, s.logger),
		Confirmations: s.confirmations,
		Logger:        s.logger,
		Diagnostics:   s.diagnostics,
		Model:         s.cfg.LLM.Model,
		MaxTokens:     s.cfg.LLM.MaxTokens,
		Temperature:   s.cfg.LLM.Temperature,
		MaxIterations: s.cfg.Agent.MaxIterations,
	})

	result := agent.Run(r.Context(), session, history, last.Content)

	s.logger.Info("chat turn completed",
		"document", req.DocumentID,
		"success", result.Success,
		"iterations", result.Metrics.Iterations,
		"tool_calls", result.Metrics.ToolCallCount,
		"failed_tool_calls", result.Metrics.FailedToolCalls,
		"requires_confirmation", result.RequiresConfirmation,
	)

	resp := chatResponse{
		SQLQuery:             result.SQLQuery,
		Model:                result.Model,
		Error:                result.Error,
		RequiresConfirmation: result.RequiresConfirmation,
		ConfirmationRequest:  result.Confirmation,
	}
	if result.Output != "" {
		resp.Response = &result.Output
	}
	for _, step := range result.Steps {
		resp.ToolCalls = append(resp.ToolCalls, toolCallEntry{
			ToolName:   step.Call.Name,
			ToolInput:  step.Call.Arguments,
			ToolOutput: step.Result.Content,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}
	if req.ConfirmationID == "" {
		writeError(w, http.StatusBadRequest, "confirmation_id is required")
		return
	}

	if !req.Approved {
		if !s.confirmations.Reject(req.ConfirmationID) {
			writeJSON(w, http.StatusNotFound, confirmResponse{
				ConfirmationID: req.ConfirmationID,
				Status:         string(domain.ConfirmationExpired),
				Message:        "Confirmation not found or expired.",
			})
			return
		}
		s.logger.Info("confirmation rejected",
			"confirmation_id", req.ConfirmationID, "reason", req.Reason)
		writeJSON(w, http.StatusOK, confirmResponse{
			ConfirmationID: req.ConfirmationID,
			Status:         string(domain.ConfirmationRejected),
			Message:        "Operation rejected. Nothing was changed.",
		})
		return
	}

	pending, ok := s.confirmations.Approve(req.ConfirmationID)
	if !ok {
		writeJSON(w, http.StatusNotFound, confirmResponse{
			ConfirmationID: req.ConfirmationID,
			Status:         string(domain.ConfirmationExpired),
			Message:        "Confirmation not found or expired.",
		})
		return
	}

	credential := s.credential(r)
	if credential == "" {
		writeError(w, http.StatusUnauthorized, "missing X-Api-Key")
		return
	}

	result, err := s.executeApproved(r, pending, credential)
	if err != nil {
		// the approval itself stands; the execution outcome is reported as-is
		s.logger.Warn("approved operation failed",
			"confirmation_id", req.ConfirmationID, "tool", pending.ToolName, "error", err)
		writeJSON(w, http.StatusOK, confirmResponse{
			ConfirmationID: req.ConfirmationID,
			Status:         string(domain.ConfirmationApproved),
			Message:        fmt.Sprintf("Operation failed: %v", err),
		})
		return
	}

	s.logger.Info("confirmation approved and executed",
		"confirmation_id", req.ConfirmationID, "tool", pending.ToolName)
	writeJSON(w, http.StatusOK, confirmResponse{
		ConfirmationID: req.ConfirmationID,
		Status:         string(domain.ConfirmationApproved),
		Message:        "Operation executed.",
		Result:         result,
	})
}

// executeApproved replays the gated tool call against a fresh service bound
// to the approving caller's credential.
func (s *Server) executeApproved(r *http.Request, pending *domain.ConfirmationRequest, credential string) (string, error) {
	docID, _ := pending.ToolArgs["document_id"].(string)
	if docID == "" {
		return "", fmt.Errorf("confirmation lost its document binding")
	}

	args := make(map[string]any, len(pending.ToolArgs))
	for k, v := range pending.ToolArgs {
		if k == "document_id" {
			continue
		}
		args[k] = v
	}
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal tool args: %w", err)
	}

	session := domain.DocumentSession{DocumentID: docID, AccessToken: credential}
	svc := s.factory(session)
	catalog := tool.BuildCatalog(svc, s.logger)

	t, err := catalog.Get(pending.ToolName)
	if err != nil {
		return "", err
	}
	res, err := t.Execute(r.Context(), rawArgs)
	if err != nil {
		return "", err
	}
	if res.IsError {
		return "", fmt.Errorf("%s", res.Content)
	}
	return res.Content, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"pending_confirmations": s.confirmations.PendingCount(),
	})
}
