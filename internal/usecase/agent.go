package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"grist-assistant/internal/domain"
	"grist-assistant/internal/infra/tracer"
)

// Recovery loop constants.
const (
	maxLLMRetries  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second

	// noToolStreakWarn is the number of consecutive turns without a single
	// tool call after which the agent logs a provider-compatibility warning.
	noToolStreakWarn = 3

	maxIterationsApology = "I'm sorry, I couldn't complete the request within the allowed number of steps. Please try rephrasing or splitting it into smaller requests."
)

// Diagnostics tracks cross-turn health signals. One instance is shared by
// every agent the composition root builds.
type Diagnostics struct {
	noToolStreak atomic.Int32
}

// NewDiagnostics creates an empty diagnostics tracker.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	LLM           domain.LLMProvider
	Tools         domain.ToolExecutor
	Previews      *PreviewBuilder
	Confirmations *ConfirmationRegistry
	Logger        *slog.Logger
	Diagnostics   *Diagnostics // optional, nil = no cross-turn tracking

	Model         string
	MaxTokens     int
	Temperature   float64
	MaxIterations int
}

// Agent orchestrates one chat turn: prompt assembly, the think-act loop,
// and the confirmation short circuit. The agent is the error boundary for
// the turn; Run never returns an error, only a result with Success unset.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 15
	}
	return &Agent{deps: deps}
}

// ToolStep is one executed (call, result) pair, in execution order.
type ToolStep struct {
	Call   domain.ToolCall   `json:"call"`
	Result domain.ToolResult `json:"result"`
}

// RunMetrics summarizes one turn for logging and the health surface.
type RunMetrics struct {
	Iterations      int          `json:"iterations"`
	ToolCallCount   int          `json:"tool_call_count"`
	FailedToolCalls int          `json:"failed_tool_calls"`
	Usage           domain.Usage `json:"usage"`
}

// RunResult is the complete outcome of one turn. Exactly one of the
// terminal states holds: a final answer (Success with Output), a pending
// confirmation (RequiresConfirmation with Confirmation), or a failure
// (Error set).
type RunResult struct {
	Output               string
	Success              bool
	Error                string
	RequiresConfirmation bool
	Confirmation         *domain.ConfirmationRequest
	Steps                []ToolStep
	SQLQuery             string
	Model                string
	Metrics              RunMetrics
}

// Run processes a single user message through the agent loop.
func (a *Agent) Run(ctx context.Context, session domain.DocumentSession, history []domain.Message, userMsg string) (result *RunResult) {
	ctx, span := tracer.StartSpan(ctx, "agent.run")
	defer span.End()

	result = &RunResult{Model: a.deps.Model}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("agent panic: %v", r)
			tracer.RecordError(span, err)
			a.deps.Logger.Error("agent panic recovered", "panic", r)
			result.Success = false
			result.Error = err.Error()
		}
		result.SQLQuery = extractSQLQuery(result.Steps)
	}()

	messages := make([]domain.Message, 0, len(history)+2)
	messages = append(messages, domain.Message{
		Role:      domain.RoleSystem,
		Content:   SystemPrompt(session, time.Now()),
		Timestamp: time.Now(),
	})
	messages = append(messages, history...)
	messages = append(messages, domain.Message{
		Role:      domain.RoleUser,
		Content:   userMsg,
		Timestamp: time.Now(),
	})

	schemas := a.deps.Tools.Schemas()

	for i := 0; i < a.deps.MaxIterations; i++ {
		result.Metrics.Iterations = i + 1
		span.AddEvent("agent.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		chatReq := domain.ChatRequest{
			Model:       a.deps.Model,
			Messages:    messages,
			Tools:       schemas,
			MaxTokens:   a.deps.MaxTokens,
			Temperature: a.deps.Temperature,
		}

		resp, llmErr := a.callLLMWithRetry(ctx, chatReq)
		if llmErr != nil {
			tracer.RecordError(span, llmErr)
			result.Success = false
			result.Error = llmErr.Error()
			return result
		}

		result.Metrics.Usage.PromptTokens += resp.Usage.PromptTokens
		result.Metrics.Usage.CompletionTokens += resp.Usage.CompletionTokens
		result.Metrics.Usage.TotalTokens += resp.Usage.TotalTokens
		if resp.Model != "" {
			result.Model = resp.Model
		}

		msg := resp.Message
		a.deps.Logger.Debug("llm response",
			"iteration", i,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		// No tool calls = final answer.
		if len(msg.ToolCalls) == 0 {
			a.trackNoToolTurn(len(result.Steps) == 0)
			tracer.SetOK(span)
			result.Success = true
			result.Output = msg.Content
			return result
		}
		a.trackNoToolTurn(false)

		messages = append(messages, msg)

		// Execute calls sequentially, in model order, so the transcript
		// replayed into the next LLM call is deterministic.
		for _, call := range msg.ToolCalls {
			if !call.Valid() {
				result.Metrics.FailedToolCalls++
				a.deps.Logger.Warn("malformed tool call skipped",
					"id", call.ID, "name", call.Name)
				continue
			}
			result.Metrics.ToolCallCount++

			if opType, confirm := ShouldConfirm(call); confirm {
				req, previewErr := a.queueConfirmation(ctx, session, call, opType)
				if previewErr != nil {
					// degraded: report the failure to the model and keep going
					result.Metrics.FailedToolCalls++
					errMsg := a.toolErrorMessage(call, previewErr.Error())
					messages = append(messages, errMsg)
					result.Steps = append(result.Steps, ToolStep{
						Call:   call,
						Result: domain.ToolResult{ToolCallID: call.ID, Content: previewErr.Error(), IsError: true},
					})
					continue
				}
				// remaining calls in this batch are intentionally dropped;
				// the model re-plans after the user decides
				tracer.SetOK(span)
				result.RequiresConfirmation = true
				result.Confirmation = req
				result.Output = confirmationMessage(req)
				result.Success = true
				return result
			}

			toolMsg, step := a.executeTool(ctx, call)
			if step.Result.IsError {
				result.Metrics.FailedToolCalls++
			}
			messages = append(messages, toolMsg)
			result.Steps = append(result.Steps, step)
		}
	}

	tracer.RecordError(span, domain.ErrMaxIterations)
	result.Success = false
	result.Output = maxIterationsApology
	result.Error = "Max iterations reached"
	return result
}

// queueConfirmation builds the preview and registers the pending request.
func (a *Agent) queueConfirmation(ctx context.Context, session domain.DocumentSession, call domain.ToolCall, opType domain.OperationType) (*domain.ConfirmationRequest, error) {
	preview, err := a.deps.Previews.Build(ctx, call, opType)
	if err != nil {
		a.deps.Logger.Warn("preview generation failed",
			"tool", call.Name, "operation", string(opType), "error", err)
		return nil, fmt.Errorf("could not generate preview for %s: %v", call.Name, err)
	}

	args := map[string]any{}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return nil, fmt.Errorf("could not parse arguments for %s: %v", call.Name, err)
	}
	// the confirmation outlives this request; carry the document binding
	args["document_id"] = session.DocumentID

	return a.deps.Confirmations.Create(call.Name, args, opType, preview), nil
}

// executeTool runs a single non-gated tool call. Tool failures come back as
// error results for the model, never as errors.
func (a *Agent) executeTool(ctx context.Context, call domain.ToolCall) (domain.Message, ToolStep) {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	var result domain.ToolResult
	tool, err := a.deps.Tools.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		result = domain.ToolResult{
			Content: fmt.Sprintf("Tool %s not found", call.Name),
			IsError: true,
		}
	} else {
		res, execErr := tool.Execute(ctx, call.Arguments)
		switch {
		case execErr != nil:
			tracer.RecordError(span, execErr)
			result = domain.ToolResult{Content: execErr.Error(), IsError: true}
		case res != nil:
			result = *res
		}
		if !result.IsError {
			tracer.SetOK(span)
		}
	}
	result.ToolCallID = call.ID

	msg := domain.Message{
		Role:      domain.RoleTool,
		Name:      call.Name,
		Content:   result.Content,
		ToolCalls: []domain.ToolCall{{ID: call.ID, Name: call.Name}},
		Timestamp: time.Now(),
	}
	return msg, ToolStep{Call: call, Result: result}
}

// toolErrorMessage wraps an error string as a tool-result message.
func (a *Agent) toolErrorMessage(call domain.ToolCall, text string) domain.Message {
	return domain.Message{
		Role:      domain.RoleTool,
		Name:      call.Name,
		Content:   text,
		ToolCalls: []domain.ToolCall{{ID: call.ID, Name: call.Name}},
		Timestamp: time.Now(),
	}
}

// callLLMWithRetry performs the LLM call, retrying transient failures with
// exponential backoff.
func (a *Agent) callLLMWithRetry(ctx context.Context, chatReq domain.ChatRequest) (*domain.ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt < maxLLMRetries; attempt++ {
		llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_call")
		resp, err := a.deps.LLM.Chat(llmCtx, chatReq)
		llmSpan.End()

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !domain.IsRetryableError(err) {
			return nil, lastErr
		}
		if attempt < maxLLMRetries-1 {
			delay := retryBackoff(attempt)
			a.deps.Logger.Info("retrying LLM call after error",
				"attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// trackNoToolTurn feeds the cross-turn diagnostic: several turns in a row
// where the model never touches a tool usually means the provider is not
// returning structured tool calls at all.
func (a *Agent) trackNoToolTurn(noTools bool) {
	if a.deps.Diagnostics == nil {
		return
	}
	if !noTools {
		a.deps.Diagnostics.noToolStreak.Store(0)
		return
	}
	streak := a.deps.Diagnostics.noToolStreak.Add(1)
	if streak >= noToolStreakWarn {
		a.deps.Logger.Warn("model returned no tool calls for several consecutive turns",
			"streak", streak, "model", a.deps.Model)
	}
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add 0-25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// extractSQLQuery pulls the SQL text from the first query_document call of
// the turn, so the UI can show the query alongside the answer.
func extractSQLQuery(steps []ToolStep) string {
	for _, step := range steps {
		if step.Call.Name != "query_document" {
			continue
		}
		var p struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(step.Call.Arguments, &p); err != nil {
			return ""
		}
		return p.Query
	}
	return ""
}

// confirmationMessage is the assistant-visible text shown while an
// operation waits for approval.
func confirmationMessage(req *domain.ConfirmationRequest) string {
	return fmt.Sprintf("%s\n\nThis operation requires your confirmation before it runs. Review the preview and approve or reject it.", req.Preview.Description)
}
