package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"grist-assistant/internal/domain"
)

func newTestAgent(llm domain.LLMProvider, tools domain.ToolExecutor, confirmations *ConfirmationRegistry, maxIter int) *Agent {
	return NewAgent(AgentDeps{
		LLM:           llm,
		Tools:         tools,
		Previews:      NewPreviewBuilder(newFakeService(), slog.Default()),
		Confirmations: confirmations,
		Logger:        slog.Default(),
		Model:         "test-model",
		MaxIterations: maxIter,
	})
}

func testSession() domain.DocumentSession {
	return domain.DocumentSession{DocumentID: "doc123", AccessToken: "key"}
}

func TestAgentFinalAnswerWithoutTools(t *testing.T) {
	llm := &scriptedLLM{responses: []domain.ChatResponse{assistantText("The table has 3 rows.")}}
	agent := newTestAgent(llm, newFakeExecutor(), newTestRegistry(time.Minute), 15)

	result := agent.Run(context.Background(), testSession(), nil, "how many rows?")

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Output != "The table has 3 rows." {
		t.Errorf("output = %q", result.Output)
	}
	if len(result.Steps) != 0 {
		t.Errorf("steps = %d, want 0", len(result.Steps))
	}
	if result.Metrics.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Metrics.Iterations)
	}
	if result.Model != "test-model" {
		t.Errorf("model = %q", result.Model)
	}
}

func TestAgentExecutesToolThenAnswers(t *testing.T) {
	tool := &countingTool{name: "get_tables", result: &domain.ToolResult{Content: `{"tables":["Tasks"]}`}}
	llm := &scriptedLLM{responses: []domain.ChatResponse{
		assistantToolCall("get_tables", `{}`),
		assistantText("You have one table: Tasks."),
	}}
	agent := newTestAgent(llm, newFakeExecutor(tool), newTestRegistry(time.Minute), 15)

	result := agent.Run(context.Background(), testSession(), nil, "what tables are there?")

	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if tool.executed != 1 {
		t.Errorf("tool executed %d times, want 1", tool.executed)
	}
	if len(result.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(result.Steps))
	}
	if result.Steps[0].Call.Name != "get_tables" {
		t.Errorf("step call = %q", result.Steps[0].Call.Name)
	}
	if result.Metrics.ToolCallCount != 1 {
		t.Errorf("tool_call_count = %d, want 1", result.Metrics.ToolCallCount)
	}
}

func TestAgentUnknownToolIsNonFatal(t *testing.T) {
	llm := &scriptedLLM{responses: []domain.ChatResponse{
		assistantToolCall("does_not_exist", `{}`),
		assistantText("done"),
	}}
	agent := newTestAgent(llm, newFakeExecutor(), newTestRegistry(time.Minute), 15)

	result := agent.Run(context.Background(), testSession(), nil, "hi")

	if !result.Success {
		t.Fatalf("unknown tool must not fail the turn: %q", result.Error)
	}
	if len(result.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(result.Steps))
	}
	step := result.Steps[0]
	if !step.Result.IsError {
		t.Error("unknown tool result must be an error")
	}
	if !strings.Contains(step.Result.Content, "Tool does_not_exist not found") {
		t.Errorf("result content = %q", step.Result.Content)
	}
}

func TestAgentMalformedCallSkipped(t *testing.T) {
	tool := &countingTool{name: "get_tables"}
	llm := &scriptedLLM{responses: []domain.ChatResponse{
		{
			Message: domain.Message{
				Role: domain.RoleAssistant,
				ToolCalls: []domain.ToolCall{
					{ID: "", Name: "", Arguments: json.RawMessage(`{}`)}, // malformed
					{ID: "call_1", Name: "get_tables", Arguments: json.RawMessage(`{}`)},
				},
			},
		},
		assistantText("done"),
	}}
	agent := newTestAgent(llm, newFakeExecutor(tool), newTestRegistry(time.Minute), 15)

	result := agent.Run(context.Background(), testSession(), nil, "hi")

	if !result.Success {
		t.Fatalf("malformed call must not fail the turn: %q", result.Error)
	}
	if result.Metrics.FailedToolCalls != 1 {
		t.Errorf("failed_tool_calls = %d, want 1", result.Metrics.FailedToolCalls)
	}
	if tool.executed != 1 {
		t.Errorf("valid sibling call executed %d times, want 1", tool.executed)
	}
	if len(result.Steps) != 1 {
		t.Errorf("steps = %d, want 1 (malformed call recorded nowhere)", len(result.Steps))
	}
}

func TestAgentConfirmationShortCircuitsBatch(t *testing.T) {
	removeTool := &countingTool{name: "remove_records"}
	siblingTool := &countingTool{name: "get_tables"}
	confirmations := newTestRegistry(time.Minute)

	llm := &scriptedLLM{responses: []domain.ChatResponse{
		{
			Message: domain.Message{
				Role: domain.RoleAssistant,
				ToolCalls: []domain.ToolCall{
					{ID: "call_1", Name: "remove_records", Arguments: json.RawMessage(`{"table_id":"Tasks","record_ids":[1,2]}`)},
					{ID: "call_2", Name: "get_tables", Arguments: json.RawMessage(`{}`)},
				},
			},
		},
	}}
	agent := newTestAgent(llm, newFakeExecutor(removeTool, siblingTool), confirmations, 15)

	result := agent.Run(context.Background(), testSession(), nil, "delete rows 1 and 2")

	if !result.RequiresConfirmation {
		t.Fatal("expected a pending confirmation")
	}
	if result.Confirmation == nil {
		t.Fatal("confirmation payload missing")
	}
	if removeTool.executed != 0 {
		t.Error("gated tool must not execute before approval")
	}
	if siblingTool.executed != 0 {
		t.Error("sibling calls in the same batch must be abandoned")
	}
	if llm.calls != 1 {
		t.Errorf("llm calls = %d, want 1 (loop abandoned)", llm.calls)
	}
	if confirmations.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1", confirmations.PendingCount())
	}
	if result.Confirmation.Preview.AffectedCount != 2 {
		t.Errorf("preview affected = %d, want 2", result.Confirmation.Preview.AffectedCount)
	}
	if got := result.Confirmation.ToolArgs["document_id"]; got != "doc123" {
		t.Errorf("tool args document_id = %v, want doc123", got)
	}
}

func TestAgentMaxIterations(t *testing.T) {
	tool := &countingTool{name: "get_tables"}
	llm := &scriptedLLM{responses: []domain.ChatResponse{assistantToolCall("get_tables", `{}`)}}
	agent := newTestAgent(llm, newFakeExecutor(tool), newTestRegistry(time.Minute), 4)

	result := agent.Run(context.Background(), testSession(), nil, "loop forever")

	if result.Success {
		t.Fatal("hitting the cap must not be a success")
	}
	if result.Error != "Max iterations reached" {
		t.Errorf("error = %q", result.Error)
	}
	if result.Output == "" {
		t.Error("expected the apology text")
	}
	if result.Metrics.Iterations != 4 {
		t.Errorf("iterations = %d, want 4", result.Metrics.Iterations)
	}
	if llm.calls != 4 {
		t.Errorf("llm calls = %d, want 4", llm.calls)
	}
	if len(result.Steps) != 4 {
		t.Errorf("steps = %d, want 4 (one executed call per iteration)", len(result.Steps))
	}
}

func TestAgentLLMFailureIsCaught(t *testing.T) {
	llm := &scriptedLLM{err: domain.ErrAuthInvalid}
	agent := newTestAgent(llm, newFakeExecutor(), newTestRegistry(time.Minute), 15)

	result := agent.Run(context.Background(), testSession(), nil, "hi")

	if result.Success {
		t.Fatal("llm failure must surface as a failed turn")
	}
	if result.Error == "" {
		t.Error("expected an error message")
	}
	if llm.calls != 1 {
		t.Errorf("auth errors are not retryable, calls = %d", llm.calls)
	}
}

func TestAgentExtractsSQLQuery(t *testing.T) {
	tool := &countingTool{name: "query_document", result: &domain.ToolResult{Content: `{"rows":[],"count":0}`}}
	llm := &scriptedLLM{responses: []domain.ChatResponse{
		assistantToolCall("query_document", `{"query":"SELECT COUNT(*) FROM Tasks"}`),
		assistantText("No tasks."),
	}}
	agent := newTestAgent(llm, newFakeExecutor(tool), newTestRegistry(time.Minute), 15)

	result := agent.Run(context.Background(), testSession(), nil, "count tasks")

	if result.SQLQuery != "SELECT COUNT(*) FROM Tasks" {
		t.Errorf("sql query = %q", result.SQLQuery)
	}
}

func TestAgentToolErrorFedBackToModel(t *testing.T) {
	tool := &countingTool{name: "get_tables", result: &domain.ToolResult{Content: "table not found", IsError: true}}
	llm := &scriptedLLM{responses: []domain.ChatResponse{
		assistantToolCall("get_tables", `{}`),
		assistantText("That table does not exist."),
	}}
	agent := newTestAgent(llm, newFakeExecutor(tool), newTestRegistry(time.Minute), 15)

	result := agent.Run(context.Background(), testSession(), nil, "hi")

	if !result.Success {
		t.Fatalf("tool error must not abort the turn: %q", result.Error)
	}
	if result.Metrics.FailedToolCalls != 1 {
		t.Errorf("failed_tool_calls = %d, want 1", result.Metrics.FailedToolCalls)
	}
	if llm.calls != 2 {
		t.Errorf("llm calls = %d, want 2 (model sees the error and recovers)", llm.calls)
	}
}
