package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"grist-assistant/internal/domain"
)

// fakeService is a scriptable DocumentService for loop and preview tests.
type fakeService struct {
	tables  []domain.Table
	columns map[string][]domain.Column
	records map[string][]domain.Record

	recordsByIDErr  error
	nonNullCounts   map[string]int
	nonNullCountErr error
	resolveWrongCol bool
}

func newFakeService() *fakeService {
	return &fakeService{
		tables: []domain.Table{{ID: "Tasks"}},
		columns: map[string][]domain.Column{
			"Tasks": {
				{ID: "Title", Label: "Title", Type: "Text"},
				{ID: "Due", Label: "Due date", Type: "DateTime:UTC"},
				{ID: "Done", Label: "Done", Type: "Bool"},
			},
		},
		records:       map[string][]domain.Record{},
		nonNullCounts: map[string]int{},
	}
}

func (f *fakeService) ListTables(ctx context.Context) ([]domain.Table, error) { return f.tables, nil }

func (f *fakeService) ListColumns(ctx context.Context, table string) ([]domain.Column, error) {
	cols, ok := f.columns[table]
	if !ok {
		return nil, domain.NewDomainError("fake.ListColumns", domain.ErrNotFound, table)
	}
	return cols, nil
}

func (f *fakeService) ResolveTable(ctx context.Context, name string) (string, error) {
	for _, t := range f.tables {
		if t.ID == name {
			return t.ID, nil
		}
	}
	return "", domain.NewDomainError("fake.ResolveTable", domain.ErrNotFound, name)
}

func (f *fakeService) ResolveColumn(ctx context.Context, table, name string) (domain.Column, error) {
	if f.resolveWrongCol {
		return domain.Column{}, domain.NewDomainError("fake.ResolveColumn", domain.ErrNotFound, name)
	}
	for _, c := range f.columns[table] {
		if c.ID == name {
			return c, nil
		}
	}
	return domain.Column{}, domain.NewDomainError("fake.ResolveColumn", domain.ErrNotFound, name)
}

func (f *fakeService) SampleRecords(ctx context.Context, table string, limit int) ([]domain.Record, error) {
	return f.records[table], nil
}

func (f *fakeService) RecordsByID(ctx context.Context, table string, ids []int) ([]domain.Record, error) {
	if f.recordsByIDErr != nil {
		return nil, f.recordsByIDErr
	}
	var out []domain.Record
	for _, rec := range f.records[table] {
		for _, id := range ids {
			if rec.ID == id {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

func (f *fakeService) NonNullCount(ctx context.Context, table, column string) (int, error) {
	if f.nonNullCountErr != nil {
		return 0, f.nonNullCountErr
	}
	return f.nonNullCounts[column], nil
}

func (f *fakeService) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	return []map[string]any{{"n": float64(1)}}, nil
}

func (f *fakeService) AddRecords(ctx context.Context, table string, records []map[string]any) ([]int, error) {
	return []int{1}, nil
}

func (f *fakeService) UpdateRecords(ctx context.Context, table string, ids []int, records []map[string]any) (int, error) {
	return len(ids), nil
}

func (f *fakeService) DeleteRecords(ctx context.Context, table string, ids []int) (int, error) {
	return len(ids), nil
}

func (f *fakeService) AddTable(ctx context.Context, table string, columns []domain.ColumnSpec) (string, error) {
	return table, nil
}

func (f *fakeService) AddColumn(ctx context.Context, table string, spec domain.ColumnSpec) (string, error) {
	return spec.ID, nil
}

func (f *fakeService) UpdateColumn(ctx context.Context, table, column string, spec domain.ColumnSpec) error {
	return nil
}

func (f *fakeService) DeleteColumn(ctx context.Context, table, column string) error { return nil }

func (f *fakeService) ListPages(ctx context.Context) ([]domain.Page, error) { return nil, nil }
func (f *fakeService) UpdatePage(ctx context.Context, pageID int, name string) error {
	return nil
}
func (f *fakeService) DeletePage(ctx context.Context, pageID int) error { return nil }
func (f *fakeService) ListWidgets(ctx context.Context, pageID int) ([]domain.Widget, error) {
	return nil, nil
}
func (f *fakeService) AddWidget(ctx context.Context, pageID int, spec domain.WidgetSpec) (int, error) {
	return 1, nil
}
func (f *fakeService) UpdateWidget(ctx context.Context, pageID, widgetID int, spec domain.WidgetSpec) error {
	return nil
}
func (f *fakeService) DeleteWidget(ctx context.Context, pageID, widgetID int) error { return nil }

// scriptedLLM replays a fixed sequence of responses.
type scriptedLLM struct {
	responses []domain.ChatResponse
	calls     int
	err       error
}

func (s *scriptedLLM) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	resp := s.responses[idx]
	return &resp, nil
}

func (s *scriptedLLM) Name() string { return "scripted" }

// countingTool records executions and returns a fixed result.
type countingTool struct {
	name     string
	executed int
	result   *domain.ToolResult
	err      error
}

func (c *countingTool) Name() string        { return c.name }
func (c *countingTool) Description() string { return "test tool" }
func (c *countingTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: c.name, Parameters: json.RawMessage(`{"type":"object"}`)}
}

func (c *countingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	c.executed++
	if c.err != nil {
		return nil, c.err
	}
	if c.result != nil {
		return c.result, nil
	}
	return &domain.ToolResult{Content: "ok"}, nil
}

// fakeExecutor is a minimal ToolExecutor over a name map.
type fakeExecutor struct {
	tools map[string]domain.Tool
}

func newFakeExecutor(tools ...domain.Tool) *fakeExecutor {
	m := make(map[string]domain.Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	return &fakeExecutor{tools: m}
}

func (f *fakeExecutor) Get(name string) (domain.Tool, error) {
	t, ok := f.tools[name]
	if !ok {
		return nil, domain.NewDomainError("fakeExecutor.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

func (f *fakeExecutor) Schemas() []domain.ToolSchema {
	var out []domain.ToolSchema
	for _, t := range f.tools {
		out = append(out, t.Schema())
	}
	return out
}

func assistantToolCall(name, args string) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{
			Role: domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{
				{ID: fmt.Sprintf("call_%s", name), Name: name, Arguments: json.RawMessage(args)},
			},
		},
		Model: "test-model",
	}
}

func assistantText(text string) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: text},
		Model:   "test-model",
	}
}
