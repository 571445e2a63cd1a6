package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"grist-assistant/internal/domain"
)

// GetTablesTool lists the document's tables.
type GetTablesTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewGetTablesTool(svc domain.DocumentService, logger *slog.Logger) *GetTablesTool {
	return &GetTablesTool{svc: svc, logger: logger}
}

func (t *GetTablesTool) Name() string { return "get_tables" }
func (t *GetTablesTool) Description() string {
	return "List all tables in the document. Call this first to discover the document structure."
}

func (t *GetTablesTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	}
}

type getTablesParams struct{}

func (t *GetTablesTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_tables", t.logger, params,
		func(ctx context.Context, span trace.Span, p getTablesParams) (any, error) {
			tables, err := t.svc.ListTables(ctx)
			if err != nil {
				return nil, err
			}
			ids := make([]string, 0, len(tables))
			for _, table := range tables {
				ids = append(ids, table.ID)
			}
			return map[string]any{"tables": ids, "count": len(ids)}, nil
		})
}

// AddTableTool creates a new table with initial columns.
type AddTableTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewAddTableTool(svc domain.DocumentService, logger *slog.Logger) *AddTableTool {
	return &AddTableTool{svc: svc, logger: logger}
}

func (t *AddTableTool) Name() string { return "add_table" }
func (t *AddTableTool) Description() string {
	return "Create a new table with the given columns. Column types: Text, Numeric, Int, Bool, Date, DateTime, Choice, ChoiceList, Ref:<Table>, RefList:<Table>, Attachments."
}

func (t *AddTableTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_id": {
					"type": "string",
					"description": "Identifier for the new table (letters, digits, underscores)"
				},
				"columns": {
					"type": "array",
					"description": "Initial columns",
					"items": {
						"type": "object",
						"properties": {
							"id": {"type": "string", "description": "Column identifier"},
							"label": {"type": "string", "description": "Display label"},
							"type": {"type": "string", "description": "Column type"}
						},
						"required": ["id"]
					}
				}
			},
			"required": ["table_id", "columns"]
		}`),
	}
}

type addTableParams struct {
	TableID string              `json:"table_id"`
	Columns []domain.ColumnSpec `json:"columns"`
}

func (t *AddTableTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.add_table", t.logger, params,
		func(ctx context.Context, span trace.Span, p addTableParams) (any, error) {
			id, err := t.svc.AddTable(ctx, p.TableID, p.Columns)
			if err != nil {
				return nil, err
			}
			return map[string]any{"table_id": id, "created": true}, nil
		})
}
