package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"grist-assistant/internal/domain"
)

// GetTableColumnsTool lists a table's columns with labels and types.
type GetTableColumnsTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewGetTableColumnsTool(svc domain.DocumentService, logger *slog.Logger) *GetTableColumnsTool {
	return &GetTableColumnsTool{svc: svc, logger: logger}
}

func (t *GetTableColumnsTool) Name() string { return "get_table_columns" }
func (t *GetTableColumnsTool) Description() string {
	return "List the columns of a table with their ids, labels, and types. Call this before reading or writing records."
}

func (t *GetTableColumnsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_id": {
					"type": "string",
					"description": "Table name or id (case-insensitive)"
				}
			},
			"required": ["table_id"]
		}`),
	}
}

type tableParams struct {
	TableID string `json:"table_id"`
}

func (t *GetTableColumnsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_table_columns", t.logger, params,
		func(ctx context.Context, span trace.Span, p tableParams) (any, error) {
			cols, err := t.svc.ListColumns(ctx, p.TableID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"columns": cols, "count": len(cols)}, nil
		})
}

// AddTableColumnTool adds a column to an existing table.
type AddTableColumnTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewAddTableColumnTool(svc domain.DocumentService, logger *slog.Logger) *AddTableColumnTool {
	return &AddTableColumnTool{svc: svc, logger: logger}
}

func (t *AddTableColumnTool) Name() string { return "add_table_column" }
func (t *AddTableColumnTool) Description() string {
	return "Add a column to an existing table."
}

func (t *AddTableColumnTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_id": {"type": "string", "description": "Table name or id"},
				"col_id": {"type": "string", "description": "Identifier for the new column"},
				"label": {"type": "string", "description": "Display label"},
				"col_type": {"type": "string", "description": "Column type, e.g. Text, Numeric, Int"}
			},
			"required": ["table_id", "col_id"]
		}`),
	}
}

type addColumnParams struct {
	TableID string `json:"table_id"`
	ColID   string `json:"col_id"`
	Label   string `json:"label"`
	ColType string `json:"col_type"`
}

func (t *AddTableColumnTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.add_table_column", t.logger, params,
		func(ctx context.Context, span trace.Span, p addColumnParams) (any, error) {
			id, err := t.svc.AddColumn(ctx, p.TableID, domain.ColumnSpec{
				ID:    p.ColID,
				Label: p.Label,
				Type:  p.ColType,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"col_id": id, "created": true}, nil
		})
}

// UpdateTableColumnTool modifies a column's label or type. Type changes are
// gated behind confirmation by the agent loop's policy.
type UpdateTableColumnTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewUpdateTableColumnTool(svc domain.DocumentService, logger *slog.Logger) *UpdateTableColumnTool {
	return &UpdateTableColumnTool{svc: svc, logger: logger}
}

func (t *UpdateTableColumnTool) Name() string { return "update_table_column" }
func (t *UpdateTableColumnTool) Description() string {
	return "Modify a column's label or type. Changing a type can lose data and requires user confirmation."
}

func (t *UpdateTableColumnTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_id": {"type": "string", "description": "Table name or id"},
				"col_id": {"type": "string", "description": "Column name or id"},
				"label": {"type": "string", "description": "New display label"},
				"col_type": {"type": "string", "description": "New column type"}
			},
			"required": ["table_id", "col_id"]
		}`),
	}
}

type updateColumnParams struct {
	TableID string `json:"table_id"`
	ColID   string `json:"col_id"`
	Label   string `json:"label"`
	ColType string `json:"col_type"`
}

func (t *UpdateTableColumnTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.update_table_column", t.logger, params,
		func(ctx context.Context, span trace.Span, p updateColumnParams) (any, error) {
			err := t.svc.UpdateColumn(ctx, p.TableID, p.ColID, domain.ColumnSpec{
				Label: p.Label,
				Type:  p.ColType,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"col_id": p.ColID, "updated": true}, nil
		})
}

// RemoveTableColumnTool deletes a column. Always confirmation-gated.
type RemoveTableColumnTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewRemoveTableColumnTool(svc domain.DocumentService, logger *slog.Logger) *RemoveTableColumnTool {
	return &RemoveTableColumnTool{svc: svc, logger: logger}
}

func (t *RemoveTableColumnTool) Name() string { return "remove_table_column" }
func (t *RemoveTableColumnTool) Description() string {
	return "Delete a column and all its data. Irreversible; requires user confirmation."
}

func (t *RemoveTableColumnTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_id": {"type": "string", "description": "Table name or id"},
				"col_id": {"type": "string", "description": "Column name or id"}
			},
			"required": ["table_id", "col_id"]
		}`),
	}
}

type removeColumnParams struct {
	TableID string `json:"table_id"`
	ColID   string `json:"col_id"`
}

func (t *RemoveTableColumnTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.remove_table_column", t.logger, params,
		func(ctx context.Context, span trace.Span, p removeColumnParams) (any, error) {
			if err := t.svc.DeleteColumn(ctx, p.TableID, p.ColID); err != nil {
				return nil, err
			}
			return map[string]any{"col_id": p.ColID, "deleted": true}, nil
		})
}
