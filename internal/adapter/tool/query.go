package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"grist-assistant/internal/domain"
	"grist-assistant/internal/infra/tracer"
)

// QueryDocumentTool runs a read-only SQL query against the document.
// The service caps result rows to bound LLM context size.
type QueryDocumentTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewQueryDocumentTool(svc domain.DocumentService, logger *slog.Logger) *QueryDocumentTool {
	return &QueryDocumentTool{svc: svc, logger: logger}
}

func (t *QueryDocumentTool) Name() string { return "query_document" }
func (t *QueryDocumentTool) Description() string {
	return "Run a read-only SQL SELECT query against the document. Use exact table and column ids from get_tables and get_table_columns. Results are capped at 100 rows."
}

func (t *QueryDocumentTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "SQL SELECT statement"
				}
			},
			"required": ["query"]
		}`),
	}
}

type queryParams struct {
	Query string `json:"query"`
}

func (t *QueryDocumentTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.query_document", t.logger, params,
		func(ctx context.Context, span trace.Span, p queryParams) (any, error) {
			rows, err := t.svc.Query(ctx, p.Query)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.IntAttr("query.rows", len(rows)))
			return map[string]any{"rows": rows, "count": len(rows)}, nil
		})
}
