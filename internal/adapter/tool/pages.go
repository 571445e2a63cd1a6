package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"grist-assistant/internal/domain"
)

// GetPagesTool lists the document's pages.
type GetPagesTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewGetPagesTool(svc domain.DocumentService, logger *slog.Logger) *GetPagesTool {
	return &GetPagesTool{svc: svc, logger: logger}
}

func (t *GetPagesTool) Name() string { return "get_pages" }
func (t *GetPagesTool) Description() string {
	return "List the document's pages with their ids and names."
}

func (t *GetPagesTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	}
}

type getPagesParams struct{}

func (t *GetPagesTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_pages", t.logger, params,
		func(ctx context.Context, span trace.Span, p getPagesParams) (any, error) {
			pages, err := t.svc.ListPages(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"pages": pages, "count": len(pages)}, nil
		})
}

// UpdatePageTool renames a page.
type UpdatePageTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewUpdatePageTool(svc domain.DocumentService, logger *slog.Logger) *UpdatePageTool {
	return &UpdatePageTool{svc: svc, logger: logger}
}

func (t *UpdatePageTool) Name() string { return "update_page" }
func (t *UpdatePageTool) Description() string {
	return "Rename a page."
}

func (t *UpdatePageTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"page_id": {"type": "integer", "description": "Page id from get_pages"},
				"name": {"type": "string", "description": "New page name"}
			},
			"required": ["page_id", "name"]
		}`),
	}
}

type updatePageParams struct {
	PageID int    `json:"page_id"`
	Name   string `json:"name"`
}

func (t *UpdatePageTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.update_page", t.logger, params,
		func(ctx context.Context, span trace.Span, p updatePageParams) (any, error) {
			if err := t.svc.UpdatePage(ctx, p.PageID, p.Name); err != nil {
				return nil, err
			}
			return map[string]any{"page_id": p.PageID, "updated": true}, nil
		})
}

// RemovePageTool deletes a page.
type RemovePageTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewRemovePageTool(svc domain.DocumentService, logger *slog.Logger) *RemovePageTool {
	return &RemovePageTool{svc: svc, logger: logger}
}

func (t *RemovePageTool) Name() string { return "remove_page" }
func (t *RemovePageTool) Description() string {
	return "Delete a page. The underlying tables are not deleted."
}

func (t *RemovePageTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"page_id": {"type": "integer", "description": "Page id from get_pages"}
			},
			"required": ["page_id"]
		}`),
	}
}

type removePageParams struct {
	PageID int `json:"page_id"`
}

func (t *RemovePageTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.remove_page", t.logger, params,
		func(ctx context.Context, span trace.Span, p removePageParams) (any, error) {
			if err := t.svc.DeletePage(ctx, p.PageID); err != nil {
				return nil, err
			}
			return map[string]any{"page_id": p.PageID, "deleted": true}, nil
		})
}
