package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"grist-assistant/internal/domain"
)

// GetPageWidgetsTool lists the widgets on a page.
type GetPageWidgetsTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewGetPageWidgetsTool(svc domain.DocumentService, logger *slog.Logger) *GetPageWidgetsTool {
	return &GetPageWidgetsTool{svc: svc, logger: logger}
}

func (t *GetPageWidgetsTool) Name() string { return "get_page_widgets" }
func (t *GetPageWidgetsTool) Description() string {
	return "List the widgets on a page with their ids, types and linked tables."
}

func (t *GetPageWidgetsTool) Schema() domain.ToolSchema {
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

type getPageWidgetsParams struct {
	PageID int `json:"page_id"`
}

func (t *GetPageWidgetsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_page_widgets", t.logger, params,
		func(ctx context.Context, span trace.Span, p getPageWidgetsParams) (any, error) {
			widgets, err := t.svc.ListWidgets(ctx, p.PageID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"page_id": p.PageID, "widgets": widgets, "count": len(widgets)}, nil
		})
}

// AddPageWidgetTool adds a widget to a page.
type AddPageWidgetTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewAddPageWidgetTool(svc domain.DocumentService, logger *slog.Logger) *AddPageWidgetTool {
	return &AddPageWidgetTool{svc: svc, logger: logger}
}

func (t *AddPageWidgetTool) Name() string { return "add_page_widget" }
func (t *AddPageWidgetTool) Description() string {
	return "Add a widget to a page. Widget types: record (table), single (card), detail (card list), chart, custom."
}

func (t *AddPageWidgetTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"page_id": {"type": "integer", "description": "Page id from get_pages"},
				"table_id": {"type": "string", "description": "Table the widget shows"},
				"widget_type": {"type": "string", "description": "record, single, detail, chart or custom"},
				"title": {"type": "string", "description": "Optional widget title"},
				"custom_widget_url": {"type": "string", "description": "URL for custom widgets"}
			},
			"required": ["page_id", "table_id", "widget_type"]
		}`),
	}
}

type addPageWidgetParams struct {
	PageID          int    `json:"page_id"`
	TableID         string `json:"table_id"`
	WidgetType      string `json:"widget_type"`
	Title           string `json:"title"`
	CustomWidgetURL string `json:"custom_widget_url"`
}

func (t *AddPageWidgetTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.add_page_widget", t.logger, params,
		func(ctx context.Context, span trace.Span, p addPageWidgetParams) (any, error) {
			tableID, err := t.svc.ResolveTable(ctx, p.TableID)
			if err != nil {
				return nil, err
			}
			spec := domain.WidgetSpec{
				TableID:         tableID,
				Type:            p.WidgetType,
				Title:           p.Title,
				CustomWidgetURL: p.CustomWidgetURL,
			}
			id, err := t.svc.AddWidget(ctx, p.PageID, spec)
			if err != nil {
				return nil, err
			}
			return map[string]any{"widget_id": id, "page_id": p.PageID, "created": true}, nil
		})
}

// UpdatePageWidgetTool changes a widget's title or type.
type UpdatePageWidgetTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewUpdatePageWidgetTool(svc domain.DocumentService, logger *slog.Logger) *UpdatePageWidgetTool {
	return &UpdatePageWidgetTool{svc: svc, logger: logger}
}

func (t *UpdatePageWidgetTool) Name() string { return "update_page_widget" }
func (t *UpdatePageWidgetTool) Description() string {
	return "Change a widget's title or type."
}

func (t *UpdatePageWidgetTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"page_id": {"type": "integer", "description": "Page id from get_pages"},
				"widget_id": {"type": "integer", "description": "Widget id from get_page_widgets"},
				"title": {"type": "string", "description": "New widget title"},
				"widget_type": {"type": "string", "description": "New widget type"}
			},
			"required": ["page_id", "widget_id"]
		}`),
	}
}

type updatePageWidgetParams struct {
	PageID     int    `json:"page_id"`
	WidgetID   int    `json:"widget_id"`
	Title      string `json:"title"`
	WidgetType string `json:"widget_type"`
}

func (t *UpdatePageWidgetTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.update_page_widget", t.logger, params,
		func(ctx context.Context, span trace.Span, p updatePageWidgetParams) (any, error) {
			if p.Title == "" && p.WidgetType == "" {
				return ErrResult("nothing to update: provide title or widget_type")
			}
			spec := domain.WidgetSpec{Title: p.Title, Type: p.WidgetType}
			if err := t.svc.UpdateWidget(ctx, p.PageID, p.WidgetID, spec); err != nil {
				return nil, err
			}
			return map[string]any{"widget_id": p.WidgetID, "updated": true}, nil
		})
}

// RemovePageWidgetTool removes a widget from a page.
type RemovePageWidgetTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewRemovePageWidgetTool(svc domain.DocumentService, logger *slog.Logger) *RemovePageWidgetTool {
	return &RemovePageWidgetTool{svc: svc, logger: logger}
}

func (t *RemovePageWidgetTool) Name() string { return "remove_page_widget" }
func (t *RemovePageWidgetTool) Description() string {
	return "Remove a widget from a page. The underlying table keeps its data."
}

func (t *RemovePageWidgetTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"page_id": {"type": "integer", "description": "Page id from get_pages"},
				"widget_id": {"type": "integer", "description": "Widget id from get_page_widgets"}
			},
			"required": ["page_id", "widget_id"]
		}`),
	}
}

type removePageWidgetParams struct {
	PageID   int `json:"page_id"`
	WidgetID int `json:"widget_id"`
}

func (t *RemovePageWidgetTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.remove_page_widget", t.logger, params,
		func(ctx context.Context, span trace.Span, p removePageWidgetParams) (any, error) {
			if err := t.svc.DeleteWidget(ctx, p.PageID, p.WidgetID); err != nil {
				return nil, err
			}
			return map[string]any{"widget_id": p.WidgetID, "deleted": true}, nil
		})
}
