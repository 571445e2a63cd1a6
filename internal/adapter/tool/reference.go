package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"grist-assistant/internal/domain"
)

// GetAvailableCustomWidgetsTool returns the catalog of bundled custom
// widgets the assistant may place on pages. The list is static; it mirrors
// the widget gallery shipped with the document server.
type GetAvailableCustomWidgetsTool struct {
	logger *slog.Logger
}

func NewGetAvailableCustomWidgetsTool(logger *slog.Logger) *GetAvailableCustomWidgetsTool {
	return &GetAvailableCustomWidgetsTool{logger: logger}
}

func (t *GetAvailableCustomWidgetsTool) Name() string { return "get_available_custom_widgets" }
func (t *GetAvailableCustomWidgetsTool) Description() string {
	return "List the custom widgets that can be added to a page with add_page_widget."
}

func (t *GetAvailableCustomWidgetsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	}
}

type customWidget struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

var availableCustomWidgets = []customWidget{
	{
		Name:        "calendar",
		URL:         "https://gristlabs.github.io/grist-widget/calendar/",
		Description: "Calendar view over records with a date column.",
	},
	{
		Name:        "markdown",
		URL:         "https://gristlabs.github.io/grist-widget/markdown/",
		Description: "Renders a text column as markdown.",
	},
	{
		Name:        "map",
		URL:         "https://gristlabs.github.io/grist-widget/map/",
		Description: "Plots records with latitude and longitude columns on a map.",
	},
	{
		Name:        "image-viewer",
		URL:         "https://gristlabs.github.io/grist-widget/image-viewer/",
		Description: "Shows images referenced by a URL column.",
	},
	{
		Name:        "print-labels",
		URL:         "https://gristlabs.github.io/grist-widget/print-labels/",
		Description: "Formats records as printable labels.",
	},
}

type getCustomWidgetsParams struct{}

func (t *GetAvailableCustomWidgetsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_available_custom_widgets", t.logger, params,
		func(ctx context.Context, span trace.Span, p getCustomWidgetsParams) (any, error) {
			return map[string]any{"widgets": availableCustomWidgets, "count": len(availableCustomWidgets)}, nil
		})
}

// GetAccessRulesReferenceTool returns a condensed reference for the
// document's access-rule formula language. Everything is static text so the
// model can answer permission questions without guessing syntax.
type GetAccessRulesReferenceTool struct {
	logger *slog.Logger
}

func NewGetAccessRulesReferenceTool(logger *slog.Logger) *GetAccessRulesReferenceTool {
	return &GetAccessRulesReferenceTool{logger: logger}
}

func (t *GetAccessRulesReferenceTool) Name() string { return "get_grist_access_rules_reference" }
func (t *GetAccessRulesReferenceTool) Description() string {
	return "Get a reference for Grist access-rule syntax: variables, functions and example formulas."
}

func (t *GetAccessRulesReferenceTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	}
}

const accessRulesReference = `Grist access rules restrict what users can see and change. Rules are
configured per table (or document-wide) under Tools > Access Rules.

Each rule has a condition formula and permissions. Permissions are
R (read), U (update), C (create), D (delete), S (schema). A permission
may be allowed (+) or denied (-), e.g. "+R -UCD".

Condition formulas use a Python-like syntax with these variables:
  user     - the active user: user.Email, user.Name, user.Access,
             user.UserID, user.LinkKey; user.Access is one of
             "owners", "editors", "viewers".
  rec      - the record being accessed; rec.ColumnName reads a cell.
  newRec   - on updates, the proposed record state.

Operators: ==, !=, <, <=, >, >=, and, or, not, in, not in.
Functions: rec.Column is None checks empties.

Example formulas:
  user.Access in ["owners"]            - owners only
  user.Email == rec.AssignedTo         - row visible to its assignee
  rec.Status != "Closed"               - hide closed rows
  newRec.Budget <= rec.Budget          - forbid raising a budget
  user.LinkKey.Code == rec.Code        - match a share-link parameter

Rules are evaluated top to bottom; the first matching rule wins. A final
default rule (no condition) catches everything else. Schema permission S
controls structure changes and is usually granted to owners only.

Access rules cannot be edited through this assistant's tools. Direct the
user to Tools > Access Rules in the document UI to change them.`

type getAccessRulesParams struct{}

func (t *GetAccessRulesReferenceTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_grist_access_rules_reference", t.logger, params,
		func(ctx context.Context, span trace.Span, p getAccessRulesParams) (any, error) {
			return accessRulesReference, nil
		})
}
