package tool

import (
	"log/slog"

	"grist-assistant/internal/domain"
)

// BuildCatalog registers the full tool set against one document service.
// A fresh catalog is built per request so each tool closes over the
// session's service.
func BuildCatalog(svc domain.DocumentService, logger *slog.Logger) *Registry {
	registry := NewRegistry(logger)

	tools := []domain.Tool{
		// read-only
		NewGetTablesTool(svc, logger),
		NewGetTableColumnsTool(svc, logger),
		NewGetSampleRecordsTool(svc, logger),
		NewQueryDocumentTool(svc, logger),
		NewGetPagesTool(svc, logger),
		NewGetPageWidgetsTool(svc, logger),
		NewGetAvailableCustomWidgetsTool(logger),
		NewGetAccessRulesReferenceTool(logger),

		// mutating
		NewAddRecordsTool(svc, logger),
		NewUpdateRecordsTool(svc, logger),
		NewRemoveRecordsTool(svc, logger),
		NewAddTableTool(svc, logger),
		NewAddTableColumnTool(svc, logger),
		NewUpdateTableColumnTool(svc, logger),
		NewRemoveTableColumnTool(svc, logger),
		NewUpdatePageTool(svc, logger),
		NewRemovePageTool(svc, logger),
		NewAddPageWidgetTool(svc, logger),
		NewUpdatePageWidgetTool(svc, logger),
		NewRemovePageWidgetTool(svc, logger),
	}

	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			// names are compile-time constants, a duplicate is a programming error
			panic(err)
		}
	}
	return registry
}
