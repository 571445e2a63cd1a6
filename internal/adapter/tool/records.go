package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"grist-assistant/internal/domain"
	"grist-assistant/internal/infra/tracer"
)

// GetSampleRecordsTool fetches the first rows of a table so the model can
// see actual data shapes.
type GetSampleRecordsTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewGetSampleRecordsTool(svc domain.DocumentService, logger *slog.Logger) *GetSampleRecordsTool {
	return &GetSampleRecordsTool{svc: svc, logger: logger}
}

func (t *GetSampleRecordsTool) Name() string { return "get_sample_records" }
func (t *GetSampleRecordsTool) Description() string {
	return "Fetch a few sample records from a table to see what the data looks like. Default 5 rows."
}

func (t *GetSampleRecordsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_id": {"type": "string", "description": "Table name or id"},
				"limit": {"type": "integer", "description": "Number of rows to fetch (default 5, max 20)"}
			},
			"required": ["table_id"]
		}`),
	}
}

type sampleRecordsParams struct {
	TableID string `json:"table_id"`
	Limit   int    `json:"limit"`
}

func (t *GetSampleRecordsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_sample_records", t.logger, params,
		func(ctx context.Context, span trace.Span, p sampleRecordsParams) (any, error) {
			limit := p.Limit
			if limit <= 0 {
				limit = 5
			}
			if limit > 20 {
				limit = 20
			}
			records, err := t.svc.SampleRecords(ctx, p.TableID, limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"records": records, "count": len(records)}, nil
		})
}

// AddRecordsTool inserts new rows.
type AddRecordsTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewAddRecordsTool(svc domain.DocumentService, logger *slog.Logger) *AddRecordsTool {
	return &AddRecordsTool{svc: svc, logger: logger}
}

func (t *AddRecordsTool) Name() string { return "add_records" }
func (t *AddRecordsTool) Description() string {
	return "Insert new records into a table. Each record is an object mapping column ids to values."
}

func (t *AddRecordsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_id": {"type": "string", "description": "Table name or id"},
				"records": {
					"type": "array",
					"description": "Records to insert",
					"items": {"type": "object"}
				}
			},
			"required": ["table_id", "records"]
		}`),
	}
}

type addRecordsParams struct {
	TableID string           `json:"table_id"`
	Records []map[string]any `json:"records"`
}

func (t *AddRecordsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.add_records", t.logger, params,
		func(ctx context.Context, span trace.Span, p addRecordsParams) (any, error) {
			span.SetAttributes(tracer.IntAttr("records.count", len(p.Records)))
			ids, err := t.svc.AddRecords(ctx, p.TableID, p.Records)
			if err != nil {
				return nil, err
			}
			return map[string]any{"record_ids": ids, "count": len(ids)}, nil
		})
}

// UpdateRecordsTool applies per-record field changes to a set of records.
// Bulk updates (more than 5 ids) are confirmation-gated by the agent loop.
type UpdateRecordsTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewUpdateRecordsTool(svc domain.DocumentService, logger *slog.Logger) *UpdateRecordsTool {
	return &UpdateRecordsTool{svc: svc, logger: logger}
}

func (t *UpdateRecordsTool) Name() string { return "update_records" }
func (t *UpdateRecordsTool) Description() string {
	return "Update records by id. records is parallel to record_ids: records[i] holds the new field values for record_ids[i]."
}

func (t *UpdateRecordsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_id": {"type": "string", "description": "Table name or id"},
				"record_ids": {
					"type": "array",
					"description": "Ids of the records to update",
					"items": {"type": "integer"}
				},
				"records": {
					"type": "array",
					"description": "New field values per record, parallel to record_ids",
					"items": {"type": "object"}
				}
			},
			"required": ["table_id", "record_ids", "records"]
		}`),
	}
}

type updateRecordsParams struct {
	TableID   string           `json:"table_id"`
	RecordIDs []int            `json:"record_ids"`
	Records   []map[string]any `json:"records"`
}

func (t *UpdateRecordsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.update_records", t.logger, params,
		func(ctx context.Context, span trace.Span, p updateRecordsParams) (any, error) {
			span.SetAttributes(tracer.IntAttr("records.count", len(p.RecordIDs)))
			if len(p.Records) != len(p.RecordIDs) {
				return ErrResult("%d record ids but %d value objects; the lists must be parallel", len(p.RecordIDs), len(p.Records))
			}
			n, err := t.svc.UpdateRecords(ctx, p.TableID, p.RecordIDs, p.Records)
			if err != nil {
				return nil, err
			}
			return map[string]any{"updated_count": n}, nil
		})
}

// RemoveRecordsTool deletes rows by id. Always confirmation-gated.
type RemoveRecordsTool struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewRemoveRecordsTool(svc domain.DocumentService, logger *slog.Logger) *RemoveRecordsTool {
	return &RemoveRecordsTool{svc: svc, logger: logger}
}

func (t *RemoveRecordsTool) Name() string { return "remove_records" }
func (t *RemoveRecordsTool) Description() string {
	return "Delete records by id. Irreversible; requires user confirmation."
}

func (t *RemoveRecordsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_id": {"type": "string", "description": "Table name or id"},
				"record_ids": {
					"type": "array",
					"description": "Ids of the records to delete",
					"items": {"type": "integer"}
				}
			},
			"required": ["table_id", "record_ids"]
		}`),
	}
}

type removeRecordsParams struct {
	TableID   string `json:"table_id"`
	RecordIDs []int  `json:"record_ids"`
}

func (t *RemoveRecordsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.remove_records", t.logger, params,
		func(ctx context.Context, span trace.Span, p removeRecordsParams) (any, error) {
			span.SetAttributes(tracer.IntAttr("records.count", len(p.RecordIDs)))
			n, err := t.svc.DeleteRecords(ctx, p.TableID, p.RecordIDs)
			if err != nil {
				return nil, err
			}
			return map[string]any{"deleted_count": n}, nil
		})
}
