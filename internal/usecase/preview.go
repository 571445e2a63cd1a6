package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"grist-assistant/internal/domain"
)

// PreviewBuilder assembles operation previews for confirmable tool calls.
// Previews are best-effort: sample lookups may fail without blocking the
// confirmation, but a preview that cannot even describe the operation is an
// error and the tool call is not queued.
type PreviewBuilder struct {
	svc    domain.DocumentService
	logger *slog.Logger
}

func NewPreviewBuilder(svc domain.DocumentService, logger *slog.Logger) *PreviewBuilder {
	return &PreviewBuilder{svc: svc, logger: logger}
}

const (
	maxPreviewSamples = 10
	bulkWarnThreshold = 10
)

// Build creates the preview for a confirmable tool call.
func (b *PreviewBuilder) Build(ctx context.Context, call domain.ToolCall, opType domain.OperationType) (*domain.OperationPreview, error) {
	switch opType {
	case domain.OpDeleteRecords:
		return b.deleteRecords(ctx, call.Arguments)
	case domain.OpDeleteColumn:
		return b.deleteColumn(ctx, call.Arguments)
	case domain.OpUpdateRecords:
		return b.updateRecords(ctx, call.Arguments)
	case domain.OpUpdateColumn:
		return b.updateColumn(ctx, call.Arguments)
	}
	return nil, domain.NewDomainError("preview.Build", domain.ErrInvalidInput,
		fmt.Sprintf("no preview for operation %q", opType))
}

func (b *PreviewBuilder) deleteRecords(ctx context.Context, args json.RawMessage) (*domain.OperationPreview, error) {
	var p struct {
		TableID   string `json:"table_id"`
		RecordIDs []int  `json:"record_ids"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, domain.WrapOp("preview.deleteRecords", err)
	}

	preview := &domain.OperationPreview{
		OperationType: domain.OpDeleteRecords,
		TableID:       p.TableID,
		Description:   fmt.Sprintf("Delete %d record(s) from table %q", len(p.RecordIDs), p.TableID),
		AffectedCount: len(p.RecordIDs),
		Warnings:      []string{"This operation permanently deletes data and cannot be undone."},
	}
	if len(p.RecordIDs) > bulkWarnThreshold {
		preview.Warnings = append(preview.Warnings,
			fmt.Sprintf("Bulk deletion of %d records.", len(p.RecordIDs)))
	}

	sampleIDs := p.RecordIDs
	if len(sampleIDs) > maxPreviewSamples {
		sampleIDs = sampleIDs[:maxPreviewSamples]
	}
	records, err := b.svc.RecordsByID(ctx, p.TableID, sampleIDs)
	if err != nil {
		// samples are illustrative only, the preview stands without them
		b.logger.Warn("preview sample fetch failed", "table", p.TableID, "error", err)
	} else {
		preview.Samples = recordsToSamples(records)
	}
	return preview, nil
}

func recordsToSamples(records []domain.Record) []map[string]any {
	samples := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		sample := make(map[string]any, len(rec.Fields)+1)
		for k, v := range rec.Fields {
			sample[k] = v
		}
		sample["id"] = rec.ID
		samples = append(samples, sample)
	}
	return samples
}

func (b *PreviewBuilder) deleteColumn(ctx context.Context, args json.RawMessage) (*domain.OperationPreview, error) {
	var p struct {
		TableID string `json:"table_id"`
		ColID   string `json:"col_id"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, domain.WrapOp("preview.deleteColumn", err)
	}

	// resolution is best-effort; an unresolvable column previews under its
	// raw id rather than blocking the confirmation
	label, colID := p.ColID, p.ColID
	if col, err := b.svc.ResolveColumn(ctx, p.TableID, p.ColID); err != nil {
		b.logger.Warn("preview column resolve failed", "table", p.TableID, "column", p.ColID, "error", err)
	} else {
		colID = col.ID
		if col.Label != "" {
			label = col.Label
		} else {
			label = col.ID
		}
	}

	preview := &domain.OperationPreview{
		OperationType: domain.OpDeleteColumn,
		TableID:       p.TableID,
		Description:   fmt.Sprintf("Delete column %q from table %q", label, p.TableID),
		Warnings:      []string{"This operation permanently deletes data and cannot be undone."},
	}

	// affected count = rows that currently hold a value, 0 when the count
	// cannot be determined
	count, err := b.svc.NonNullCount(ctx, p.TableID, colID)
	if err != nil {
		b.logger.Warn("preview non-null count failed", "table", p.TableID, "column", colID, "error", err)
	} else {
		preview.AffectedCount = count
		if count > 0 {
			preview.Warnings = append(preview.Warnings,
				fmt.Sprintf("Column %q contains data in %d record(s); all of it will be lost.", label, count))
		}
	}
	return preview, nil
}

func (b *PreviewBuilder) updateRecords(ctx context.Context, args json.RawMessage) (*domain.OperationPreview, error) {
	var p struct {
		TableID   string           `json:"table_id"`
		RecordIDs []int            `json:"record_ids"`
		Records   []map[string]any `json:"records"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, domain.WrapOp("preview.updateRecords", err)
	}

	preview := &domain.OperationPreview{
		OperationType: domain.OpUpdateRecords,
		TableID:       p.TableID,
		Description:   fmt.Sprintf("Update %d record(s) in table %q", len(p.RecordIDs), p.TableID),
		AffectedCount: len(p.RecordIDs),
	}
	if len(p.RecordIDs) > bulkWarnThreshold {
		preview.Warnings = append(preview.Warnings,
			fmt.Sprintf("Bulk update of %d records.", len(p.RecordIDs)))
	}

	sampleIDs := p.RecordIDs
	if len(sampleIDs) > maxPreviewSamples {
		sampleIDs = sampleIDs[:maxPreviewSamples]
	}
	before, err := b.svc.RecordsByID(ctx, p.TableID, sampleIDs)
	if err != nil {
		b.logger.Warn("preview before-state fetch failed", "table", p.TableID, "error", err)
		return preview, nil
	}

	// records is parallel to record_ids: records[i] holds the new values
	// for record_ids[i]
	valuesByID := make(map[int]map[string]any, len(p.RecordIDs))
	for i, id := range p.RecordIDs {
		if i < len(p.Records) {
			valuesByID[id] = p.Records[i]
		}
	}

	for _, rec := range before {
		values := valuesByID[rec.ID]
		after := make(map[string]any, len(rec.Fields))
		for k, v := range rec.Fields {
			after[k] = v
		}
		changed := make([]string, 0, len(values))
		for k, v := range values {
			after[k] = v
			changed = append(changed, k)
		}
		preview.Changes = append(preview.Changes, domain.FieldChange{
			RecordID: rec.ID,
			Before:   rec.Fields,
			After:    after,
			Fields:   changed,
		})
	}
	return preview, nil
}

func (b *PreviewBuilder) updateColumn(ctx context.Context, args json.RawMessage) (*domain.OperationPreview, error) {
	var p struct {
		TableID string `json:"table_id"`
		ColID   string `json:"col_id"`
		ColType string `json:"col_type"`
		Label   string `json:"label"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, domain.WrapOp("preview.updateColumn", err)
	}

	preview := &domain.OperationPreview{
		OperationType: domain.OpUpdateColumn,
		TableID:       p.TableID,
		AffectedCount: 1,
	}

	col, err := b.svc.ResolveColumn(ctx, p.TableID, p.ColID)
	if err != nil {
		// the column may be resolvable only at execution time; fall back to a
		// plain description instead of failing the confirmation
		b.logger.Warn("preview column resolve failed", "table", p.TableID, "column", p.ColID, "error", err)
		preview.Description = fmt.Sprintf("Change type of column %q in table %q to %q", p.ColID, p.TableID, p.ColType)
		return preview, nil
	}

	label := col.Label
	if label == "" {
		label = col.ID
	}
	preview.Description = fmt.Sprintf("Change type of column %q in table %q from %q to %q",
		label, p.TableID, col.Type, p.ColType)

	if lossyConversion(col.Type, p.ColType) {
		preview.Warnings = append(preview.Warnings,
			fmt.Sprintf("Converting %q from %s to %s may lose or corrupt existing values.", label, col.Type, p.ColType))
	}
	return preview, nil
}

// lossyConversion reports whether changing a column from one type to another
// risks destroying values. Only the known-bad pairs are flagged.
func lossyConversion(from, to string) bool {
	fromBase := baseType(from)
	toBase := baseType(to)
	switch {
	case fromBase == "Numeric" && toBase == "Int":
		return true
	case fromBase == "Text" && (toBase == "Int" || toBase == "Numeric"):
		return true
	case fromBase == "DateTime" && toBase == "Date":
		return true
	}
	return false
}

// baseType strips a type's qualifier, e.g. "DateTime:UTC" -> "DateTime".
func baseType(t string) string {
	if i := strings.IndexByte(t, ':'); i >= 0 {
		return t[:i]
	}
	return t
}
