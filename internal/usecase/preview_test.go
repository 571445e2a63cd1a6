package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"grist-assistant/internal/domain"
)

func TestPreviewDeleteRecords(t *testing.T) {
	svc := newFakeService()
	svc.records["Tasks"] = []domain.Record{
		{ID: 1, Fields: map[string]any{"Title": "a"}},
		{ID: 2, Fields: map[string]any{"Title": "b"}},
		{ID: 3, Fields: map[string]any{"Title": "c"}},
		{ID: 4, Fields: map[string]any{"Title": "d"}},
		{ID: 5, Fields: map[string]any{"Title": "e"}},
	}
	b := NewPreviewBuilder(svc, slog.Default())

	args := json.RawMessage(`{"table_id":"Tasks","record_ids":[1,2,3,4,5]}`)
	preview, err := b.Build(context.Background(), domain.ToolCall{ID: "c1", Name: "remove_records", Arguments: args}, domain.OpDeleteRecords)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if preview.AffectedCount != 5 {
		t.Errorf("affected = %d, want 5", preview.AffectedCount)
	}
	if preview.IsReversible {
		t.Error("deletes are never reversible")
	}
	if len(preview.Warnings) == 0 {
		t.Error("expected at least the irreversibility warning")
	}
	if len(preview.Samples) != 5 {
		t.Errorf("samples = %d, want 5", len(preview.Samples))
	}
}

func TestPreviewDeleteRecordsSampleFailureDegrades(t *testing.T) {
	svc := newFakeService()
	svc.recordsByIDErr = domain.ErrUpstream
	b := NewPreviewBuilder(svc, slog.Default())

	args := json.RawMessage(`{"table_id":"Tasks","record_ids":[1,2]}`)
	preview, err := b.Build(context.Background(), domain.ToolCall{ID: "c1", Name: "remove_records", Arguments: args}, domain.OpDeleteRecords)
	if err != nil {
		t.Fatalf("sample failure must not block the preview: %v", err)
	}
	if len(preview.Samples) != 0 {
		t.Error("expected empty samples on fetch failure")
	}
	if preview.AffectedCount != 2 {
		t.Errorf("affected = %d, want 2", preview.AffectedCount)
	}
}

func TestPreviewBulkDeleteWarning(t *testing.T) {
	svc := newFakeService()
	b := NewPreviewBuilder(svc, slog.Default())

	args := json.RawMessage(`{"table_id":"Tasks","record_ids":[1,2,3,4,5,6,7,8,9,10,11]}`)
	preview, err := b.Build(context.Background(), domain.ToolCall{ID: "c1", Name: "remove_records", Arguments: args}, domain.OpDeleteRecords)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	found := false
	for _, w := range preview.Warnings {
		if strings.Contains(w, "Bulk deletion") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a bulk warning, got %v", preview.Warnings)
	}
}

func TestPreviewDeleteColumnDataLoss(t *testing.T) {
	svc := newFakeService()
	svc.nonNullCounts["Due"] = 7
	b := NewPreviewBuilder(svc, slog.Default())

	args := json.RawMessage(`{"table_id":"Tasks","col_id":"Due"}`)
	preview, err := b.Build(context.Background(), domain.ToolCall{ID: "c1", Name: "remove_table_column", Arguments: args}, domain.OpDeleteColumn)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.Contains(preview.Description, "Due date") {
		t.Errorf("description should use the display label: %q", preview.Description)
	}
	if preview.AffectedCount != 7 {
		t.Errorf("affected = %d, want the populated row count 7", preview.AffectedCount)
	}
	found := false
	for _, w := range preview.Warnings {
		if strings.Contains(w, "7 record(s)") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a data loss warning naming 7 records, got %v", preview.Warnings)
	}
}

func TestPreviewDeleteColumnCountFailureDegrades(t *testing.T) {
	svc := newFakeService()
	svc.nonNullCountErr = domain.ErrUpstream
	b := NewPreviewBuilder(svc, slog.Default())

	args := json.RawMessage(`{"table_id":"Tasks","col_id":"Due"}`)
	preview, err := b.Build(context.Background(), domain.ToolCall{ID: "c1", Name: "remove_table_column", Arguments: args}, domain.OpDeleteColumn)
	if err != nil {
		t.Fatalf("count failure must not block the preview: %v", err)
	}
	if preview.AffectedCount != 0 {
		t.Errorf("affected = %d, want 0 when the count cannot be determined", preview.AffectedCount)
	}
	if len(preview.Warnings) != 1 {
		t.Errorf("warnings = %v, want only the irreversibility warning", preview.Warnings)
	}
}

func TestPreviewDeleteColumnUnresolvableFallsBack(t *testing.T) {
	svc := newFakeService()
	svc.resolveWrongCol = true
	b := NewPreviewBuilder(svc, slog.Default())

	args := json.RawMessage(`{"table_id":"Tasks","col_id":"Nope"}`)
	preview, err := b.Build(context.Background(), domain.ToolCall{ID: "c1", Name: "remove_table_column", Arguments: args}, domain.OpDeleteColumn)
	if err != nil {
		t.Fatalf("unresolvable column should degrade, not fail: %v", err)
	}
	if !strings.Contains(preview.Description, "Nope") {
		t.Errorf("fallback description should use the raw column id: %q", preview.Description)
	}
	if preview.AffectedCount != 0 {
		t.Errorf("affected = %d, want 0", preview.AffectedCount)
	}
	if len(preview.Warnings) == 0 {
		t.Error("the irreversibility warning must survive the fallback")
	}
}

func TestPreviewUpdateRecordsPerRecordDiff(t *testing.T) {
	svc := newFakeService()
	svc.records["Tasks"] = []domain.Record{
		{ID: 1, Fields: map[string]any{"Title": "old title", "Done": false}},
		{ID: 2, Fields: map[string]any{"Title": "other task", "Done": false}},
	}
	b := NewPreviewBuilder(svc, slog.Default())

	args := json.RawMessage(`{"table_id":"Tasks","record_ids":[1,2],"records":[{"Done":true},{"Title":"renamed task"}]}`)
	preview, err := b.Build(context.Background(), domain.ToolCall{ID: "c1", Name: "update_records", Arguments: args}, domain.OpUpdateRecords)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(preview.Changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(preview.Changes))
	}

	byID := map[int]domain.FieldChange{}
	for _, ch := range preview.Changes {
		byID[ch.RecordID] = ch
	}

	// record 1 only flips Done; Title keeps its old value
	ch := byID[1]
	if ch.After["Done"] != true {
		t.Errorf("record 1 after[Done] = %v, want true", ch.After["Done"])
	}
	if ch.After["Title"] != "old title" {
		t.Errorf("record 1 after[Title] = %v, want old title", ch.After["Title"])
	}
	if len(ch.Fields) != 1 || ch.Fields[0] != "Done" {
		t.Errorf("record 1 changed fields = %v, want [Done]", ch.Fields)
	}

	// record 2 gets its own values, not record 1's
	ch = byID[2]
	if ch.After["Title"] != "renamed task" {
		t.Errorf("record 2 after[Title] = %v, want renamed task", ch.After["Title"])
	}
	if ch.After["Done"] != false {
		t.Errorf("record 2 after[Done] = %v, want false", ch.After["Done"])
	}
	if len(ch.Fields) != 1 || ch.Fields[0] != "Title" {
		t.Errorf("record 2 changed fields = %v, want [Title]", ch.Fields)
	}
}

func TestPreviewUpdateColumnLossyConversion(t *testing.T) {
	svc := newFakeService()
	b := NewPreviewBuilder(svc, slog.Default())

	args := json.RawMessage(`{"table_id":"Tasks","col_id":"Due","col_type":"Date"}`)
	preview, err := b.Build(context.Background(), domain.ToolCall{ID: "c1", Name: "update_table_column", Arguments: args}, domain.OpUpdateColumn)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if preview.AffectedCount != 1 {
		t.Errorf("affected = %d, want 1", preview.AffectedCount)
	}
	found := false
	for _, w := range preview.Warnings {
		if strings.Contains(w, "may lose") {
			found = true
		}
	}
	if !found {
		t.Errorf("DateTime->Date must warn about data loss, got %v", preview.Warnings)
	}
}

func TestPreviewUpdateColumnUnresolvableFallsBack(t *testing.T) {
	svc := newFakeService()
	svc.resolveWrongCol = true
	b := NewPreviewBuilder(svc, slog.Default())

	args := json.RawMessage(`{"table_id":"Tasks","col_id":"Nope","col_type":"Int"}`)
	preview, err := b.Build(context.Background(), domain.ToolCall{ID: "c1", Name: "update_table_column", Arguments: args}, domain.OpUpdateColumn)
	if err != nil {
		t.Fatalf("unresolvable column should degrade, not fail: %v", err)
	}
	if preview.Description == "" {
		t.Error("fallback preview still needs a description")
	}
}

func TestLossyConversionPairs(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{"Numeric", "Int", true},
		{"Text", "Int", true},
		{"Text", "Numeric", true},
		{"DateTime:America/New_York", "Date", true},
		{"Int", "Numeric", false},
		{"Date", "DateTime:UTC", false},
		{"Text", "Choice", false},
	}
	for _, tc := range cases {
		if got := lossyConversion(tc.from, tc.to); got != tc.want {
			t.Errorf("lossyConversion(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
