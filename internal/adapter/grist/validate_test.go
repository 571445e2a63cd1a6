package grist

import (
	"errors"
	"testing"

	"grist-assistant/internal/domain"
)

func TestValidateColumnType(t *testing.T) {
	valid := []string{"Text", "Numeric", "Int", "Bool", "Date", "Choice", "ChoiceList",
		"Attachments", "Any", "DateTime", "DateTime:UTC", "Ref:Tasks", "RefList:People"}
	for _, ct := range valid {
		if err := ValidateColumnType(ct); err != nil {
			t.Errorf("ValidateColumnType(%q) = %v, want nil", ct, err)
		}
	}

	invalid := []string{"", "text", "Integer", "Ref", "RefList", "JSON"}
	for _, ct := range invalid {
		if err := ValidateColumnType(ct); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("ValidateColumnType(%q) = %v, want ErrInvalidInput", ct, err)
		}
	}
}

func testColumns() []domain.Column {
	return []domain.Column{
		{ID: "Title", Label: "Title", Type: "Text"},
		{ID: "Count", Label: "Item count", Type: "Int"},
		{ID: "Price", Label: "Price", Type: "Numeric"},
		{ID: "Done", Label: "Done", Type: "Bool"},
		{ID: "Due", Label: "Due date", Type: "DateTime:UTC"},
		{ID: "Owner", Label: "Owner", Type: "Ref:People"},
		{ID: "Tags", Label: "Tags", Type: "ChoiceList"},
	}
}

func TestValidateRecordDataCanonicalizesKeys(t *testing.T) {
	out, err := ValidateRecordData(testColumns(), map[string]any{
		"title":      "hello",
		"item count": float64(3),
	})
	if err != nil {
		t.Fatalf("ValidateRecordData: %v", err)
	}
	if _, ok := out["Title"]; !ok {
		t.Errorf("miscased id not canonicalized: %v", out)
	}
	if _, ok := out["Count"]; !ok {
		t.Errorf("label not mapped to column id: %v", out)
	}
}

func TestValidateRecordDataUnknownField(t *testing.T) {
	_, err := ValidateRecordData(testColumns(), map[string]any{"Nope": 1})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown field: got %v", err)
	}
}

func TestValidateFieldValues(t *testing.T) {
	cases := []struct {
		field string
		value any
		ok    bool
	}{
		{"Title", "x", true},
		{"Title", 3.0, false},
		{"Count", float64(2), true},
		{"Count", 2.5, false},
		{"Price", 2.5, true},
		{"Price", "cheap", false},
		{"Done", true, true},
		{"Done", "yes", false},
		{"Due", "2026-08-31", true},
		{"Due", float64(1767225600), true},
		{"Due", []any{}, false},
		{"Owner", float64(7), true},
		{"Owner", 7.5, false},
		{"Tags", []any{"L", "red"}, true},
		{"Tags", "red", false},
		{"Title", nil, true}, // nulls clear a cell
	}
	for _, tc := range cases {
		_, err := ValidateRecordData(testColumns(), map[string]any{tc.field: tc.value})
		if tc.ok && err != nil {
			t.Errorf("%s=%v: unexpected error %v", tc.field, tc.value, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s=%v: expected error", tc.field, tc.value)
		}
	}
}
