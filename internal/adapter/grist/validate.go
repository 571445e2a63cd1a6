package grist

import (
	"fmt"
	"strings"

	"grist-assistant/internal/domain"
)

// Column types understood by the validator. Ref, RefList and DateTime types
// carry a suffix (target table, timezone) and are matched on prefix.
var scalarTypes = map[string]bool{
	"Text":        true,
	"Numeric":     true,
	"Int":         true,
	"Bool":        true,
	"Date":        true,
	"Choice":      true,
	"ChoiceList":  true,
	"Attachments": true,
	"Any":         true,
}

var prefixTypes = []string{"DateTime", "Ref:", "RefList:"}

// ValidateColumnType checks that a column type is one the document backend
// accepts.
func ValidateColumnType(colType string) error {
	if scalarTypes[colType] {
		return nil
	}
	for _, prefix := range prefixTypes {
		if strings.HasPrefix(colType, prefix) {
			return nil
		}
	}
	return domain.NewDomainError("grist.ValidateColumnType", domain.ErrInvalidInput,
		fmt.Sprintf("unknown column type %q", colType))
}

// ValidateRecordData canonicalizes field keys against the table's columns
// (case-insensitive) and type-checks each value. Returns a new map keyed by
// canonical column ids.
func ValidateRecordData(cols []domain.Column, fields map[string]any) (map[string]any, error) {
	byID := make(map[string]domain.Column, len(cols))
	byFold := make(map[string]domain.Column, len(cols))
	for _, col := range cols {
		byID[col.ID] = col
		byFold[strings.ToLower(col.ID)] = col
		if col.Label != "" {
			byFold[strings.ToLower(col.Label)] = col
		}
	}

	out := make(map[string]any, len(fields))
	for key, value := range fields {
		col, ok := byID[key]
		if !ok {
			col, ok = byFold[strings.ToLower(key)]
		}
		if !ok {
			available := make([]string, 0, len(cols))
			for _, c := range cols {
				available = append(available, c.ID)
			}
			return nil, domain.NewDomainError("grist.ValidateRecordData", domain.ErrInvalidInput,
				fmt.Sprintf("unknown field %q (available: %s)", key, strings.Join(available, ", ")))
		}
		if err := validateFieldValue(col, value); err != nil {
			return nil, err
		}
		out[col.ID] = value
	}
	return out, nil
}

// validateFieldValue checks one value against its column type. Values arrive
// from JSON, so numbers are float64 and lists are []any.
func validateFieldValue(col domain.Column, value any) error {
	if value == nil {
		return nil
	}
	mismatch := func(want string) error {
		return domain.NewDomainError("grist.validateFieldValue", domain.ErrInvalidInput,
			fmt.Sprintf("field %q: expected %s, got %T", col.ID, want, value))
	}

	switch {
	case col.Type == "Text" || col.Type == "Choice":
		if _, ok := value.(string); !ok {
			return mismatch("string")
		}
	case col.Type == "Numeric":
		switch value.(type) {
		case float64, int:
		default:
			return mismatch("number")
		}
	case col.Type == "Int":
		switch v := value.(type) {
		case int:
		case float64:
			if v != float64(int64(v)) {
				return mismatch("integer")
			}
		default:
			return mismatch("integer")
		}
	case col.Type == "Bool":
		if _, ok := value.(bool); !ok {
			return mismatch("boolean")
		}
	case col.Type == "Date" || strings.HasPrefix(col.Type, "DateTime"):
		// Dates travel either as ISO strings or as epoch numbers.
		switch value.(type) {
		case string, float64, int:
		default:
			return mismatch("date string or timestamp")
		}
	case col.Type == "ChoiceList" || strings.HasPrefix(col.Type, "RefList:"):
		// List values use the document's encoded form: ["L", v1, v2, ...].
		// A plain array is also accepted and encoded upstream.
		if _, ok := value.([]any); !ok {
			return mismatch("list")
		}
	case strings.HasPrefix(col.Type, "Ref:"):
		switch v := value.(type) {
		case int:
		case float64:
			if v != float64(int64(v)) {
				return mismatch("record id")
			}
		default:
			return mismatch("record id")
		}
	}
	// Attachments, Any, and unknown types pass through untouched.
	return nil
}
