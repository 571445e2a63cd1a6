package usecase

import (
	"encoding/json"

	"grist-assistant/internal/domain"
)

// operationTypeFor maps confirmable tool names to the operation type shown
// in previews. Tools absent from this map never require confirmation.
var operationTypeFor = map[string]domain.OperationType{
	"remove_records":      domain.OpDeleteRecords,
	"remove_table_column": domain.OpDeleteColumn,
	"update_records":      domain.OpUpdateRecords,
	"update_table_column": domain.OpUpdateColumn,
}

// bulkUpdateThreshold is the record count above which updates need
// confirmation. Exactly this many records still runs unconfirmed.
const bulkUpdateThreshold = 5

// ShouldConfirm decides whether a tool call must be confirmed by the user
// before execution. Pure function of the call's name and arguments.
//
//   - remove_records, remove_table_column: always.
//   - update_records: only when touching more than bulkUpdateThreshold ids.
//   - update_table_column: only when changing the column's type.
//
// Arguments that fail to parse are treated as not confirmable; the tool's
// own validation will reject them.
func ShouldConfirm(call domain.ToolCall) (domain.OperationType, bool) {
	opType, ok := operationTypeFor[call.Name]
	if !ok {
		return "", false
	}

	switch call.Name {
	case "remove_records", "remove_table_column":
		return opType, true

	case "update_records":
		var p struct {
			RecordIDs []int `json:"record_ids"`
		}
		if err := json.Unmarshal(call.Arguments, &p); err != nil {
			return "", false
		}
		if len(p.RecordIDs) > bulkUpdateThreshold {
			return opType, true
		}
		return "", false

	case "update_table_column":
		var p map[string]json.RawMessage
		if err := json.Unmarshal(call.Arguments, &p); err != nil {
			return "", false
		}
		if _, present := p["col_type"]; present {
			return opType, true
		}
		return "", false
	}
	return "", false
}
