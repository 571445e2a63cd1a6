package domain

import "context"

// DocumentSession is the per-request binding between a caller and one
// document. Created for each chat request and discarded with it.
type DocumentSession struct {
	DocumentID  string
	AccessToken string
	TableID     string // table the user is currently viewing, optional
	TableName   string
}

// Table is a document table as seen by the assistant.
type Table struct {
	ID string `json:"id"`
}

// Column is a table column with its display label and type.
type Column struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// ColumnSpec describes a column to create or modify. Zero-value fields are
// left untouched on update.
type ColumnSpec struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Record is a single row keyed by numeric id.
type Record struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Page is a document page.
type Page struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Pos  int    `json:"pos"`
}

// Widget is a view section placed on a page.
type Widget struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	TableID string `json:"table_id,omitempty"`
}

// WidgetSpec describes a widget to create or modify.
type WidgetSpec struct {
	Title   string `json:"title,omitempty"`
	Type    string `json:"type,omitempty"`
	TableID string `json:"table_id,omitempty"`
	// CustomWidgetURL is the hosted widget URL, only used with type "custom".
	CustomWidgetURL string `json:"custom_widget_url,omitempty"`
}

// DocumentService is the narrow interface the agent core consumes. The
// concrete implementation adds case-insensitive name resolution, field
// validation, and a request-scoped schema cache on top of the raw client.
type DocumentService interface {
	ListTables(ctx context.Context) ([]Table, error)
	ListColumns(ctx context.Context, table string) ([]Column, error)

	// ResolveTable maps a possibly miscased table name to its canonical id.
	ResolveTable(ctx context.Context, name string) (string, error)
	// ResolveColumn maps a possibly miscased column name within a table to
	// its canonical column metadata.
	ResolveColumn(ctx context.Context, table, name string) (Column, error)

	SampleRecords(ctx context.Context, table string, limit int) ([]Record, error)
	RecordsByID(ctx context.Context, table string, ids []int) ([]Record, error)
	NonNullCount(ctx context.Context, table, column string) (int, error)
	Query(ctx context.Context, sql string) ([]map[string]any, error)

	AddRecords(ctx context.Context, table string, records []map[string]any) ([]int, error)
	// UpdateRecords applies per-record values: records is parallel to ids,
	// records[i] holds the new field values for ids[i].
	UpdateRecords(ctx context.Context, table string, ids []int, records []map[string]any) (int, error)
	DeleteRecords(ctx context.Context, table string, ids []int) (int, error)

	AddTable(ctx context.Context, table string, columns []ColumnSpec) (string, error)
	AddColumn(ctx context.Context, table string, spec ColumnSpec) (string, error)
	UpdateColumn(ctx context.Context, table, column string, spec ColumnSpec) error
	DeleteColumn(ctx context.Context, table, column string) error

	ListPages(ctx context.Context) ([]Page, error)
	UpdatePage(ctx context.Context, pageID int, name string) error
	DeletePage(ctx context.Context, pageID int) error

	ListWidgets(ctx context.Context, pageID int) ([]Widget, error)
	AddWidget(ctx context.Context, pageID int, spec WidgetSpec) (int, error)
	UpdateWidget(ctx context.Context, pageID, widgetID int, spec WidgetSpec) error
	DeleteWidget(ctx context.Context, pageID, widgetID int) error
}

// ServiceFactory builds a DocumentService bound to one session. The
// composition root owns the factory; handlers call it per request.
type ServiceFactory func(session DocumentSession) DocumentService
