package grist

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"grist-assistant/internal/domain"
)

// Service implements domain.DocumentService on top of the raw client. It
// owns the request-scoped schema cache and does case-insensitive name
// resolution and field validation before any call reaches the document API.
//
// A Service instance belongs to exactly one request and is never shared, so
// the caches need no locking.
type Service struct {
	client        *Client
	logger        *slog.Logger
	queryRowLimit int

	tables  []domain.Table
	columns map[string][]domain.Column
}

// NewService wraps a per-session client.
func NewService(client *Client, queryRowLimit int, logger *slog.Logger) *Service {
	if queryRowLimit <= 0 {
		queryRowLimit = 100
	}
	return &Service{
		client:        client,
		logger:        logger,
		queryRowLimit: queryRowLimit,
		columns:       make(map[string][]domain.Column),
	}
}

// NewFactory returns a ServiceFactory over a shared backend. Handlers call
// it once per request with the session's document id and credential.
func NewFactory(backend *Backend, queryRowLimit int, logger *slog.Logger) domain.ServiceFactory {
	return func(session domain.DocumentSession) domain.DocumentService {
		client := NewClient(backend, session.DocumentID, session.AccessToken)
		return NewService(client, queryRowLimit, logger)
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(s string) error {
	if !identPattern.MatchString(s) {
		return domain.NewDomainError("grist.checkIdent", domain.ErrInvalidInput,
			fmt.Sprintf("invalid identifier %q", s))
	}
	return nil
}

// --- schema ---

func (s *Service) ListTables(ctx context.Context) ([]domain.Table, error) {
	if s.tables != nil {
		return s.tables, nil
	}
	tables, err := s.client.GetTables(ctx)
	if err != nil {
		return nil, err
	}
	s.tables = tables
	return tables, nil
}

func (s *Service) ListColumns(ctx context.Context, table string) ([]domain.Column, error) {
	canonical, err := s.ResolveTable(ctx, table)
	if err != nil {
		return nil, err
	}
	if cols, ok := s.columns[canonical]; ok {
		return cols, nil
	}
	cols, err := s.client.GetColumns(ctx, canonical)
	if err != nil {
		return nil, err
	}
	s.columns[canonical] = cols
	return cols, nil
}

// ResolveTable maps a table name to its canonical id, trying an exact match
// before a case-insensitive one. Users (and models) routinely miscase names.
func (s *Service) ResolveTable(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", domain.NewDomainError("grist.ResolveTable", domain.ErrInvalidInput, "empty table name")
	}
	tables, err := s.ListTables(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range tables {
		if t.ID == name {
			return t.ID, nil
		}
	}
	for _, t := range tables {
		if strings.EqualFold(t.ID, name) {
			return t.ID, nil
		}
	}
	available := make([]string, 0, len(tables))
	for _, t := range tables {
		available = append(available, t.ID)
	}
	return "", domain.NewDomainError("grist.ResolveTable", domain.ErrNotFound,
		fmt.Sprintf("table %q (available: %s)", name, strings.Join(available, ", ")))
}

// ResolveColumn matches a column by id or display label, case-insensitively.
func (s *Service) ResolveColumn(ctx context.Context, table, name string) (domain.Column, error) {
	if name == "" {
		return domain.Column{}, domain.NewDomainError("grist.ResolveColumn", domain.ErrInvalidInput, "empty column name")
	}
	cols, err := s.ListColumns(ctx, table)
	if err != nil {
		return domain.Column{}, err
	}
	for _, col := range cols {
		if col.ID == name {
			return col, nil
		}
	}
	for _, col := range cols {
		if strings.EqualFold(col.ID, name) || strings.EqualFold(col.Label, name) {
			return col, nil
		}
	}
	available := make([]string, 0, len(cols))
	for _, col := range cols {
		available = append(available, col.ID)
	}
	return domain.Column{}, domain.NewDomainError("grist.ResolveColumn", domain.ErrNotFound,
		fmt.Sprintf("column %q in table %q (available: %s)", name, table, strings.Join(available, ", ")))
}

// --- reads ---

func (s *Service) SampleRecords(ctx context.Context, table string, limit int) ([]domain.Record, error) {
	canonical, err := s.ResolveTable(ctx, table)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	return s.client.GetRecords(ctx, canonical, limit)
}

func (s *Service) RecordsByID(ctx context.Context, table string, ids []int) ([]domain.Record, error) {
	canonical, err := s.ResolveTable(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, 0, len(ids))
	for _, id := range ids {
		placeholders = append(placeholders, fmt.Sprintf("%d", id))
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE id IN (%s)", canonical, strings.Join(placeholders, ", "))
	rows, err := s.client.SQL(ctx, query)
	if err != nil {
		return nil, err
	}
	records := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		rec := domain.Record{Fields: row}
		if id, ok := row["id"]; ok {
			if f, ok := id.(float64); ok {
				rec.ID = int(f)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Service) NonNullCount(ctx context.Context, table, column string) (int, error) {
	canonical, err := s.ResolveTable(ctx, table)
	if err != nil {
		return 0, err
	}
	col, err := s.ResolveColumn(ctx, canonical, column)
	if err != nil {
		return 0, err
	}
	if err := checkIdent(col.ID); err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE %s IS NOT NULL AND %s != ''", canonical, col.ID, col.ID)
	rows, err := s.client.SQL(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if n, ok := rows[0]["n"].(float64); ok {
		return int(n), nil
	}
	return 0, nil
}

// Query runs a read-only SQL query and caps the result set. The cap bounds
// LLM context size no matter what the underlying store returns.
func (s *Service) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(sql)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return nil, domain.NewDomainError("grist.Query", domain.ErrInvalidInput, "only SELECT queries are allowed")
	}
	rows, err := s.client.SQL(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	if len(rows) > s.queryRowLimit {
		s.logger.Debug("query result capped", "rows", len(rows), "limit", s.queryRowLimit)
		rows = rows[:s.queryRowLimit]
	}
	return rows, nil
}

// --- record writes ---

func (s *Service) AddRecords(ctx context.Context, table string, records []map[string]any) ([]int, error) {
	canonical, err := s.ResolveTable(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.NewDomainError("grist.AddRecords", domain.ErrInvalidInput, "no records given")
	}
	cols, err := s.ListColumns(ctx, canonical)
	if err != nil {
		return nil, err
	}
	validated := make([]map[string]any, 0, len(records))
	for i, fields := range records {
		v, err := ValidateRecordData(cols, fields)
		if err != nil {
			return nil, domain.WrapOp(fmt.Sprintf("record %d", i), err)
		}
		validated = append(validated, v)
	}
	return s.client.CreateRecords(ctx, canonical, validated)
}

func (s *Service) UpdateRecords(ctx context.Context, table string, ids []int, records []map[string]any) (int, error) {
	canonical, err := s.ResolveTable(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, domain.NewDomainError("grist.UpdateRecords", domain.ErrInvalidInput, "no record ids given")
	}
	if len(records) != len(ids) {
		return 0, domain.NewDomainError("grist.UpdateRecords", domain.ErrInvalidInput,
			fmt.Sprintf("%d record ids but %d value objects", len(ids), len(records)))
	}
	cols, err := s.ListColumns(ctx, canonical)
	if err != nil {
		return 0, err
	}
	validated := make([]map[string]any, 0, len(records))
	for i, fields := range records {
		v, err := ValidateRecordData(cols, fields)
		if err != nil {
			return 0, domain.WrapOp(fmt.Sprintf("record %d", i), err)
		}
		validated = append(validated, v)
	}
	if err := s.client.PatchRecords(ctx, canonical, ids, validated); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *Service) DeleteRecords(ctx context.Context, table string, ids []int) (int, error) {
	canonical, err := s.ResolveTable(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, domain.NewDomainError("grist.DeleteRecords", domain.ErrInvalidInput, "no record ids given")
	}
	if err := s.client.DeleteRecords(ctx, canonical, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// --- schema writes ---

func (s *Service) AddTable(ctx context.Context, table string, columns []domain.ColumnSpec) (string, error) {
	if err := checkIdent(table); err != nil {
		return "", err
	}
	id, err := s.client.CreateTable(ctx, table, columns)
	if err != nil {
		return "", err
	}
	s.tables = nil // schema changed
	return id, nil
}

func (s *Service) AddColumn(ctx context.Context, table string, spec domain.ColumnSpec) (string, error) {
	canonical, err := s.ResolveTable(ctx, table)
	if err != nil {
		return "", err
	}
	if spec.Type != "" {
		if err := ValidateColumnType(spec.Type); err != nil {
			return "", err
		}
	}
	id, err := s.client.CreateColumn(ctx, canonical, spec)
	if err != nil {
		return "", err
	}
	delete(s.columns, canonical)
	return id, nil
}

func (s *Service) UpdateColumn(ctx context.Context, table, column string, spec domain.ColumnSpec) error {
	canonical, err := s.ResolveTable(ctx, table)
	if err != nil {
		return err
	}
	col, err := s.ResolveColumn(ctx, canonical, column)
	if err != nil {
		return err
	}
	if spec.Type != "" {
		if err := ValidateColumnType(spec.Type); err != nil {
			return err
		}
	}
	if err := s.client.PatchColumn(ctx, canonical, col.ID, spec); err != nil {
		return err
	}
	delete(s.columns, canonical)
	return nil
}

func (s *Service) DeleteColumn(ctx context.Context, table, column string) error {
	canonical, err := s.ResolveTable(ctx, table)
	if err != nil {
		return err
	}
	col, err := s.ResolveColumn(ctx, canonical, column)
	if err != nil {
		return err
	}
	if err := s.client.DeleteColumn(ctx, canonical, col.ID); err != nil {
		return err
	}
	delete(s.columns, canonical)
	return nil
}

// --- pages / widgets ---

func (s *Service) ListPages(ctx context.Context) ([]domain.Page, error) {
	return s.client.GetPages(ctx)
}

func (s *Service) UpdatePage(ctx context.Context, pageID int, name string) error {
	if name == "" {
		return domain.NewDomainError("grist.UpdatePage", domain.ErrInvalidInput, "empty page name")
	}
	return s.client.PatchPage(ctx, pageID, name)
}

func (s *Service) DeletePage(ctx context.Context, pageID int) error {
	return s.client.DeletePage(ctx, pageID)
}

func (s *Service) ListWidgets(ctx context.Context, pageID int) ([]domain.Widget, error) {
	return s.client.GetWidgets(ctx, pageID)
}

func (s *Service) AddWidget(ctx context.Context, pageID int, spec domain.WidgetSpec) (int, error) {
	if spec.TableID != "" {
		canonical, err := s.ResolveTable(ctx, spec.TableID)
		if err != nil {
			return 0, err
		}
		spec.TableID = canonical
	}
	return s.client.CreateWidget(ctx, pageID, spec)
}

func (s *Service) UpdateWidget(ctx context.Context, pageID, widgetID int, spec domain.WidgetSpec) error {
	if spec.TableID != "" {
		canonical, err := s.ResolveTable(ctx, spec.TableID)
		if err != nil {
			return err
		}
		spec.TableID = canonical
	}
	return s.client.PatchWidget(ctx, pageID, widgetID, spec)
}

func (s *Service) DeleteWidget(ctx context.Context, pageID, widgetID int) error {
	return s.client.DeleteWidget(ctx, pageID, widgetID)
}
