package grist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"grist-assistant/internal/domain"
)

// maxResponseBody is the maximum response body size we read from the
// document API.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

const maxRetries = 2

// Backend holds the long-lived pieces shared by all per-session clients:
// the HTTP client and a circuit breaker protecting the document API.
type Backend struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *slog.Logger
}

// NewBackend creates the shared document API backend.
func NewBackend(baseURL string, timeout time.Duration, logger *slog.Logger) *Backend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "grist-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &Backend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

// Client issues authenticated calls against one document.
type Client struct {
	backend *Backend
	docID   string
	token   string
}

// NewClient binds the shared backend to one document and credential.
// The token is sent as a Bearer header; widget access tokens (prefix
// "grist-widget-") go as an auth query parameter instead, matching how the
// document backend expects embedded-widget credentials.
func NewClient(backend *Backend, docID, token string) *Client {
	return &Client{backend: backend, docID: docID, token: token}
}

func (c *Client) docPath(parts ...string) string {
	p := c.backend.baseURL + "/api/docs/" + url.PathEscape(c.docID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

const widgetTokenPrefix = "grist-widget-"

// do performs one JSON request through the circuit breaker, with a small
// bounded retry on transient failures. out may be nil for calls whose
// response body is irrelevant.
func (c *Client) do(ctx context.Context, method, rawURL string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var respBody []byte
	var err error
	for attempt := 0; ; attempt++ {
		respBody, err = c.backend.breaker.Execute(func() ([]byte, error) {
			return c.doOnce(ctx, method, rawURL, query, payload)
		})
		if err == nil || attempt >= maxRetries || !domain.IsRetryableError(err) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
		}
	}
	if err != nil {
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) doOnce(ctx context.Context, method, rawURL string, query url.Values, payload []byte) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}

	var bearer string
	if strings.HasPrefix(c.token, widgetTokenPrefix) {
		query.Set("auth", strings.TrimPrefix(c.token, widgetTokenPrefix))
	} else {
		bearer = c.token
	}
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.backend.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, mapStatusError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// mapStatusError maps a document API status code + body to a domain error so
// callers can branch on sentinels instead of status codes.
func mapStatusError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("document API error %d: %s", statusCode, truncate(string(body), 512))
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, detail)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrUpstream, detail)
	default:
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, detail)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// --- wire shapes ---

type tableEntry struct {
	ID string `json:"id"`
}

type columnEntry struct {
	ID     string `json:"id"`
	Fields struct {
		Label string `json:"label"`
		Type  string `json:"type"`
	} `json:"fields"`
}

type recordEntry struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
}

type pageEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Pos  int    `json:"pos"`
}

type widgetEntry struct {
	ID     int `json:"id"`
	Fields struct {
		Title   string `json:"title"`
		Type    string `json:"type"`
		TableID string `json:"tableId"`
	} `json:"fields"`
}

// --- tables / columns ---

func (c *Client) GetTables(ctx context.Context) ([]domain.Table, error) {
	var resp struct {
		Tables []tableEntry `json:"tables"`
	}
	if err := c.do(ctx, http.MethodGet, c.docPath("tables"), nil, nil, &resp); err != nil {
		return nil, domain.WrapOp("grist.GetTables", err)
	}
	tables := make([]domain.Table, 0, len(resp.Tables))
	for _, t := range resp.Tables {
		tables = append(tables, domain.Table{ID: t.ID})
	}
	return tables, nil
}

func (c *Client) GetColumns(ctx context.Context, table string) ([]domain.Column, error) {
	var resp struct {
		Columns []columnEntry `json:"columns"`
	}
	if err := c.do(ctx, http.MethodGet, c.docPath("tables", url.PathEscape(table), "columns"), nil, nil, &resp); err != nil {
		return nil, domain.WrapOp("grist.GetColumns", err)
	}
	cols := make([]domain.Column, 0, len(resp.Columns))
	for _, col := range resp.Columns {
		cols = append(cols, domain.Column{ID: col.ID, Label: col.Fields.Label, Type: col.Fields.Type})
	}
	return cols, nil
}

func (c *Client) CreateTable(ctx context.Context, table string, columns []domain.ColumnSpec) (string, error) {
	type colPayload struct {
		ID     string `json:"id"`
		Fields struct {
			Label string `json:"label"`
			Type  string `json:"type,omitempty"`
		} `json:"fields"`
	}
	type tablePayload struct {
		ID      string       `json:"id"`
		Columns []colPayload `json:"columns"`
	}

	payload := tablePayload{ID: table}
	for _, spec := range columns {
		var cp colPayload
		cp.ID = spec.ID
		cp.Fields.Label = spec.Label
		cp.Fields.Type = spec.Type
		payload.Columns = append(payload.Columns, cp)
	}

	var resp struct {
		Tables []tableEntry `json:"tables"`
	}
	body := map[string]any{"tables": []tablePayload{payload}}
	if err := c.do(ctx, http.MethodPost, c.docPath("tables"), nil, body, &resp); err != nil {
		return "", domain.WrapOp("grist.CreateTable", err)
	}
	if len(resp.Tables) == 0 {
		return "", domain.NewDomainError("grist.CreateTable", domain.ErrUpstream, "empty create response")
	}
	return resp.Tables[0].ID, nil
}

func (c *Client) CreateColumn(ctx context.Context, table string, spec domain.ColumnSpec) (string, error) {
	body := map[string]any{
		"columns": []map[string]any{{
			"id": spec.ID,
			"fields": map[string]any{
				"label": spec.Label,
				"type":  spec.Type,
			},
		}},
	}
	var resp struct {
		Columns []struct {
			ID string `json:"id"`
		} `json:"columns"`
	}
	if err := c.do(ctx, http.MethodPost, c.docPath("tables", url.PathEscape(table), "columns"), nil, body, &resp); err != nil {
		return "", domain.WrapOp("grist.CreateColumn", err)
	}
	if len(resp.Columns) == 0 {
		return "", domain.NewDomainError("grist.CreateColumn", domain.ErrUpstream, "empty create response")
	}
	return resp.Columns[0].ID, nil
}

func (c *Client) PatchColumn(ctx context.Context, table, column string, spec domain.ColumnSpec) error {
	fields := map[string]any{}
	if spec.Label != "" {
		fields["label"] = spec.Label
	}
	if spec.Type != "" {
		fields["type"] = spec.Type
	}
	body := map[string]any{
		"columns": []map[string]any{{"id": column, "fields": fields}},
	}
	err := c.do(ctx, http.MethodPatch, c.docPath("tables", url.PathEscape(table), "columns"), nil, body, nil)
	return domain.WrapOp("grist.PatchColumn", err)
}

func (c *Client) DeleteColumn(ctx context.Context, table, column string) error {
	err := c.do(ctx, http.MethodDelete, c.docPath("tables", url.PathEscape(table), "columns", url.PathEscape(column)), nil, nil, nil)
	return domain.WrapOp("grist.DeleteColumn", err)
}

// --- records ---

func (c *Client) GetRecords(ctx context.Context, table string, limit int) ([]domain.Record, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	var resp struct {
		Records []recordEntry `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, c.docPath("tables", url.PathEscape(table), "records"), query, nil, &resp); err != nil {
		return nil, domain.WrapOp("grist.GetRecords", err)
	}
	records := make([]domain.Record, 0, len(resp.Records))
	for _, r := range resp.Records {
		records = append(records, domain.Record{ID: r.ID, Fields: r.Fields})
	}
	return records, nil
}

func (c *Client) CreateRecords(ctx context.Context, table string, records []map[string]any) ([]int, error) {
	payload := make([]map[string]any, 0, len(records))
	for _, fields := range records {
		payload = append(payload, map[string]any{"fields": fields})
	}
	var resp struct {
		Records []struct {
			ID int `json:"id"`
		} `json:"records"`
	}
	if err := c.do(ctx, http.MethodPost, c.docPath("tables", url.PathEscape(table), "records"), nil, map[string]any{"records": payload}, &resp); err != nil {
		return nil, domain.WrapOp("grist.CreateRecords", err)
	}
	ids := make([]int, 0, len(resp.Records))
	for _, r := range resp.Records {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// PatchRecords updates rows; records is parallel to ids.
func (c *Client) PatchRecords(ctx context.Context, table string, ids []int, records []map[string]any) error {
	payload := make([]map[string]any, 0, len(ids))
	for i, id := range ids {
		payload = append(payload, map[string]any{"id": id, "fields": records[i]})
	}
	err := c.do(ctx, http.MethodPatch, c.docPath("tables", url.PathEscape(table), "records"), nil, map[string]any{"records": payload}, nil)
	return domain.WrapOp("grist.PatchRecords", err)
}

// DeleteRecords removes rows by id. The document API exposes deletion as a
// data action, not a DELETE verb.
func (c *Client) DeleteRecords(ctx context.Context, table string, ids []int) error {
	err := c.do(ctx, http.MethodPost, c.docPath("tables", url.PathEscape(table), "data", "delete"), nil, ids, nil)
	return domain.WrapOp("grist.DeleteRecords", err)
}

// --- SQL ---

// SQL runs a read-only query through the document's SQL endpoint.
func (c *Client) SQL(ctx context.Context, query string) ([]map[string]any, error) {
	var resp struct {
		Records []struct {
			Fields map[string]any `json:"fields"`
		} `json:"records"`
	}
	if err := c.do(ctx, http.MethodPost, c.docPath("sql"), nil, map[string]any{"sql": query}, &resp); err != nil {
		return nil, domain.WrapOp("grist.SQL", err)
	}
	rows := make([]map[string]any, 0, len(resp.Records))
	for _, r := range resp.Records {
		rows = append(rows, r.Fields)
	}
	return rows, nil
}

// --- pages / widgets ---

func (c *Client) GetPages(ctx context.Context) ([]domain.Page, error) {
	var resp struct {
		Pages []pageEntry `json:"pages"`
	}
	if err := c.do(ctx, http.MethodGet, c.docPath("pages"), nil, nil, &resp); err != nil {
		return nil, domain.WrapOp("grist.GetPages", err)
	}
	pages := make([]domain.Page, 0, len(resp.Pages))
	for _, p := range resp.Pages {
		pages = append(pages, domain.Page{ID: p.ID, Name: p.Name, Pos: p.Pos})
	}
	return pages, nil
}

func (c *Client) PatchPage(ctx context.Context, pageID int, name string) error {
	err := c.do(ctx, http.MethodPatch, c.docPath("pages", fmt.Sprintf("%d", pageID)), nil, map[string]any{"name": name}, nil)
	return domain.WrapOp("grist.PatchPage", err)
}

func (c *Client) DeletePage(ctx context.Context, pageID int) error {
	err := c.do(ctx, http.MethodDelete, c.docPath("pages", fmt.Sprintf("%d", pageID)), nil, nil, nil)
	return domain.WrapOp("grist.DeletePage", err)
}

func (c *Client) GetWidgets(ctx context.Context, pageID int) ([]domain.Widget, error) {
	var resp struct {
		Widgets []widgetEntry `json:"widgets"`
	}
	if err := c.do(ctx, http.MethodGet, c.docPath("pages", fmt.Sprintf("%d", pageID), "widgets"), nil, nil, &resp); err != nil {
		return nil, domain.WrapOp("grist.GetWidgets", err)
	}
	widgets := make([]domain.Widget, 0, len(resp.Widgets))
	for _, w := range resp.Widgets {
		widgets = append(widgets, domain.Widget{ID: w.ID, Title: w.Fields.Title, Type: w.Fields.Type, TableID: w.Fields.TableID})
	}
	return widgets, nil
}

func (c *Client) CreateWidget(ctx context.Context, pageID int, spec domain.WidgetSpec) (int, error) {
	fields := map[string]any{
		"title":   spec.Title,
		"type":    spec.Type,
		"tableId": spec.TableID,
	}
	if spec.CustomWidgetURL != "" {
		fields["customViewUrl"] = spec.CustomWidgetURL
	}
	body := map[string]any{
		"widgets": []map[string]any{{"fields": fields}},
	}
	var resp struct {
		Widgets []struct {
			ID int `json:"id"`
		} `json:"widgets"`
	}
	if err := c.do(ctx, http.MethodPost, c.docPath("pages", fmt.Sprintf("%d", pageID), "widgets"), nil, body, &resp); err != nil {
		return 0, domain.WrapOp("grist.CreateWidget", err)
	}
	if len(resp.Widgets) == 0 {
		return 0, domain.NewDomainError("grist.CreateWidget", domain.ErrUpstream, "empty create response")
	}
	return resp.Widgets[0].ID, nil
}

func (c *Client) PatchWidget(ctx context.Context, pageID, widgetID int, spec domain.WidgetSpec) error {
	fields := map[string]any{}
	if spec.Title != "" {
		fields["title"] = spec.Title
	}
	if spec.Type != "" {
		fields["type"] = spec.Type
	}
	if spec.TableID != "" {
		fields["tableId"] = spec.TableID
	}
	body := map[string]any{
		"widgets": []map[string]any{{"id": widgetID, "fields": fields}},
	}
	err := c.do(ctx, http.MethodPatch, c.docPath("pages", fmt.Sprintf("%d", pageID), "widgets"), nil, body, nil)
	return domain.WrapOp("grist.PatchWidget", err)
}

func (c *Client) DeleteWidget(ctx context.Context, pageID, widgetID int) error {
	err := c.do(ctx, http.MethodDelete, c.docPath("pages", fmt.Sprintf("%d", pageID), "widgets", fmt.Sprintf("%d", widgetID)), nil, nil, nil)
	return domain.WrapOp("grist.DeleteWidget", err)
}
