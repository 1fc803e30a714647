package airtable

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hazyhaar/tagqa/connectivity"
	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// Record is one Airtable row.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// String returns a field as text. Lists of text (lookups, multiple
// selects) are joined with newlines. Missing or non-text fields give "".
func (r Record) String(field string) string {
	switch v := r.Fields[field].(type) {
	case string:
		return v
	case []any:
		var parts []string
		for _, e := range v {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// Query narrows a record listing.
type Query struct {
	View       string
	Formula    string // filterByFormula
	Fields     []string
	PageSize   int // max 100
	MaxRecords int
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.View != "" {
		v.Set("view", q.View)
	}
	if q.Formula != "" {
		v.Set("filterByFormula", q.Formula)
	}
	for _, f := range q.Fields {
		v.Add("fields[]", f)
	}
	if q.PageSize > 0 {
		v.Set("pageSize", itoa(min(q.PageSize, 100)))
	}
	if q.MaxRecords > 0 {
		v.Set("maxRecords", itoa(q.MaxRecords))
	}
	return v
}

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// FetchRecords lists every record of a table view, following pagination.
func (c *Client) FetchRecords(ctx context.Context, baseID, tableID string, q Query) ([]Record, error) {
	var all []Record
	offset := ""
	for {
		v := q.values()
		if offset != "" {
			v.Set("offset", offset)
		}
		var page listResponse
		if err := c.read(ctx, "fetch records", tablePath(baseID, tableID), v, &page); err != nil {
			return all, err
		}
		all = append(all, page.Records...)
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}
	c.cfg.Logger.Debug("airtable: records fetched", "base", baseID, "table", tableID, "view", q.View, "count", len(all))
	return all, nil
}

// Update sets fields on one record.
type Update struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// UpdateRecords patches up to MaxBatch records in one request. It is never
// retried: the caller decides what to re-submit.
func (c *Client) UpdateRecords(ctx context.Context, baseID, tableID string, updates []Update) ([]Record, error) {
	if len(updates) > MaxBatch {
		return nil, ErrBatchTooLarge
	}
	if len(updates) == 0 {
		return nil, nil
	}
	body := struct {
		Records []Update `json:"records"`
	}{updates}

	var out listResponse
	err := c.breaker.Do(ctx, "airtable", func(ctx context.Context) error {
		return c.do(ctx, "update records", http.MethodPatch, tablePath(baseID, tableID), nil, body, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Records, nil
}

// ResultStore writes examination results into one table.
type ResultStore struct {
	client  *Client
	baseID  string
	tableID string
}

// ResultStore returns a store writing into baseID/tableID.
func (c *Client) ResultStore(baseID, tableID string) *ResultStore {
	return &ResultStore{client: c, baseID: baseID, tableID: tableID}
}

// UpdateResults writes one batch of verdicts, each into its own field.
func (s *ResultStore) UpdateResults(ctx context.Context, batch []report.ResultRecord) error {
	updates := make([]Update, len(batch))
	for i, r := range batch {
		updates[i] = Update{ID: r.ID, Fields: map[string]any{r.Field: r.Value}}
	}
	_, err := s.client.UpdateRecords(ctx, s.baseID, s.tableID, updates)
	return err
}

// Field is a table column.
type Field struct {
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
}

type tablesResponse struct {
	Tables []struct {
		ID     string  `json:"id"`
		Name   string  `json:"name"`
		Fields []Field `json:"fields"`
	} `json:"tables"`
}

// ListFields returns the columns of a table, addressed by id or name.
func (c *Client) ListFields(ctx context.Context, baseID, tableID string) ([]Field, error) {
	_, fields, err := c.table(ctx, baseID, tableID)
	return fields, err
}

// table resolves a table id or name to its id and columns.
func (c *Client) table(ctx context.Context, baseID, tableID string) (string, []Field, error) {
	var resp tablesResponse
	path := "/meta/bases/" + url.PathEscape(baseID) + "/tables"
	if err := c.read(ctx, "list fields", path, nil, &resp); err != nil {
		return "", nil, err
	}
	for _, t := range resp.Tables {
		if t.ID == tableID || t.Name == tableID {
			return t.ID, t.Fields, nil
		}
	}
	return "", nil, connectivity.Permanent(&StoreError{Op: "list fields", Status: http.StatusNotFound, Message: "table " + tableID + " not found"})
}

// CreateField adds a column to a table.
func (c *Client) CreateField(ctx context.Context, baseID, tableID string, f Field) (*Field, error) {
	path := "/meta/bases/" + url.PathEscape(baseID) + "/tables/" + url.PathEscape(tableID) + "/fields"
	var out Field
	err := c.breaker.Do(ctx, "airtable", func(ctx context.Context) error {
		return c.do(ctx, "create field", http.MethodPost, path, nil, f, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckboxField is the column type used for verdicts.
func CheckboxField(name string) Field {
	return Field{Name: name, Type: "checkbox", Options: map[string]any{"icon": "check", "color": "greenBright"}}
}

// EnsureField returns the column called f.Name, creating it when missing.
func (c *Client) EnsureField(ctx context.Context, baseID, tableID string, f Field) (*Field, bool, error) {
	id, fields, err := c.table(ctx, baseID, tableID)
	if err != nil {
		return nil, false, err
	}
	for _, existing := range fields {
		if existing.Name == f.Name {
			return &existing, false, nil
		}
	}
	created, err := c.CreateField(ctx, baseID, id, f)
	if err != nil {
		return nil, false, fmt.Errorf("airtable: ensure field %q: %w", f.Name, err)
	}
	c.cfg.Logger.Info("airtable: field created", "table", tableID, "field", f.Name)
	return created, true, nil
}
