package tinybird

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/raindrop/eventsql/pkg/resultset"
	"github.com/raindrop/eventsql/pkg/schema"
)

type Client struct {
	host       string
	token      string
	httpClient *http.Client
}

type Response struct {
	Meta       []map[string]string    `json:"meta"`
	Data       []map[string]any       `json:"data"`
	Rows       int                    `json:"rows"`
	Statistics map[string]interface{} `json:"statistics"`
}

func NewClient(host, token string) *Client {
	return &Client{
		host:       strings.TrimSuffix(host, "/"),
		token:      token,
		httpClient: http.DefaultClient,
	}
}

// WithHTTPClient replaces the HTTP client (tests point it at httptest servers).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Execute runs sql through the Tinybird SQL API.
func (c *Client) Execute(ctx context.Context, sql string) (*resultset.Result, error) {
	// Strip trailing semicolon - Tinybird doesn't like it with FORMAT JSON
	sql = strings.TrimSuffix(strings.TrimSpace(sql), ";")
	query := fmt.Sprintf("%s FORMAT JSON", sql)
	reqURL := fmt.Sprintf("%s/v0/sql?q=%s", c.host, url.QueryEscape(query))

	var result Response
	if err := c.get(ctx, reqURL, &result); err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(result.Meta))
	for _, m := range result.Meta {
		columns = append(columns, m["name"])
	}
	return &resultset.Result{Columns: columns, Data: result.Data, Rows: result.Rows}, nil
}

// FetchSchema fetches the named datasource from the Tinybird API.
func (c *Client) FetchSchema(ctx context.Context, table string) (schema.TableSchema, error) {
	var result struct {
		Datasources []struct {
			Name    string `json:"name"`
			Columns []struct {
				Name string `json:"name"`
				Type string `json:"type"`
			} `json:"columns"`
		} `json:"datasources"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/v0/datasources", c.host), &result); err != nil {
		return schema.TableSchema{}, fmt.Errorf("failed to fetch datasources: %w", err)
	}

	for _, ds := range result.Datasources {
		if ds.Name != table {
			continue
		}
		s := schema.TableSchema{TableName: ds.Name}
		for _, col := range ds.Columns {
			s.Columns = append(s.Columns, schema.ColumnInfo{Name: col.Name, Type: col.Type})
		}
		return schema.Normalize(s), nil
	}
	return schema.TableSchema{}, fmt.Errorf("datasource %q not found", table)
}

// SchemaLoader adapts FetchSchema to a schema.Loader.
func (c *Client) SchemaLoader(table string) schema.Loader {
	return func(ctx context.Context) (schema.TableSchema, error) {
		return c.FetchSchema(ctx, table)
	}
}

func (c *Client) get(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tinybird error (%d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
