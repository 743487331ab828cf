// Package clickhouse executes verified queries against ClickHouse through its
// MySQL-compatible interface (port 9004 by default).
package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/raindrop/eventsql/pkg/resultset"
	"github.com/raindrop/eventsql/pkg/schema"
)

// Client wraps a database/sql pool speaking the MySQL wire protocol.
type Client struct {
	db *sql.DB
}

// Open connects to ClickHouse and pings it to test the connection.
func Open(ctx context.Context, dsn string) (*Client, error) {
	cfg, err := connectorConfig(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector: %w", err)
	}
	db := sql.OpenDB(connector)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping clickhouse: %v; additionally failed to close connection: %w", pingErr, closeErr)
		}
		return nil, fmt.Errorf("failed to ping clickhouse: %w", pingErr)
	}
	return &Client{db: db}, nil
}

// connectorConfig parses dsn and forces client-side parameter interpolation:
// the ClickHouse MySQL interface does not implement server-side prepared
// statements.
func connectorConfig(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid clickhouse dsn: %w", err)
	}
	cfg.InterpolateParams = true
	return cfg, nil
}

// Close closes the pool.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Execute runs sql and collects every row.
func (c *Client) Execute(ctx context.Context, query string) (*resultset.Result, error) {
	query = strings.TrimSuffix(strings.TrimSpace(query), ";")
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}
	columns := make([]string, len(types))
	for i, ct := range types {
		columns[i] = ct.Name()
	}

	res := &resultset.Result{Columns: columns, Data: []map[string]any{}}
	raw := make([]sql.RawBytes, len(columns))
	dest := make([]any, len(columns))
	for i := range raw {
		dest[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, ct := range types {
			row[columns[i]] = convertValue(ct.DatabaseTypeName(), raw[i])
		}
		res.Data = append(res.Data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	res.Rows = len(res.Data)
	return res, nil
}

// convertValue turns the text-protocol bytes into a float64 for numeric
// columns and a string otherwise. NULL becomes nil.
func convertValue(dbType string, b sql.RawBytes) any {
	if b == nil {
		return nil
	}
	s := string(b)
	if isNumericType(dbType) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

func isNumericType(dbType string) bool {
	t := strings.ToUpper(dbType)
	return strings.Contains(t, "INT") || t == "DOUBLE" || t == "FLOAT" || t == "DECIMAL"
}

// FetchSchema introspects table from system.columns.
func (c *Client) FetchSchema(ctx context.Context, table string) (schema.TableSchema, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT name, type FROM system.columns WHERE database = currentDatabase() AND table = ? ORDER BY position",
		table)
	if err != nil {
		return schema.TableSchema{}, fmt.Errorf("failed to query system.columns: %w", err)
	}
	defer rows.Close()

	s := schema.TableSchema{TableName: table}
	for rows.Next() {
		var col schema.ColumnInfo
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return schema.TableSchema{}, fmt.Errorf("failed to scan column: %w", err)
		}
		s.Columns = append(s.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return schema.TableSchema{}, fmt.Errorf("failed to read columns: %w", err)
	}
	if len(s.Columns) == 0 {
		return schema.TableSchema{}, fmt.Errorf("table %q not found", table)
	}
	return schema.Normalize(s), nil
}

// SchemaLoader adapts FetchSchema to a schema.Loader.
func (c *Client) SchemaLoader(table string) schema.Loader {
	return func(ctx context.Context) (schema.TableSchema, error) {
		return c.FetchSchema(ctx, table)
	}
}
