// Package render writes query results for terminals and scripts.
//
// Supported formats:
//   - table: aligned ASCII table
//   - json: JSON Lines, one object per row
//   - csv: header row plus one record per row
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/raindrop/eventsql/pkg/resultset"
)

// Formatter writes a result in one output format.
type Formatter interface {
	Format(res *resultset.Result) error
}

// New returns the formatter for format, writing to w.
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case "", "table":
		return &TableFormatter{writer: w}, nil
	case "json":
		return &JSONFormatter{writer: w}, nil
	case "csv":
		return &CSVFormatter{writer: w}, nil
	}
	return nil, fmt.Errorf("unknown format %q (want table, json or csv)", format)
}

// TableFormatter renders rows as an ASCII table with a row-count footer.
type TableFormatter struct {
	writer io.Writer
}

func (t *TableFormatter) Format(res *resultset.Result) error {
	columns := res.ColumnNames()

	table := tablewriter.NewWriter(t.writer)
	table.SetHeader(columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, row := range res.Data {
		table.Append(record(columns, row))
	}
	table.Render()

	_, err := fmt.Fprintf(t.writer, "(%d rows)\n", res.Rows)
	return err
}

// JSONFormatter outputs rows as JSON Lines format
type JSONFormatter struct {
	writer io.Writer
}

func (j *JSONFormatter) Format(res *resultset.Result) error {
	encoder := json.NewEncoder(j.writer)
	for _, row := range res.Data {
		if err := encoder.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

// CSVFormatter outputs rows as CSV with a header row.
type CSVFormatter struct {
	writer io.Writer
}

func (c *CSVFormatter) Format(res *resultset.Result) error {
	columns := res.ColumnNames()
	csvWriter := csv.NewWriter(c.writer)

	if err := csvWriter.Write(columns); err != nil {
		return err
	}
	for _, row := range res.Data {
		if err := csvWriter.Write(record(columns, row)); err != nil {
			return err
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV writer: %w", err)
	}
	return nil
}

func record(columns []string, row map[string]any) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = formatValue(row[col])
	}
	return out
}

// formatValue converts a value to its display string
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprintf("%v", v)
}
