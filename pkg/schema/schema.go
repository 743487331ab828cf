// Package schema describes the single table the query pipeline is allowed to
// touch: its name, its columns, their ClickHouse types and, for enum columns,
// the closed set of values they carry.
package schema

import (
	"regexp"
	"strings"
)

// DefaultTableName is used whenever a schema arrives without a table name.
const DefaultTableName = "github_events"

// Category is the semantic bucket a column falls into for grammar purposes.
type Category string

const (
	CategoryNone     Category = ""
	CategoryString   Category = "string"
	CategoryNumeric  Category = "numeric"
	CategoryDatetime Category = "datetime"
	CategoryEnum     Category = "enum"
)

// ColumnInfo is one column of a TableSchema.
type ColumnInfo struct {
	Name       string   `json:"name" toml:"name"`
	Type       string   `json:"type" toml:"type"`
	EnumValues []string `json:"enum_values,omitempty" toml:"enum_values"`
}

// TableSchema is the table handed to the grammar materializer and verifier.
type TableSchema struct {
	TableName string       `json:"table_name" toml:"table_name"`
	Columns   []ColumnInfo `json:"columns" toml:"columns"`
}

// Category classifies the column. Enum values win over the type string; a
// type that matches no family yields CategoryNone and the column is left out
// of every grammar alternative.
func (c ColumnInfo) Category() Category {
	if len(c.EnumValues) > 0 {
		return CategoryEnum
	}
	return ClassifyType(c.Type)
}

// ClassifyType maps a ClickHouse type string to its category.
func ClassifyType(typ string) Category {
	switch strings.TrimSpace(typ) {
	case "String", "LowCardinality(String)", "Nullable(String)", "LowCardinality(Nullable(String))":
		return CategoryString
	}

	base := unwrapType(typ)
	switch {
	case strings.HasPrefix(base, "UInt"),
		strings.HasPrefix(base, "Int"),
		strings.HasPrefix(base, "Float"),
		strings.HasPrefix(base, "Decimal"):
		return CategoryNumeric
	case strings.HasPrefix(base, "Date"):
		return CategoryDatetime
	}
	return CategoryNone
}

// unwrapType strips Nullable(...) and LowCardinality(...) wrappers.
func unwrapType(typ string) string {
	t := strings.TrimSpace(typ)
	for {
		switch {
		case strings.HasPrefix(t, "Nullable(") && strings.HasSuffix(t, ")"):
			t = t[len("Nullable(") : len(t)-1]
		case strings.HasPrefix(t, "LowCardinality(") && strings.HasSuffix(t, ")"):
			t = t[len("LowCardinality(") : len(t)-1]
		default:
			return t
		}
	}
}

var enumValueRe = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'\s*=\s*-?\d+`)

// EnumValuesFromType extracts the value names of an Enum8/Enum16 type string,
// e.g. Enum8('PushEvent' = 1, 'WatchEvent' = 2). Other types return nil.
func EnumValuesFromType(typ string) []string {
	base := unwrapType(typ)
	if !strings.HasPrefix(base, "Enum8(") && !strings.HasPrefix(base, "Enum16(") {
		return nil
	}
	var values []string
	for _, m := range enumValueRe.FindAllStringSubmatch(base, -1) {
		values = append(values, strings.ReplaceAll(m[1], `\'`, `'`))
	}
	return values
}

// Column returns the named column, if present.
func (s TableSchema) Column(name string) (ColumnInfo, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// ColumnsIn returns the column names of the given category in schema order.
func (s TableSchema) ColumnsIn(cat Category) []string {
	var names []string
	for _, c := range s.Columns {
		if c.Category() == cat {
			names = append(names, c.Name)
		}
	}
	return names
}

// Hint is a short user-facing summary of the queryable data.
func (s TableSchema) Hint() string {
	if len(s.Columns) == 0 {
		return "No data available."
	}
	names := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		names = append(names, c.Name)
	}
	return "Available data: " + s.TableName + " (" + strings.Join(names, ", ") + ")"
}
