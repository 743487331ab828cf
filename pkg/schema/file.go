package schema

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// LoadFile reads a TOML schema file:
//
//	table_name = "github_events"
//
//	[[columns]]
//	name = "type"
//	type = "Enum8('PushEvent' = 1, 'WatchEvent' = 2)"
func LoadFile(path string) (TableSchema, error) {
	f, err := os.Open(path)
	if err != nil {
		return TableSchema{}, fmt.Errorf("schema: open file %q: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes a TOML schema and normalizes it.
func Parse(r io.Reader) (TableSchema, error) {
	var s TableSchema
	if _, err := toml.NewDecoder(r).Decode(&s); err != nil {
		return TableSchema{}, fmt.Errorf("schema: decode error: %w", err)
	}
	s = Normalize(s)
	if err := s.Validate(); err != nil {
		return TableSchema{}, err
	}
	return s, nil
}

// Normalize fills enum values from Enum8/Enum16 type strings where the column
// does not list them explicitly.
func Normalize(s TableSchema) TableSchema {
	out := TableSchema{TableName: s.TableName, Columns: make([]ColumnInfo, 0, len(s.Columns))}
	for _, c := range s.Columns {
		if len(c.EnumValues) == 0 {
			c.EnumValues = EnumValuesFromType(c.Type)
		}
		out.Columns = append(out.Columns, c)
	}
	return out
}

// Validate checks the structural invariants of a schema.
func (s TableSchema) Validate() error {
	var errs []error
	if s.TableName == "" {
		errs = append(errs, errors.New("schema: table_name is required"))
	}
	if len(s.Columns) == 0 {
		errs = append(errs, errors.New("schema: at least one column is required"))
	}
	seen := make(map[string]bool, len(s.Columns))
	for i, c := range s.Columns {
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("schema: column %d has no name", i))
			continue
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("schema: duplicate column %q", c.Name))
		}
		seen[c.Name] = true
	}
	return errors.Join(errs...)
}
