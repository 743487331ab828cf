package schema

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyType(t *testing.T) {
	tests := []struct {
		typ  string
		want Category
	}{
		{"String", CategoryString},
		{"LowCardinality(String)", CategoryString},
		{"Nullable(String)", CategoryString},
		{"LowCardinality(Nullable(String))", CategoryString},
		{"FixedString(16)", CategoryNone},
		{"UInt8", CategoryNumeric},
		{"Int64", CategoryNumeric},
		{"Float64", CategoryNumeric},
		{"Decimal(18, 2)", CategoryNumeric},
		{"Nullable(UInt32)", CategoryNumeric},
		{"Date", CategoryDatetime},
		{"DateTime", CategoryDatetime},
		{"DateTime64(3)", CategoryDatetime},
		{"Array(String)", CategoryNone},
		{"UUID", CategoryNone},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyType(tt.typ))
		})
	}
}

func TestColumnCategoryEnumWins(t *testing.T) {
	c := ColumnInfo{Name: "action", Type: "LowCardinality(String)", EnumValues: []string{"opened"}}
	assert.Equal(t, CategoryEnum, c.Category())

	c.EnumValues = nil
	assert.Equal(t, CategoryString, c.Category())
}

func TestEnumValuesFromType(t *testing.T) {
	got := EnumValuesFromType("Enum8('PushEvent' = 1, 'WatchEvent' = 2, 'it\\'s' = -3)")
	assert.Equal(t, []string{"PushEvent", "WatchEvent", "it's"}, got)

	assert.Nil(t, EnumValuesFromType("String"))
	assert.Equal(t, []string{"a"}, EnumValuesFromType("LowCardinality(Enum16('a' = 300))"))
}

func TestGitHubEventsDefaults(t *testing.T) {
	s := GitHubEvents()
	require.NoError(t, s.Validate())

	assert.Len(t, s.Columns, 11)
	assert.Len(t, s.ColumnsIn(CategoryString), 5)
	assert.Equal(t, []string{"number", "additions", "deletions", "is_private"}, s.ColumnsIn(CategoryNumeric))
	assert.Equal(t, []string{"created_at"}, s.ColumnsIn(CategoryDatetime))
	assert.Equal(t, []string{"type"}, s.ColumnsIn(CategoryEnum))
	assert.Len(t, DefaultEventTypes, 16)
	assert.Len(t, DefaultActionValues, 9)

	typ, ok := s.Column("type")
	require.True(t, ok)
	assert.Equal(t, DefaultEventTypes, EnumValuesFromType(typ.Type))
}

func TestParseTOML(t *testing.T) {
	src := `
table_name = "events"

[[columns]]
name = "repo"
type = "String"

[[columns]]
name = "kind"
type = "Enum8('A' = 1, 'B' = 2)"
`
	s, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "events", s.TableName)
	require.Len(t, s.Columns, 2)
	assert.Equal(t, []string{"A", "B"}, s.Columns[1].EnumValues)
	assert.Equal(t, CategoryEnum, s.Columns[1].Category())
}

func TestParseTOMLInvalid(t *testing.T) {
	_, err := Parse(strings.NewReader(`table_name = ""`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table_name is required")
	assert.Contains(t, err.Error(), "at least one column")

	_, err = Parse(strings.NewReader(`table_name = [`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode error")
}

func TestValidateDuplicateColumn(t *testing.T) {
	s := TableSchema{TableName: "t", Columns: []ColumnInfo{{Name: "a", Type: "String"}, {Name: "a", Type: "UInt8"}}}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate column "a"`)
}

func TestCache(t *testing.T) {
	calls := 0
	fail := true
	c := NewCache(func(ctx context.Context) (TableSchema, error) {
		calls++
		if fail {
			return TableSchema{}, errors.New("boom")
		}
		return TableSchema{TableName: "t", Columns: []ColumnInfo{{Name: "k", Type: "Enum8('x' = 1)"}}}, nil
	})
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.Error(t, err)

	fail = false
	s, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, s.Columns[0].EnumValues, "cached value is normalized")

	_, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	c.Invalidate()
	_, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestStaticCache(t *testing.T) {
	c := Static(GitHubEvents())
	c.Invalidate()
	s, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultTableName, s.TableName)
}

func TestHint(t *testing.T) {
	assert.Equal(t, "No data available.", TableSchema{}.Hint())
	s := TableSchema{TableName: "t", Columns: []ColumnInfo{{Name: "a"}, {Name: "b"}}}
	assert.Equal(t, "Available data: t (a, b)", s.Hint())
}
