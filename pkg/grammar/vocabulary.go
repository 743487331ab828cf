package grammar

import (
	"sort"

	"github.com/raindrop/eventsql/pkg/schema"
)

// Fixed vocabulary shared by every schema. Prompts and eval fixtures depend on
// these exact spellings.
var (
	AggregateFunctions = []string{"count", "sum", "avg", "min", "max", "uniq", "uniqExact"}
	DateTruncFunctions = []string{"toStartOfHour", "toStartOfDay", "toStartOfWeek", "toStartOfMonth", "toDate"}
	// CompareOps is ordered so two-character operators are tried before their
	// one-character prefixes.
	CompareOps    = []string{"!=", ">=", "<=", "=", ">", "<"}
	IntervalUnits = []string{"HOUR", "DAY", "WEEK", "MONTH"}
	SortDirs      = []string{"ASC", "DESC"}
)

// Fallback literals substituted for an empty category. Each is a constant
// expression that type-checks wherever its category can appear.
const (
	FallbackStringColumn   = "''"
	FallbackNumericColumn  = "0"
	FallbackDatetimeColumn = "now()"
	FallbackColumnRef      = "1"
)

// Vocabulary is the schema-dependent half of the grammar. The materializer
// renders it into grammar text and the Parser matches against it, so both
// directions always agree on the same alternatives.
type Vocabulary struct {
	TableName       string
	StringColumns   []string
	NumericColumns  []string
	DatetimeColumns []string
	ColumnRefs      []string
	EventTypes      []string
	ActionValues    []string
}

// Resolve classifies the schema's columns and fills every list, substituting
// a fallback literal where a category is empty.
func Resolve(s schema.TableSchema) Vocabulary {
	strs := s.ColumnsIn(schema.CategoryString)
	nums := s.ColumnsIn(schema.CategoryNumeric)
	dts := s.ColumnsIn(schema.CategoryDatetime)
	enums := s.ColumnsIn(schema.CategoryEnum)

	var refs []string
	refs = append(refs, strs...)
	refs = append(refs, nums...)
	refs = append(refs, dts...)
	refs = append(refs, enums...)

	table := s.TableName
	if table == "" {
		table = schema.DefaultTableName
	}

	return Vocabulary{
		TableName:       table,
		StringColumns:   orFallback(dedupe(strs), FallbackStringColumn),
		NumericColumns:  orFallback(dedupe(nums), FallbackNumericColumn),
		DatetimeColumns: orFallback(dedupe(dts), FallbackDatetimeColumn),
		ColumnRefs:      orFallback(dedupe(refs), FallbackColumnRef),
		EventTypes:      eventTypes(s),
		ActionValues:    append([]string(nil), schema.DefaultActionValues...),
	}
}

func eventTypes(s schema.TableSchema) []string {
	if c, ok := s.Column("type"); ok && c.Category() == schema.CategoryEnum {
		if vals := dedupe(c.EnumValues); len(vals) > 0 {
			return vals
		}
	}
	return append([]string(nil), schema.DefaultEventTypes...)
}

func orFallback(list []string, fallback string) []string {
	if len(list) == 0 {
		return []string{fallback}
	}
	return list
}

// dedupe drops empty strings and repeats, keeping first occurrence order.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// longestFirst returns a copy sorted by descending length; ties keep their
// original order.
func longestFirst(in []string) []string {
	out := dedupe(in)
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i]) > len(out[j])
	})
	return out
}
