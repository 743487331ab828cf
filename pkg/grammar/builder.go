// Package grammar holds both sides of the SQL safety boundary: the Lark
// grammar handed to the constrained decoder, and a recursive-descent Parser
// that re-checks the decoder's output against the same language.
package grammar

import (
	"fmt"
	"strings"

	"github.com/raindrop/eventsql/pkg/schema"
)

// ToolFormat is the custom-tool format envelope of the OpenAI Responses API.
type ToolFormat struct {
	Type       string `json:"type"`
	Syntax     string `json:"syntax"`
	Definition string `json:"definition"`
}

// BuildGrammar materializes Template for the given schema. It never fails:
// empty categories get a fallback literal instead of an empty alternation.
func BuildGrammar(s schema.TableSchema) string {
	v := Resolve(s)
	r := strings.NewReplacer(
		phTable, v.TableName,
		phStringColumns, alternation(v.StringColumns),
		phNumericColumns, alternation(v.NumericColumns),
		phDatetimeCols, alternation(v.DatetimeColumns),
		phColumnRef, alternation(v.ColumnRefs),
		phEventTypes, alternation(v.EventTypes),
		phActionValues, alternation(v.ActionValues),
	)
	return r.Replace(Template)
}

// BuildGrammarForOpenAI wraps BuildGrammar in the grammar tool envelope.
func BuildGrammarForOpenAI(s schema.TableSchema) ToolFormat {
	return ToolFormat{
		Type:       "grammar",
		Syntax:     "lark",
		Definition: BuildGrammar(s),
	}
}

func alternation(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = larkLiteral(v)
	}
	return strings.Join(quoted, " | ")
}

func larkLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// DescribeGrammarCapabilities renders what the grammar for s can express. The
// text doubles as the grammar tool's description.
func DescribeGrammarCapabilities(s schema.TableSchema) string {
	v := Resolve(s)
	var sb strings.Builder

	sb.WriteString("Generates read-only ClickHouse SQL queries.\n\n")
	sb.WriteString(fmt.Sprintf("Table: %s\n", v.TableName))

	sb.WriteString("\nColumns:\n")
	for _, cat := range []schema.Category{schema.CategoryString, schema.CategoryNumeric, schema.CategoryDatetime, schema.CategoryEnum} {
		names := s.ColumnsIn(cat)
		if len(names) == 0 {
			sb.WriteString(fmt.Sprintf("- %s: (none)\n", cat))
			continue
		}
		typed := make([]string, 0, len(names))
		for _, n := range names {
			c, _ := s.Column(n)
			typed = append(typed, fmt.Sprintf("%s (%s)", n, shortType(c.Type)))
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n", cat, strings.Join(typed, ", ")))
	}
	if skipped := s.ColumnsIn(schema.CategoryNone); len(skipped) > 0 {
		sb.WriteString(fmt.Sprintf("- not queryable: %s\n", strings.Join(skipped, ", ")))
	}

	sb.WriteString(fmt.Sprintf("\nEvent types (type): %s\n", strings.Join(v.EventTypes, ", ")))
	sb.WriteString(fmt.Sprintf("Action values (action): %s\n", strings.Join(v.ActionValues, ", ")))

	sb.WriteString("\nSupported operations:\n")
	sb.WriteString(fmt.Sprintf("- SELECT columns, aggregates AS alias (%s)\n", strings.Join(AggregateFunctions, ", ")))
	sb.WriteString(fmt.Sprintf("- Time buckets AS alias (%s)\n", strings.Join(DateTruncFunctions, ", ")))
	sb.WriteString(fmt.Sprintf("- WHERE conditions joined by AND: string =, LIKE '%%...%%', IN (...); numeric %s; datetime >= now() - INTERVAL n %s or BETWEEN two dates; type = / type IN / action =\n",
		strings.Join(CompareOps, " "), strings.Join(IntervalUnits, "|")))
	sb.WriteString("- GROUP BY columns, time buckets or aliases\n")
	sb.WriteString("- HAVING one aggregate comparison\n")
	sb.WriteString("- ORDER BY columns, time buckets or aliases (ASC/DESC)\n")
	sb.WriteString("- LIMIT up to 999999\n\n")
	sb.WriteString("Not supported: joins, subqueries, SELECT *, CTEs, multiple statements, writes.\n\n")
	sb.WriteString("YOU MUST generate syntactically valid SQL that conforms to the grammar.")

	return sb.String()
}

// shortType collapses long Enum type strings for display.
func shortType(typ string) string {
	if i := strings.Index(typ, "("); i > 0 && strings.HasPrefix(typ, "Enum") {
		return typ[:i]
	}
	return typ
}
