// Package validator runs best-effort semantic checks on generated SQL. It is a
// second opinion behind the grammar verifier, never the safety boundary: a
// check that cannot run reports a warning instead of failing the query.
package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/raindrop/eventsql/pkg/grammar"
	"github.com/raindrop/eventsql/pkg/schema"
)

type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// MaxLimit is the largest LIMIT that does not produce a warning.
const MaxLimit = 10000

// Issue is a single finding.
type Issue struct {
	Level   Level  `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s [%s]: %s", i.Level, i.Code, i.Message)
}

var (
	stringLiteralRe = regexp.MustCompile(`'(?:[^'\\]|\\.)*'`)
	forbiddenRe     = regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|CREATE|TRUNCATE|RENAME|ATTACH|DETACH|OPTIMIZE|GRANT|REVOKE|KILL|SYSTEM)\b`)
	systemTableRe   = regexp.MustCompile(`(?i)\b(system|information_schema)\s*\.`)
	limitRe         = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`)
	betweenDatesRe  = regexp.MustCompile(`(?i)\bBETWEEN\s+'(\d{4}-\d{2}-\d{2})'\s+AND\s+'(\d{4}-\d{2}-\d{2})'`)
	emptyCountRe    = regexp.MustCompile(`(?i)\bcount\(\)`)
)

// Validate checks sql against s and returns every issue found, errors first
// in the order they were detected.
func Validate(sql string, s schema.TableSchema) []Issue {
	var issues []Issue
	issues = append(issues, heuristics(sql)...)
	issues = append(issues, structure(sql, s)...)
	return issues
}

// HasErrors reports whether any issue is error level.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Level == LevelError {
			return true
		}
	}
	return false
}

// Errors returns only the error-level issues.
func Errors(issues []Issue) []Issue {
	var out []Issue
	for _, i := range issues {
		if i.Level == LevelError {
			out = append(out, i)
		}
	}
	return out
}

func heuristics(sql string) []Issue {
	var issues []Issue
	bare := stringLiteralRe.ReplaceAllString(sql, "''")

	if m := forbiddenRe.FindString(bare); m != "" {
		issues = append(issues, Issue{LevelError, "forbidden_keyword", fmt.Sprintf("statement contains %s", strings.ToUpper(m))})
	}
	if systemTableRe.MatchString(bare) {
		issues = append(issues, Issue{LevelError, "system_table", "system tables cannot be queried"})
	}
	if i := strings.Index(bare, ";"); i >= 0 && strings.TrimSpace(bare[i+1:]) != "" {
		issues = append(issues, Issue{LevelError, "multiple_statements", "only one statement is allowed"})
	}

	if m := limitRe.FindStringSubmatch(bare); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > MaxLimit {
			issues = append(issues, Issue{LevelWarning, "large_limit", fmt.Sprintf("LIMIT %d exceeds %d", n, MaxLimit)})
		}
	}

	for _, m := range betweenDatesRe.FindAllStringSubmatch(sql, -1) {
		// ISO dates compare correctly as strings.
		if m[1] > m[2] {
			issues = append(issues, Issue{LevelError, "empty_range", fmt.Sprintf("BETWEEN '%s' AND '%s' is an empty range", m[1], m[2])})
		}
	}
	return issues
}

// structure parses sql with the TiDB parser and checks statement shape,
// column references and grouping.
func structure(sql string, s schema.TableSchema) []Issue {
	// count() is ClickHouse-only; count(*) means the same thing to MySQL.
	text := emptyCountRe.ReplaceAllString(sql, "count(*)")

	stmts, _, err := parser.New().Parse(text, "", "")
	if err != nil {
		return []Issue{{LevelWarning, "unparsed", fmt.Sprintf("structural checks skipped: %v", err)}}
	}
	if len(stmts) != 1 {
		return []Issue{{LevelError, "multiple_statements", fmt.Sprintf("expected 1 statement, got %d", len(stmts))}}
	}
	sel, ok := stmts[0].(*ast.SelectStmt)
	if !ok {
		return []Issue{{LevelError, "not_select", "only SELECT statements are allowed"}}
	}

	var issues []Issue
	if sel.With != nil {
		issues = append(issues, Issue{LevelError, "cte", "WITH clauses are not allowed"})
	}
	if sel.From == nil || sel.From.TableRefs == nil {
		issues = append(issues, Issue{LevelError, "no_from", "a FROM clause is required"})
	} else if sel.From.TableRefs.Right != nil {
		issues = append(issues, Issue{LevelError, "join", "joins are not allowed"})
	}

	v := &collector{}
	sel.Accept(v)

	if v.selects > 1 || v.subqueries > 0 {
		issues = append(issues, Issue{LevelError, "subquery", "subqueries are not allowed"})
	}
	for _, t := range v.tables {
		if t != strings.ToLower(s.TableName) {
			issues = append(issues, Issue{LevelError, "unknown_table", fmt.Sprintf("table %q is not %q", t, s.TableName)})
		}
	}

	aliases := map[string]bool{}
	hasWildcard := false
	for _, f := range sel.Fields.Fields {
		if f.WildCard != nil {
			hasWildcard = true
		}
		if f.AsName.L != "" {
			aliases[f.AsName.L] = true
		}
	}
	if hasWildcard {
		issues = append(issues, Issue{LevelError, "wildcard", "SELECT * is not allowed"})
	}

	known := map[string]bool{}
	for _, c := range s.Columns {
		known[strings.ToLower(c.Name)] = true
	}
	seen := map[string]bool{}
	for _, name := range v.columns {
		if known[name] || aliases[name] || seen[name] {
			continue
		}
		seen[name] = true
		issues = append(issues, Issue{LevelError, "unknown_column", fmt.Sprintf("column %q does not exist in %s", name, s.TableName)})
	}

	issues = append(issues, grouping(sel)...)
	return issues
}

// grouping flags plain columns selected next to aggregates that are missing
// from GROUP BY.
func grouping(sel *ast.SelectStmt) []Issue {
	var plain []string
	hasAggregate := false
	for _, f := range sel.Fields.Fields {
		switch e := f.Expr.(type) {
		case *ast.ColumnNameExpr:
			plain = append(plain, e.Name.Name.L)
		default:
			if isAggregate(e) {
				hasAggregate = true
			}
		}
	}
	if len(plain) == 0 {
		return nil
	}

	grouped := map[string]bool{}
	if sel.GroupBy != nil {
		for _, item := range sel.GroupBy.Items {
			if col, ok := item.Expr.(*ast.ColumnNameExpr); ok {
				grouped[col.Name.Name.L] = true
			}
		}
	} else if !hasAggregate {
		return nil
	}

	var issues []Issue
	for _, name := range plain {
		if !grouped[name] {
			issues = append(issues, Issue{LevelError, "missing_group_by", fmt.Sprintf("column %q must appear in GROUP BY", name)})
		}
	}
	return issues
}

var aggregateNames = func() map[string]bool {
	m := map[string]bool{}
	for _, f := range grammar.AggregateFunctions {
		m[strings.ToLower(f)] = true
	}
	return m
}()

func isAggregate(e ast.ExprNode) bool {
	switch f := e.(type) {
	case *ast.AggregateFuncExpr:
		return true
	case *ast.FuncCallExpr:
		return aggregateNames[f.FnName.L]
	}
	return false
}

// collector walks a statement and records table and column references.
type collector struct {
	selects    int
	subqueries int
	tables     []string
	columns    []string
}

func (c *collector) Enter(n ast.Node) (ast.Node, bool) {
	switch x := n.(type) {
	case *ast.SelectStmt:
		c.selects++
	case *ast.SubqueryExpr:
		c.subqueries++
	case *ast.TableName:
		name := x.Name.L
		if x.Schema.L != "" {
			name = x.Schema.L + "." + name
		}
		c.tables = append(c.tables, name)
	case *ast.ColumnNameExpr:
		c.columns = append(c.columns, x.Name.Name.L)
	}
	return n, false
}

func (c *collector) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}
