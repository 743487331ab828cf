package grammar

import (
	"regexp"
	"strings"

	"github.com/raindrop/eventsql/pkg/schema"
)

// Terminal patterns, anchored at the cursor.
var (
	aliasRe       = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,29}`)
	stringValueRe = regexp.MustCompile(`^[a-zA-Z0-9_.\-/]{1,100}`)
	dateRe        = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	integerRe     = regexp.MustCompile(`^\d{1,6}`)
)

// Parser recognizes exactly the language BuildGrammar emits for the same
// schema. It is immutable and safe for concurrent use.
type Parser struct {
	table        string
	columnRefs   []string
	stringCols   []string
	numericCols  []string
	datetimeCols []string
	aggFuncs     []string
	truncFuncs   []string
	eventTypes   []string
	actionValues []string
	units        []string
	sortDirs     []string
}

// NewParser builds a Parser from the schema the grammar was materialized for.
func NewParser(s schema.TableSchema) *Parser {
	return newParser(Resolve(s))
}

func newParser(v Vocabulary) *Parser {
	return &Parser{
		table:        v.TableName,
		columnRefs:   longestFirst(v.ColumnRefs),
		stringCols:   longestFirst(v.StringColumns),
		numericCols:  longestFirst(v.NumericColumns),
		datetimeCols: longestFirst(v.DatetimeColumns),
		aggFuncs:     longestFirst(AggregateFunctions),
		truncFuncs:   longestFirst(DateTruncFunctions),
		eventTypes:   longestFirst(v.EventTypes),
		actionValues: longestFirst(v.ActionValues),
		units:        longestFirst(IntervalUnits),
		sortDirs:     longestFirst(SortDirs),
	}
}

var defaultParser = NewParser(schema.GitHubEvents())

// ParseQuery parses sql against the default github_events grammar.
func ParseQuery(sql string) *Node {
	return defaultParser.ParseQuery(sql)
}

// IsValidGrammarSQL reports whether sql is in the default github_events grammar.
func IsValidGrammarSQL(sql string) bool {
	return defaultParser.IsValid(sql)
}

// ParseQuery returns the derivation of the trimmed sql, or nil when not even
// the SELECT and FROM clauses are recognized. If recognition stops before the
// end of input the root is tagged RuleQueryPartial.
func (p *Parser) ParseQuery(sql string) *Node {
	st := &state{p: p, input: strings.TrimSpace(sql)}
	return st.query()
}

// IsValid reports whether the whole of sql is a member of the language.
func (p *Parser) IsValid(sql string) bool {
	return p.ParseQuery(sql).Complete()
}

// Diagnosis describes where recognition of a rejected query stopped.
type Diagnosis struct {
	Valid     bool   `json:"valid"`
	Offset    int    `json:"offset"`
	Remainder string `json:"remainder,omitempty"`
	Tree      *Node  `json:"tree,omitempty"`
}

// Diagnose parses sql and reports where recognition stopped: the end of the
// last complete clause for a partial parse, otherwise the furthest offset any
// rule reached.
func (p *Parser) Diagnose(sql string) Diagnosis {
	st := &state{p: p, input: strings.TrimSpace(sql)}
	tree := st.query()
	switch {
	case tree.Complete():
		return Diagnosis{Valid: true, Offset: len(st.input), Tree: tree}
	case tree != nil:
		off := len(tree.Text)
		return Diagnosis{Offset: off, Remainder: st.input[off:], Tree: tree}
	}
	return Diagnosis{Offset: st.furthest, Remainder: st.input[st.furthest:]}
}

// state is the mutable cursor of one parse. Every rule method either
// consumes input and returns a node, or restores pos and returns nil.
type state struct {
	p        *Parser
	input    string
	pos      int
	furthest int
}

func (s *state) advance(n int) {
	s.pos += n
	if s.pos > s.furthest {
		s.furthest = s.pos
	}
}

func (s *state) fail(start int) *Node {
	s.pos = start
	return nil
}

func (s *state) node(rule string, start int, children ...*Node) *Node {
	return &Node{Rule: rule, Text: s.input[start:s.pos], Children: children}
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// bounded reports whether a match ending at end does not run into a longer
// identifier.
func (s *state) bounded(text string, end int) bool {
	if text == "" || !isWordByte(text[len(text)-1]) || end >= len(s.input) {
		return true
	}
	return !isWordByte(s.input[end])
}

// lit consumes an exact literal.
func (s *state) lit(text string) bool {
	if !strings.HasPrefix(s.input[s.pos:], text) || !s.bounded(text, s.pos+len(text)) {
		return false
	}
	s.advance(len(text))
	return true
}

func (s *state) leaf(rule, text string) *Node {
	start := s.pos
	if !s.lit(text) {
		return nil
	}
	return s.node(rule, start)
}

// oneOf tries each candidate in order; callers pass longest-first lists.
func (s *state) oneOf(rule string, candidates []string) *Node {
	for _, c := range candidates {
		if n := s.leaf(rule, c); n != nil {
			return n
		}
	}
	return nil
}

func (s *state) match(rule string, re *regexp.Regexp) *Node {
	m := re.FindString(s.input[s.pos:])
	if m == "" || !s.bounded(m, s.pos+len(m)) {
		return nil
	}
	start := s.pos
	s.advance(len(m))
	return s.node(rule, start)
}

// keyword consumes " KW " style clause openers: the leading space (when
// lead is set), the keyword leaf and the trailing space.
func (s *state) keyword(kw string, lead bool) *Node {
	start := s.pos
	if lead && !s.lit(" ") {
		return s.fail(start)
	}
	n := s.leaf("keyword", kw)
	if n == nil || !s.lit(" ") {
		return s.fail(start)
	}
	return n
}

// list parses item (sep item)*. A separator not followed by an item is left
// unconsumed.
func (s *state) list(sep string, item func() *Node) []*Node {
	first := item()
	if first == nil {
		return nil
	}
	items := []*Node{first}
	for {
		save := s.pos
		if !s.lit(sep) {
			break
		}
		next := item()
		if next == nil {
			s.pos = save
			break
		}
		items = append(items, next)
	}
	return items
}

// quotedList parses ('v' (, 'v')*).
func (s *state) quotedList(item func() *Node) []*Node {
	start := s.pos
	if !s.lit("(") {
		return nil
	}
	items := s.list(", ", func() *Node {
		at := s.pos
		if !s.lit("'") {
			return nil
		}
		n := item()
		if n == nil || !s.lit("'") {
			return s.fail(at)
		}
		return n
	})
	if items == nil || !s.lit(")") {
		s.pos = start
		return nil
	}
	return items
}

func (s *state) query() *Node {
	sel := s.selectClause()
	if sel == nil {
		return nil
	}
	from := s.fromClause()
	if from == nil {
		return nil
	}
	children := []*Node{sel, from}
	for _, clause := range []func() *Node{s.whereClause, s.groupClause, s.havingClause, s.orderClause, s.limitClause} {
		if n := clause(); n != nil {
			children = append(children, n)
		}
	}
	rule := RuleQuery
	if s.pos < len(s.input) {
		rule = RuleQueryPartial
	}
	return s.node(rule, 0, children...)
}

func (s *state) selectClause() *Node {
	start := s.pos
	kw := s.keyword("SELECT", false)
	if kw == nil {
		return nil
	}
	items := s.list(", ", s.selectItem)
	if items == nil {
		return s.fail(start)
	}
	return s.node("select_clause", start, append([]*Node{kw}, items...)...)
}

func (s *state) selectItem() *Node {
	start := s.pos
	for _, expr := range []func() *Node{s.aggExpr, s.dateTruncExpr} {
		e := expr()
		if e == nil {
			continue
		}
		if kw := s.keyword("AS", true); kw != nil {
			if a := s.alias(); a != nil {
				return s.node("select_item", start, e, kw, a)
			}
		}
		s.pos = start
	}
	if col := s.columnRef(); col != nil {
		return s.node("select_item", start, col)
	}
	return s.fail(start)
}

func (s *state) aggExpr() *Node {
	start := s.pos
	if fn := s.leaf("agg_func", "count"); fn != nil && s.lit("()") {
		return s.node("agg_expr", start, fn)
	}
	s.pos = start

	fn := s.oneOf("agg_func", s.p.aggFuncs)
	if fn == nil || !s.lit("(") {
		return s.fail(start)
	}
	col := s.columnRef()
	if col == nil || !s.lit(")") {
		return s.fail(start)
	}
	return s.node("agg_expr", start, fn, col)
}

func (s *state) dateTruncExpr() *Node {
	start := s.pos
	fn := s.oneOf("date_trunc_func", s.p.truncFuncs)
	if fn == nil || !s.lit("(") {
		return s.fail(start)
	}
	col := s.oneOf("datetime_col", s.p.datetimeCols)
	if col == nil || !s.lit(")") {
		return s.fail(start)
	}
	return s.node("date_trunc_expr", start, fn, col)
}

func (s *state) columnRef() *Node {
	return s.oneOf("column_ref", s.p.columnRefs)
}

func (s *state) alias() *Node {
	return s.match("alias", aliasRe)
}

func (s *state) integer() *Node {
	return s.match("integer", integerRe)
}

func (s *state) fromClause() *Node {
	start := s.pos
	if !s.lit(" ") {
		return nil
	}
	kw := s.keyword("FROM", false)
	if kw == nil {
		return s.fail(start)
	}
	table := s.leaf("table_name", s.p.table)
	if table == nil {
		return s.fail(start)
	}
	return s.node("from_clause", start, kw, table)
}

func (s *state) whereClause() *Node {
	start := s.pos
	kw := s.keyword("WHERE", true)
	if kw == nil {
		return nil
	}
	conds := s.list(" AND ", s.condition)
	if conds == nil {
		return s.fail(start)
	}
	return s.node("where_clause", start, append([]*Node{kw}, conds...)...)
}

// condition tries the kinds in a fixed order: datetime, enum, string, numeric.
func (s *state) condition() *Node {
	start := s.pos
	for _, kind := range []func() *Node{s.datetimeCondition, s.enumCondition, s.stringCondition, s.numericCondition} {
		if n := kind(); n != nil {
			return s.node("condition", start, n)
		}
	}
	return nil
}

func (s *state) datetimeCondition() *Node {
	start := s.pos
	col := s.oneOf("datetime_col", s.p.datetimeCols)
	if col == nil {
		return nil
	}
	afterCol := s.pos

	if s.lit(" >= now() - INTERVAL ") {
		if n := s.integer(); n != nil && s.lit(" ") {
			if u := s.oneOf("interval_unit", s.p.units); u != nil {
				return s.node("datetime_condition", start, col, n, u)
			}
		}
	}
	s.pos = afterCol

	if s.lit(" BETWEEN '") {
		if from := s.match("date", dateRe); from != nil && s.lit("' AND '") {
			if to := s.match("date", dateRe); to != nil && s.lit("'") {
				return s.node("datetime_condition", start, col, from, to)
			}
		}
	}
	return s.fail(start)
}

func (s *state) enumCondition() *Node {
	start := s.pos
	eventType := func() *Node { return s.oneOf("event_type", s.p.eventTypes) }

	if s.lit("type = '") {
		if v := eventType(); v != nil && s.lit("'") {
			return s.node("enum_condition", start, v)
		}
	}
	s.pos = start

	if s.lit("type IN ") {
		if vals := s.quotedList(eventType); vals != nil {
			return s.node("enum_condition", start, vals...)
		}
	}
	s.pos = start

	if s.lit("action = '") {
		if v := s.oneOf("action_value", s.p.actionValues); v != nil && s.lit("'") {
			return s.node("enum_condition", start, v)
		}
	}
	return s.fail(start)
}

func (s *state) stringCondition() *Node {
	start := s.pos
	col := s.oneOf("string_col", s.p.stringCols)
	if col == nil {
		return nil
	}
	afterCol := s.pos
	value := func() *Node { return s.match("string_value", stringValueRe) }

	if s.lit(" = '") {
		if v := value(); v != nil && s.lit("'") {
			return s.node("string_condition", start, col, v)
		}
	}
	s.pos = afterCol

	if s.lit(" LIKE '%") {
		if v := value(); v != nil && s.lit("%'") {
			return s.node("string_condition", start, col, v)
		}
	}
	s.pos = afterCol

	if s.lit(" IN ") {
		if vals := s.quotedList(value); vals != nil {
			return s.node("string_condition", start, append([]*Node{col}, vals...)...)
		}
	}
	return s.fail(start)
}

func (s *state) numericCondition() *Node {
	start := s.pos
	col := s.oneOf("numeric_col", s.p.numericCols)
	if col == nil || !s.lit(" ") {
		return s.fail(start)
	}
	op := s.oneOf("compare_op", CompareOps)
	if op == nil || !s.lit(" ") {
		return s.fail(start)
	}
	n := s.integer()
	if n == nil {
		return s.fail(start)
	}
	return s.node("numeric_condition", start, col, op, n)
}

// groupTarget is the shared head of group_item and order_item.
func (s *state) groupTarget() *Node {
	if n := s.dateTruncExpr(); n != nil {
		return n
	}
	if n := s.columnRef(); n != nil {
		return n
	}
	return s.alias()
}

func (s *state) groupClause() *Node {
	start := s.pos
	kw := s.keyword("GROUP BY", true)
	if kw == nil {
		return nil
	}
	items := s.list(", ", func() *Node {
		at := s.pos
		if t := s.groupTarget(); t != nil {
			return s.node("group_item", at, t)
		}
		return nil
	})
	if items == nil {
		return s.fail(start)
	}
	return s.node("group_clause", start, append([]*Node{kw}, items...)...)
}

func (s *state) havingClause() *Node {
	start := s.pos
	kw := s.keyword("HAVING", true)
	if kw == nil {
		return nil
	}
	agg := s.aggExpr()
	if agg == nil || !s.lit(" ") {
		return s.fail(start)
	}
	op := s.oneOf("compare_op", CompareOps)
	if op == nil || !s.lit(" ") {
		return s.fail(start)
	}
	n := s.integer()
	if n == nil {
		return s.fail(start)
	}
	return s.node("having_clause", start, kw, agg, op, n)
}

func (s *state) orderClause() *Node {
	start := s.pos
	kw := s.keyword("ORDER BY", true)
	if kw == nil {
		return nil
	}
	items := s.list(", ", s.orderItem)
	if items == nil {
		return s.fail(start)
	}
	return s.node("order_clause", start, append([]*Node{kw}, items...)...)
}

func (s *state) orderItem() *Node {
	start := s.pos
	t := s.groupTarget()
	if t == nil {
		return nil
	}
	children := []*Node{t}
	save := s.pos
	if s.lit(" ") {
		if dir := s.oneOf("sort_dir", s.p.sortDirs); dir != nil {
			children = append(children, dir)
		} else {
			s.pos = save
		}
	}
	return s.node("order_item", start, children...)
}

func (s *state) limitClause() *Node {
	start := s.pos
	kw := s.keyword("LIMIT", true)
	if kw == nil {
		return nil
	}
	n := s.integer()
	if n == nil {
		return s.fail(start)
	}
	return s.node("limit_clause", start, kw, n)
}
