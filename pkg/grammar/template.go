package grammar

// Placeholders substituted by BuildGrammar.
const (
	phTable          = "{{TABLE}}"
	phStringColumns  = "{{STRING_COLUMNS}}"
	phNumericColumns = "{{NUMERIC_COLUMNS}}"
	phDatetimeCols   = "{{DATETIME_COLUMNS}}"
	phColumnRef      = "{{COLUMN_REF}}"
	phEventTypes     = "{{EVENT_TYPES}}"
	phActionValues   = "{{ACTION_VALUES}}"
)

// Template is the Lark grammar skeleton. All whitespace is literal: exactly one
// space is emitted (and accepted) wherever the grammar shows one.
const Template = `// ClickHouse SQL subset for {{TABLE}} (generated, do not edit)

// ---------- Statement ----------
start: select_clause from_clause where_clause? group_clause? having_clause? order_clause? limit_clause?

// ---------- SELECT ----------
select_clause: "SELECT " select_item (", " select_item)*
select_item: agg_expr " AS " alias
           | date_trunc_expr " AS " alias
           | column_ref

agg_expr: "count()"
        | agg_func "(" column_ref ")"
agg_func: "uniqExact" | "count" | "uniq" | "sum" | "avg" | "min" | "max"

date_trunc_expr: date_trunc_func "(" datetime_col ")"
date_trunc_func: "toStartOfMonth" | "toStartOfHour" | "toStartOfWeek" | "toStartOfDay" | "toDate"

alias: ALIAS

// ---------- FROM ----------
from_clause: " FROM " table_name
table_name: "{{TABLE}}"

// ---------- Columns ----------
string_col: {{STRING_COLUMNS}}
numeric_col: {{NUMERIC_COLUMNS}}
datetime_col: {{DATETIME_COLUMNS}}
column_ref: {{COLUMN_REF}}

// ---------- WHERE ----------
where_clause: " WHERE " condition (" AND " condition)*
condition: datetime_condition
         | enum_condition
         | string_condition
         | numeric_condition

datetime_condition: datetime_col " >= now() - INTERVAL " INTEGER " " interval_unit
                  | datetime_col " BETWEEN '" DATE "' AND '" DATE "'"
interval_unit: "HOUR" | "DAY" | "WEEK" | "MONTH"

enum_condition: "type = '" event_type "'"
              | "type IN ('" event_type "'" (", '" event_type "'")* ")"
              | "action = '" action_value "'"
event_type: {{EVENT_TYPES}}
action_value: {{ACTION_VALUES}}

string_condition: string_col " = '" STRING_VALUE "'"
                | string_col " LIKE '%" STRING_VALUE "%'"
                | string_col " IN ('" STRING_VALUE "'" (", '" STRING_VALUE "'")* ")"

numeric_condition: numeric_col " " compare_op " " INTEGER
compare_op: "!=" | ">=" | "<=" | "=" | ">" | "<"

// ---------- GROUP BY / HAVING ----------
group_clause: " GROUP BY " group_item (", " group_item)*
group_item: date_trunc_expr | column_ref | alias
having_clause: " HAVING " agg_expr " " compare_op " " INTEGER

// ---------- ORDER BY / LIMIT ----------
order_clause: " ORDER BY " order_item (", " order_item)*
order_item: (date_trunc_expr | column_ref | alias) sort_dir?
sort_dir: " ASC" | " DESC"
limit_clause: " LIMIT " INTEGER

// ---------- Terminals ----------
ALIAS: /[a-z_][a-z0-9_]{0,29}/
STRING_VALUE: /[a-zA-Z0-9_.\-\/]{1,100}/
DATE: /\d{4}-\d{2}-\d{2}/
INTEGER: /\d{1,6}/
`
