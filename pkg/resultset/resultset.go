// Package resultset is the backend-neutral shape of an executed query.
package resultset

import (
	"context"
	"reflect"
	"sort"
	"strconv"
)

// Result is what an Executor returns: column order plus rows keyed by column.
type Result struct {
	Columns []string         `json:"columns"`
	Data    []map[string]any `json:"data"`
	Rows    int              `json:"rows"`
}

// Executor runs a verified SQL string against a backend.
type Executor interface {
	Execute(ctx context.Context, sql string) (*Result, error)
}

// ColumnNames returns r.Columns, or the sorted keys of the first row when the
// backend did not report an order.
func (r *Result) ColumnNames() []string {
	if len(r.Columns) > 0 || len(r.Data) == 0 {
		return r.Columns
	}
	names := make([]string, 0, len(r.Data[0]))
	for k := range r.Data[0] {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Equal compares two results row by row. Single-column rows are compared by
// value only so differently named aliases still match; numbers compare with
// a relative tolerance of 1e-4.
func Equal(a, b *Result) bool {
	if a.Rows != b.Rows || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if !rowEqual(a.Data[i], b.Data[i]) {
			return false
		}
	}
	return true
}

func rowEqual(a, b map[string]any) bool {
	if len(a) == 1 && len(b) == 1 {
		var va, vb any
		for _, v := range a {
			va = v
		}
		for _, v := range b {
			vb = v
		}
		return valuesEqual(va, vb)
	}

	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !valuesEqual(va, vb) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		if af == bf {
			return true
		}
		diff := af - bf
		if diff < 0 {
			diff = -diff
		}
		avg := (af + bf) / 2
		if avg < 0 {
			avg = -avg
		}
		if avg == 0 {
			return diff < 0.0001
		}
		return diff/avg < 0.0001
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		// ClickHouse quotes 64-bit integers in JSON output.
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
