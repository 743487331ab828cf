package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raindrop/eventsql/pkg/resultset"
)

func sample() *resultset.Result {
	return &resultset.Result{
		Columns: []string{"repo_name", "pushes"},
		Data: []map[string]any{
			{"repo_name": "torvalds/linux", "pushes": 1200.0},
			{"repo_name": "golang/go", "pushes": "87"},
		},
		Rows: 2,
	}
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer
	f, err := New("table", &buf)
	require.NoError(t, err)
	require.NoError(t, f.Format(sample()))

	out := buf.String()
	assert.Contains(t, out, "repo_name")
	assert.Contains(t, out, "torvalds/linux")
	assert.Contains(t, out, "1200")
	assert.NotContains(t, out, "1200.0")
	assert.True(t, strings.HasSuffix(out, "(2 rows)\n"))
	assert.Less(t, strings.Index(out, "torvalds/linux"), strings.Index(out, "golang/go"))
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f, err := New("json", &buf)
	require.NoError(t, err)
	require.NoError(t, f.Format(sample()))

	assert.Equal(t, "{\"pushes\":1200,\"repo_name\":\"torvalds/linux\"}\n{\"pushes\":\"87\",\"repo_name\":\"golang/go\"}\n", buf.String())
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	f, err := New("csv", &buf)
	require.NoError(t, err)
	require.NoError(t, f.Format(sample()))

	assert.Equal(t, "repo_name,pushes\ntorvalds/linux,1200\ngolang/go,87\n", buf.String())
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := New("xml", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "xml"`)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", formatValue(nil))
	assert.Equal(t, "1.5", formatValue(1.5))
	assert.Equal(t, "7", formatValue(int64(7)))
	assert.Equal(t, "true", formatValue(true))
	assert.Equal(t, "[1 2]", formatValue([]int{1, 2}))
}
