package formatting

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poller/internal/orchestrator"
)

func sample() []orchestrator.Metadata {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stopped := created.Add(time.Minute)
	return []orchestrator.Metadata{
		{ID: 0, Name: "dc1", CreatedTime: created, LastStartTime: &created, LastStopTime: &stopped, State: orchestrator.StateStopped},
		{ID: 1, Name: "dc2", CreatedTime: created, State: orchestrator.StateCreated, LastError: strings.Repeat("x", 80)},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": FormatTable, "table": FormatTable, "json": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestWrite_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), Options{Format: FormatTable}))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "dc1")
	assert.Contains(t, out, "STOPPED")
	assert.Contains(t, out, "CREATED")
	assert.Contains(t, out, "2026-03-01T10:01:00Z")
	assert.Contains(t, out, strings.Repeat("x", 57)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 58))
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil, Options{}))
	assert.Equal(t, "No controllers found\n", buf.String())
}

func TestWrite_JSONAndYAML(t *testing.T) {
	var js bytes.Buffer
	require.NoError(t, Write(&js, sample(), Options{Format: FormatJSON}))
	assert.Contains(t, js.String(), `"name": "dc1"`)
	assert.Contains(t, js.String(), `"last_start_time": null`)

	var ym bytes.Buffer
	require.NoError(t, Write(&ym, sample(), Options{Format: FormatYAML}))
	assert.Contains(t, ym.String(), "name: dc2")
	assert.Contains(t, ym.String(), "state: created")
}

func TestPrettyJSON(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}", PrettyJSON(map[string]int{"a": 1}))
	assert.Equal(t, "null", PrettyJSON(nil))
	assert.Contains(t, PrettyJSON(make(chan int)), "0x")
}
