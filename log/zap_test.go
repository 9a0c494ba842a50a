package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, InfoLevel).Named("enrich")
	l.Debug("hidden")
	l.Info("enriched", String("session", "s1"), Int("lap", 3))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "enriched", entry["msg"])
	assert.Equal(t, "enrich", entry["logger"])
	assert.Equal(t, "s1", entry["session"])
	assert.InDelta(t, 3, entry["lap"], 0)
}

func TestLogger_SetLevelPropagates(t *testing.T) {
	var buf bytes.Buffer
	root := New(&buf, InfoLevel)
	child := root.Named("pipeline")
	child.Debug("before")
	root.SetLevel(DebugLevel)
	child.Debug("after")
	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
	assert.Equal(t, DebugLevel, child.Level())
}

func TestLogger_WithFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, DebugLevel).WithFilter("*:* -debug:reasoning*")
	require.NoError(t, err)
	l.Named("reasoning").Debug("suppressed")
	l.Named("reasoning").Info("kept")
	l.Named("pipeline").Debug("pipeline debug")
	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "pipeline debug")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, lvl)
	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}
