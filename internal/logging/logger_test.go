package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "debug", Format: FormatJSON}, &buf).WithComponent("detector")

	log.Debug("checking stage", map[string]interface{}{FieldStage: "foo.stage.yaml"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "checking stage", entry["message"])
	assert.Equal(t, "detector", entry[FieldComponent])
	assert.Equal(t, "foo.stage.yaml", entry[FieldStage])
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "warn", Format: FormatJSON}, &buf)

	log.Info("hidden")
	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.Error("shown", errors.New("boom"))
	assert.Contains(t, buf.String(), "boom")
}

func TestNewWithWriter_InvalidLevelFallsBack(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "chatty", Format: FormatJSON}, &buf)
	log.Info("hidden")
	log.Warn("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1)
}

func TestNop(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		OrNop(nil).WithComponent("x").WithFields(map[string]interface{}{"a": 1}).Warn("discarded")
	})
}
