package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	buf.Reset()
	return line
}

func TestConsoleOutputInDev(t *testing.T) {
	t.Setenv("APP_ENV", "DEV")
	_, ok := output().(zerolog.ConsoleWriter)
	assert.True(t, ok)
	t.Setenv("APP_ENV", "prod")
	_, ok = output().(zerolog.ConsoleWriter)
	assert.False(t, ok)
	New("test").Infof("smoke %d", 1)
}

func TestComponentAndFields(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	l := NewWithWriter("router", &buf)

	l.Warnf("queue %s full", "c1")
	line := decodeLine(t, &buf)
	assert.Equal(t, "router", line["component"])
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "queue c1 full", line["message"])

	l.With("carrier", "c7").Debugw("assign", map[string]any{"trip_id": 4})
	line = decodeLine(t, &buf)
	assert.Equal(t, "c7", line["carrier"])
	assert.EqualValues(t, 4, line["trip_id"])
	assert.Equal(t, "router", line["component"])
}

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)
	require.NoError(t, SetLevel("warn"))
	var buf bytes.Buffer
	l := NewWithWriter("x", &buf)
	l.Infof("dropped")
	assert.Zero(t, buf.Len())
	l.Errorf("kept")
	assert.NotZero(t, buf.Len())

	require.NoError(t, SetLevel(""))
	assert.Error(t, SetLevel("loud"))
}
