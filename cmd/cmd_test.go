package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dispatchlog "github.com/kilianp07/fleetcore/core/dispatch/logging"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/router"
)

const testSite = `fleets:
  - name: f1
  - name: f2
    status: MAINTENANCE
stations:
  - {name: A, fleet: f1, properties: [parking]}
carriers:
  - {name: c1, fleet: f1, parking_station: A}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSiteValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSite), 0o644))
	out, err := execute(t, "site", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 fleets, 1 stations, 1 carriers, 0 zones")
}

func TestSiteValidateReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stations:\n  - {name: A, fleet: nope}\n"), 0o644))
	_, err := execute(t, "site", "validate", path)
	assert.ErrorContains(t, err, `unknown fleet "nope"`)
}

func TestSiteLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSite), 0o644))
	out, err := execute(t, "site", "ls", path)
	require.NoError(t, err)
	assert.Contains(t, out, "c1")
	assert.Regexp(t, `f2\s+MAINTENANCE\s+-`, out)
}

func TestDotenvFeedsConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	cfg := filepath.Join(dir, "config.yaml")
	site := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(site, []byte(testSite), 0o644))
	require.NoError(t, os.WriteFile(cfg, []byte("dispatch:\n  solver: jv\n"), 0o644))
	require.NoError(t, os.WriteFile(env, []byte("K_SITE_FILE="+site+"\n"), 0o644))
	t.Setenv("K_SITE_FILE", "")
	require.NoError(t, os.Unsetenv("K_SITE_FILE"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--env-file", env, "--config", cfg, "site", "validate"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "2 fleets")
}

func TestDispatchRequiresBroker(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("dispatch:\n  solver: jv\n"), 0o644))
	t.Setenv("K_MQTT__BROKER", "")
	_, err := execute(t, "--config", cfg, "dispatch", "f1")
	assert.ErrorContains(t, err, "mqtt.broker is not configured")
}

func TestDispatchNeedsFleet(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("dispatch:\n  solver: jv\n"), 0o644))
	_, err := execute(t, "--config", cfg, "dispatch", "--all=false")
	assert.ErrorContains(t, err, "at least one fleet")
}

func TestCarrierModeArgs(t *testing.T) {
	m, err := carrierMode("c1", "emergency_stop", "on")
	require.NoError(t, err)
	assert.Equal(t, router.CarrierMode{Carrier: "c1", Mode: model.ReasonEmergencyStop, Enabled: true}, m)

	m, err = carrierMode("c1", "manual", "off")
	require.NoError(t, err)
	assert.False(t, m.Enabled)

	_, err = carrierMode("c1", "stale_heartbeat", "on")
	assert.ErrorIs(t, err, router.ErrInvalidMode)
	_, err = carrierMode("c1", "manual", "maybe")
	assert.ErrorContains(t, err, "on or off")
}

func TestCarrierContinueRequiresBroker(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("dispatch:\n  solver: jv\n"), 0o644))
	t.Setenv("K_MQTT__BROKER", "")
	_, err := execute(t, "--config", cfg, "carrier", "continue", "c1")
	assert.ErrorContains(t, err, "mqtt.broker is not configured")
}

func TestRunningFleets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSite), 0o644))
	fleets, err := runningFleets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, fleets)

	_, err = runningFleets("")
	assert.ErrorContains(t, err, "site_file")
}

func TestLogsFiltersByFleetAndCarrier(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "dispatch.log")
	store, err := dispatchlog.NewJSONLStore(logPath)
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Second)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, dispatchlog.LogRecord{Timestamp: now.Add(-2 * time.Hour), Fleet: "f1", Carriers: []string{"c1"}}))
	require.NoError(t, store.Append(ctx, dispatchlog.LogRecord{Timestamp: now, Fleet: "f1", Carriers: []string{"c2"},
		Pairs: []dispatchlog.Pair{{TripID: 4, Carrier: "c2", Cost: 12}}}))
	require.NoError(t, store.Append(ctx, dispatchlog.LogRecord{Timestamp: now, Fleet: "f2", Carriers: []string{"c2"}}))

	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("logging:\n  backend: jsonl\n  path: "+logPath+"\n"), 0o644))

	out, err := execute(t, "--config", cfg, "logs", "--fleet", "f1", "--carrier", "c2", "--since", "1h", "--until", "", "--format", "json")
	require.NoError(t, err)
	var recs []dispatchlog.LogRecord
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, int64(4), recs[0].Pairs[0].TripID)

	out, err = execute(t, "--config", cfg, "logs", "--fleet", "f3", "--carrier", "", "--since", "", "--until", "", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got, err := parseSince("30m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-30*time.Minute), got)

	got, err = parseSince("2024-05-01T08:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Hour())

	_, err = parseSince("yesterday", now)
	assert.Error(t, err)
}

func TestLogsRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("logging:\n  backend: nop\n"), 0o644))
	_, err := execute(t, "--config", cfg, "logs", "--format", "xml", "--fleet", "", "--carrier", "", "--since", "", "--until", "")
	assert.ErrorContains(t, err, `unknown format "xml"`)
}
