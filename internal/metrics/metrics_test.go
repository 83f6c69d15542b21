package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()

	m.Added()
	m.Added()
	m.Removed("pruned", 3)
	m.Removed("user", 0)
	m.Shifted(4)
	m.HostEvent("message_deleted")
	m.PersistWritten()
	m.PersistFailed()
	m.ViewRefreshed()
	m.SetSessions(2)

	body := scrape(t, m)
	for _, line := range []string{
		"starz_favorites_added_total 2",
		`starz_favorites_removed_total{reason="pruned"} 3`,
		"starz_favorites_refs_shifted_total 4",
		`starz_host_events_total{kind="message_deleted"} 1`,
		"starz_persist_writes_total 1",
		"starz_persist_errors_total 1",
		"starz_view_refreshes_total 1",
		"starz_sessions_loaded 2",
	} {
		assert.Contains(t, body, line)
	}
	assert.NotContains(t, body, `reason="user"`, "zero removals must not create a series")
}

func TestRuntimeCollectors(t *testing.T) {
	assert.Contains(t, scrape(t, New()), "go_goroutines")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Added()
	m.Removed("user", 1)
	m.Shifted(1)
	m.HostEvent("x")
	m.PersistWritten()
	m.PersistFailed()
	m.ViewRefreshed()
	m.SetSessions(1)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
