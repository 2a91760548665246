package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Finished(t *testing.T) {
	t.Parallel()

	m := New()
	m.Finished("Failed", 2*time.Second, 100, 3, 1)
	m.Finished("Success", time.Second, 50, 0, 0)

	body := scrape(t, m)
	assert.Contains(t, body, `sage_executions_total{status="Failed"} 1`)
	assert.Contains(t, body, `sage_executions_total{status="Success"} 1`)
	assert.Contains(t, body, "sage_records_total 150")
	assert.Contains(t, body, `sage_diagnostics_total{level="error"} 3`)
	assert.Contains(t, body, `sage_diagnostics_total{level="warning"} 1`)
	assert.Contains(t, body, "sage_execution_duration_seconds_count 2")
}

func TestMetrics_InFlight(t *testing.T) {
	t.Parallel()

	m := New()
	done1 := m.Started()
	done2 := m.Started()
	assert.Contains(t, scrape(t, m), "sage_executions_in_flight 2")

	done1()
	done2()
	assert.Contains(t, scrape(t, m), "sage_executions_in_flight 0")
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.Purged(4)

	body := scrape(t, m)
	assert.Contains(t, body, "sage_executions_purged_total 4")
	assert.Contains(t, body, "go_goroutines")
}
