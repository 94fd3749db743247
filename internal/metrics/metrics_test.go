package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.TaskDone("send_email", OutcomeSuccess, 20*time.Millisecond)
	m.TaskDone("send_email", OutcomeSuccess, 10*time.Millisecond)
	m.TaskDone("sync_account", OutcomeFailure, time.Second)
	m.EmailsSynced(3)
	m.EmailsSynced(0)
	m.TrackingEvent("open", true)
	m.TrackingEvent("click", false)
	m.QueueDepth(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tasks.WithLabelValues("send_email", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("sync_account", OutcomeFailure)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.synced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tracking.WithLabelValues("click", "false")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.queueDepth))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.TaskDone("x", OutcomeSuccess, time.Millisecond)
		m.EmailsSynced(1)
		m.TrackingEvent("open", true)
		m.QueueDepth(1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.EmailsSynced(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "crm_mail_emails_synced_total 2")
}
