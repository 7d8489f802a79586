package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	assert.Equal(t, "m", name("m"))
	assert.Equal(t, `m{a="1",b="2"}`, name("m", "a", "1", "b", "2"))
}

func TestHandler(t *testing.T) {
	TaskPackets("metrics_test").Add(3)
	SetTaskElements("metrics_test", 42)
	IncSnapshotWrite("text", nil)
	IncSnapshotWrite("text", errors.New("disk full"))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `cms_task_packets_total{task="metrics_test"} 3`)
	assert.Contains(t, body, `cms_task_elements_added{task="metrics_test"} 42`)
	assert.Contains(t, body, `cms_snapshot_writes_total{writer="text",status="error"} 1`)
}
