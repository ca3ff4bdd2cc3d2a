package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	m := New()

	m.StoreOp("insert_task")
	m.StoreOp("insert_task")
	m.StoreOp("get_task")
	m.SnapshotSaved(5*time.Millisecond, nil)
	m.SnapshotSaved(time.Millisecond, errors.New("disk full"))
	m.StoreSize(3, 1)

	if got := testutil.ToFloat64(m.storeOps.WithLabelValues("insert_task")); got != 2 {
		t.Errorf("insert_task ops = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.saves.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok saves = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.saves.WithLabelValues("error")); got != 1 {
		t.Errorf("error saves = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tasks); got != 3 {
		t.Errorf("tasks gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.users); got != 1 {
		t.Errorf("users gauge = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.StoreOp("delete_task")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `taskapi_store_operations_total{op="delete_task"} 1`) {
		t.Errorf("expected store op counter in output, got:\n%s", body)
	}
}
