package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"gorm.io/gorm"
)

func TestClassifyReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded), want: ReasonDeadlineExceeded},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ReasonDBLockTimeout},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: ReasonSerializationFailure},
		{name: "pg_unique", err: &pgconn.PgError{Code: "23505"}, want: ReasonUniqueViolation},
		{name: "gorm_unique", err: gorm.ErrDuplicatedKey, want: ReasonUniqueViolation},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: ReasonNotFound},
		{name: "unknown", err: errors.New("boom"), want: ReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestContextMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewContextMetrics(registry, Config{ServiceName: "insightboard", Environment: "test"})

	m.IncReconcile(ReconcileOutcomeSuccess)
	m.IncReconcile(ReconcileOutcomeSuccess)
	m.IncReconcile(ReconcileOutcomeDiscarded)
	m.IncWorkflowError("activate_plan", gorm.ErrDuplicatedKey)
	m.ObserveReconcileDuration(120 * time.Millisecond)

	if got := testutil.ToFloat64(m.reconcileRuns.WithLabelValues(ReconcileOutcomeSuccess)); got != 2 {
		t.Fatalf("expected 2 successful reconciliations, got %v", got)
	}
	if got := testutil.ToFloat64(m.workflowErrors.WithLabelValues("activate_plan", ReasonUniqueViolation)); got != 1 {
		t.Fatalf("expected 1 unique violation, got %v", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var histogram *dto.Histogram
	for _, family := range families {
		if family.GetName() == "insightboard_orgcontext_reconcile_duration_seconds" {
			histogram = family.GetMetric()[0].GetHistogram()
		}
	}
	if histogram == nil || histogram.GetSampleCount() != 1 {
		t.Fatalf("expected one reconcile duration sample, got %v", histogram)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := NewHTTPMetrics(registry)

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Fatalf("expected one series, got %d", got)
	}
}
