package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReconcileOutcomeSuccess    = "success"
	ReconcileOutcomeKeptCache  = "kept_cache"
	ReconcileOutcomeFailed     = "failed"
	ReconcileOutcomeDiscarded  = "stale_discarded"
	ReconcileOutcomeAfterClose = "after_close"
)

const (
	CacheResultHit       = "hit"
	CacheResultMiss      = "miss"
	CacheResultMalformed = "malformed"
	CacheResultError     = "error"
)

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonNotFound             = "not_found"
	ReasonUnknown              = "unknown"
)

// ContextMetrics tracks organization-context reconciliation and cache health.
type ContextMetrics struct {
	reconcileRuns     *prometheus.CounterVec
	reconcileDuration prometheus.Observer
	cacheReads        *prometheus.CounterVec
	workflowErrors    *prometheus.CounterVec
	activeProviders   prometheus.Gauge
}

// NewContextMetrics registers the collectors on registerer, falling back to the
// default registerer.
func NewContextMetrics(registerer prometheus.Registerer, cfg Config) *ContextMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "insightboard"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	reconcileRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "insightboard_orgcontext_reconcile_total",
		Help:        "Organization context reconciliations by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	reconcileDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "insightboard_orgcontext_reconcile_duration_seconds",
		Help:        "Latency of membership fetches during reconciliation.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	})
	cacheReads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "insightboard_orgcache_reads_total",
		Help:        "Organization cache reads by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	workflowErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "insightboard_workflow_errors_total",
		Help:        "Workflow failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"workflow", "reason"})
	activeProviders := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "insightboard_orgcontext_providers",
		Help:        "Organization context providers currently held in memory.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(reconcileRuns, reconcileDuration, cacheReads, workflowErrors, activeProviders)

	return &ContextMetrics{
		reconcileRuns:     reconcileRuns,
		reconcileDuration: reconcileDuration,
		cacheReads:        cacheReads,
		workflowErrors:    workflowErrors,
		activeProviders:   activeProviders,
	}
}

func (m *ContextMetrics) IncReconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(outcome).Inc()
}

func (m *ContextMetrics) ObserveReconcileDuration(d time.Duration) {
	if m == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.reconcileDuration.Observe(d.Seconds())
}

func (m *ContextMetrics) IncCacheRead(result string) {
	if m == nil {
		return
	}
	m.cacheReads.WithLabelValues(result).Inc()
}

// IncWorkflowError classifies err and counts it against workflow.
func (m *ContextMetrics) IncWorkflowError(workflow string, err error) {
	if m == nil || err == nil {
		return
	}
	m.workflowErrors.WithLabelValues(workflow, ClassifyReason(err)).Inc()
}

func (m *ContextMetrics) SetProviders(n int) {
	if m == nil {
		return
	}
	m.activeProviders.Set(float64(n))
}

// ClassifyReason maps storage and context errors onto a fixed label set.
func ClassifyReason(err error) string {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ReasonUniqueViolation
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ReasonNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return ReasonDBLockTimeout
		case "40001":
			return ReasonSerializationFailure
		case "23505":
			return ReasonUniqueViolation
		}
	}
	return ReasonUnknown
}
