package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type intakeMetrics struct {
	submissions        *prometheus.CounterVec
	attachmentFailures *prometheus.CounterVec
	storageErrors      *prometheus.CounterVec
	storedBytes        prometheus.Counter
	ingestDuration     prometheus.Histogram
}

func newIntakeMetrics(reg prometheus.Registerer) (*intakeMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &intakeMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "submissions_total",
			Help:      "Submissions decided by the intake pipeline.",
		}, []string{"rule_spec", "status"}),
		attachmentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "attachment_failures_total",
			Help:      "Attachments rejected during classification or routing.",
		}, []string{"reason"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "storage_errors_total",
			Help:      "Failed object storage operations.",
		}, []string{"operation"}),
		storedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "stored_bytes_total",
			Help:      "Attachment bytes written to object storage.",
		}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "intake",
			Name:      "ingest_duration_seconds",
			Help:      "Time spent deciding a submission, excluding storage transfer.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	var err error
	if m.submissions, err = registerCounterVec(reg, m.submissions); err != nil {
		return nil, err
	}
	if m.attachmentFailures, err = registerCounterVec(reg, m.attachmentFailures); err != nil {
		return nil, err
	}
	if m.storageErrors, err = registerCounterVec(reg, m.storageErrors); err != nil {
		return nil, err
	}
	if err := reg.Register(m.storedBytes); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register stored bytes counter: %w", err)
		}
		existing, ok := are.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("register stored bytes counter: %w", err)
		}
		m.storedBytes = existing
	}
	if err := reg.Register(m.ingestDuration); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register ingest histogram: %w", err)
		}
		existing, ok := are.ExistingCollector.(prometheus.Histogram)
		if !ok {
			return nil, fmt.Errorf("register ingest histogram: %w", err)
		}
		m.ingestDuration = existing
	}
	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register counter: %w", err)
	}
	return vec, nil
}

func (m *intakeMetrics) observeDecision(ruleSpec string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(ruleSpec, status).Inc()
	m.ingestDuration.Observe(duration.Seconds())
}

func (m *intakeMetrics) observeAttachmentFailure(reason string) {
	if m == nil {
		return
	}
	m.attachmentFailures.WithLabelValues(reason).Inc()
}

func (m *intakeMetrics) observeStorage(operation string, bytes int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.storageErrors.WithLabelValues(operation).Inc()
		return
	}
	if bytes > 0 {
		m.storedBytes.Add(float64(bytes))
	}
}
