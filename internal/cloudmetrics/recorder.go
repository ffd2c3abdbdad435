package cloudmetrics

import (
	"strings"
	"sync"
)

type Recorder interface {
	RecordAIMessages(orgID, feature string, count int64)
	RecordLeadScore(orgID, qualification string)
	RecordWebhookDelivery(orgID, status string)
	UpdateActiveSubscriptions(orgID string, count int)
	RecordEngineError(orgID, operation string)
}

type recorder struct {
	metrics      *metrics
	defaultOrgID string
}

type noopRecorder struct{}

func (noopRecorder) RecordAIMessages(string, string, int64) {}
func (noopRecorder) RecordLeadScore(string, string)         {}
func (noopRecorder) RecordWebhookDelivery(string, string)   {}
func (noopRecorder) UpdateActiveSubscriptions(string, int)  {}
func (noopRecorder) RecordEngineError(string, string)       {}

var (
	activeRecorder Recorder = noopRecorder{}
	recorderMu     sync.RWMutex
)

func setRecorder(rec Recorder) {
	if rec == nil {
		return
	}
	recorderMu.Lock()
	activeRecorder = rec
	recorderMu.Unlock()
}

func current() Recorder {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	return rec
}

// Package-level hooks are no-ops until Register installs a recorder, so
// callers never need to know whether cloud accounting is on.

func RecordAIMessages(orgID, feature string, count int64) {
	current().RecordAIMessages(orgID, feature, count)
}

func RecordLeadScore(orgID, qualification string) {
	current().RecordLeadScore(orgID, qualification)
}

func RecordWebhookDelivery(orgID, status string) {
	current().RecordWebhookDelivery(orgID, status)
}

func UpdateActiveSubscriptions(orgID string, count int) {
	current().UpdateActiveSubscriptions(orgID, count)
}

func RecordEngineError(orgID, operation string) {
	current().RecordEngineError(orgID, operation)
}

func (r *recorder) RecordAIMessages(orgID, feature string, count int64) {
	if r == nil || r.metrics == nil || count <= 0 {
		return
	}
	org := r.normalizeOrg(orgID)
	r.metrics.aiMessages.WithLabelValues(org, normalizeLabel(feature)).Add(float64(count))
}

func (r *recorder) RecordLeadScore(orgID, qualification string) {
	if r == nil || r.metrics == nil {
		return
	}
	org := r.normalizeOrg(orgID)
	r.metrics.leadScores.WithLabelValues(org, normalizeLabel(qualification)).Inc()
}

func (r *recorder) RecordWebhookDelivery(orgID, status string) {
	if r == nil || r.metrics == nil {
		return
	}
	org := r.normalizeOrg(orgID)
	r.metrics.webhookDeliveries.WithLabelValues(org, normalizeLabel(status)).Inc()
}

func (r *recorder) UpdateActiveSubscriptions(orgID string, count int) {
	if r == nil || r.metrics == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	org := r.normalizeOrg(orgID)
	r.metrics.activeSubscriptions.WithLabelValues(org).Set(float64(count))
}

func (r *recorder) RecordEngineError(orgID, operation string) {
	if r == nil || r.metrics == nil {
		return
	}
	org := r.normalizeOrg(orgID)
	r.metrics.engineErrors.WithLabelValues(org, normalizeLabel(operation)).Inc()
}

func (r *recorder) normalizeOrg(orgID string) string {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		orgID = strings.TrimSpace(r.defaultOrgID)
	}
	if orgID == "" {
		return "unknown"
	}
	return orgID
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
