package api

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectAlerts() (*[]AlertEvent, *sync.Mutex, AlertFunc) {
	var mu sync.Mutex
	var alerts []AlertEvent
	return &alerts, &mu, func(e AlertEvent) {
		mu.Lock()
		alerts = append(alerts, e)
		mu.Unlock()
	}
}

func TestLoginFailureSpikeAlert(t *testing.T) {
	alerts, mu, fn := collectAlerts()
	collector := newMetricsCollector(fn)
	collector.loginFailures.threshold = 5

	for i := 0; i < 4; i++ {
		collector.recordEvent(AuditLoginFailure)
	}
	mu.Lock()
	assert.Empty(t, *alerts, "no alert below threshold")
	mu.Unlock()

	collector.recordEvent(AuditLoginFailure)
	mu.Lock()
	require.Len(t, *alerts, 1)
	assert.Equal(t, AlertLoginFailureSpike, (*alerts)[0].Type)
	assert.Equal(t, 5, (*alerts)[0].Count)
	mu.Unlock()
}

func TestPinFailureSpikeAlert(t *testing.T) {
	alerts, mu, fn := collectAlerts()
	collector := newMetricsCollector(fn)
	collector.pinFailures.threshold = 3

	collector.recordEvent(AuditPinIncorrect)
	collector.recordEvent(AuditPinIncorrect)
	collector.recordEvent(AuditLoginSuccess)
	mu.Lock()
	assert.Empty(t, *alerts)
	mu.Unlock()

	collector.recordEvent(AuditPinLockedOut)
	mu.Lock()
	require.Len(t, *alerts, 1)
	assert.Equal(t, AlertPinFailureSpike, (*alerts)[0].Type)
	assert.Equal(t, 3, (*alerts)[0].Threshold)
	mu.Unlock()
}

func TestAlertWindowExpires(t *testing.T) {
	alerts, mu, fn := collectAlerts()
	collector := newMetricsCollector(fn)
	collector.pinFailures.threshold = 2

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	collector.now = func() time.Time { return now }
	collector.recordEvent(AuditPinIncorrect)

	now = now.Add(defaultPinFailureWindow + time.Second)
	collector.recordEvent(AuditPinIncorrect)

	mu.Lock()
	assert.Empty(t, *alerts, "failures outside the window do not count")
	mu.Unlock()
}

func TestNilCollectorIgnoresEvents(t *testing.T) {
	var m *metricsCollector
	assert.NotPanics(t, func() { m.recordEvent(AuditPinIncorrect) })
}

func TestTrimWindow(t *testing.T) {
	now := time.Now()
	times := []time.Time{
		now.Add(-3 * time.Minute),
		now.Add(-2 * time.Minute),
		now.Add(-30 * time.Second),
		now,
	}
	got := trimWindow(times, now, time.Minute)
	assert.Len(t, got, 2)
}
