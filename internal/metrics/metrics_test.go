package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestRecordRun(t *testing.T) {
	m := New()
	m.RecordRun(true)
	m.RecordRun(true)
	m.RecordRun(false)

	s := m.Snapshot()
	if s.RunsTotal != 3 {
		t.Errorf("expected 3 runs, got %d", s.RunsTotal)
	}
	if s.RunsSucceeded != 2 {
		t.Errorf("expected 2 successes, got %d", s.RunsSucceeded)
	}
	if s.RunsFailed != 1 {
		t.Errorf("expected 1 failure, got %d", s.RunsFailed)
	}
	if s.SuccessRate < 66 || s.SuccessRate > 67 {
		t.Errorf("unexpected success rate: %f", s.SuccessRate)
	}
}

func TestRecordStageFailure(t *testing.T) {
	m := New()
	m.RecordStageFailure("fetch")
	m.RecordStageFailure("fetch")
	m.RecordStageFailure("recognize")

	s := m.Snapshot()
	if s.StageFailures["fetch"] != 2 {
		t.Errorf("expected 2 fetch failures, got %d", s.StageFailures["fetch"])
	}
	if s.StageFailures["recognize"] != 1 {
		t.Errorf("expected 1 recognize failure, got %d", s.StageFailures["recognize"])
	}
}

func TestActiveRuns(t *testing.T) {
	m := New()
	m.IncrementActiveRuns()
	m.IncrementActiveRuns()
	m.DecrementActiveRuns()

	if got := m.Snapshot().ActiveRuns; got != 1 {
		t.Errorf("expected 1 active run, got %d", got)
	}
}

func TestNotifyCounters(t *testing.T) {
	m := New()
	m.RecordNotify(true)
	m.RecordNotify(false)
	m.RecordNotify(false)

	s := m.Snapshot()
	if s.NotifySent != 1 || s.NotifyFailed != 2 {
		t.Errorf("unexpected notify counters: sent=%d failed=%d", s.NotifySent, s.NotifyFailed)
	}
}

func TestAvgRunDuration(t *testing.T) {
	m := New()
	m.RecordRunDuration(2 * time.Second)
	m.RecordRunDuration(4 * time.Second)

	if got := m.Snapshot().AvgRunDuration; got != 3*time.Second {
		t.Errorf("expected 3s average, got %v", got)
	}
}

func TestPrometheusExposition(t *testing.T) {
	m := New()
	m.RecordRun(true)
	m.RecordTokens(1200)
	m.RecordStageFailure("extract")

	out := m.Prometheus()
	for _, want := range []string{
		"eob_runs_total 1",
		"eob_tokens_used 1200",
		`eob_stage_failures_total{stage="extract"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}
