package metrics

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Metrics struct {
	startTime time.Time

	runsTotal     atomic.Int64
	runsSucceeded atomic.Int64
	runsFailed    atomic.Int64

	activeRuns atomic.Int64

	tokensUsed atomic.Int64

	notifySent   atomic.Int64
	notifyFailed atomic.Int64

	runDurations     []time.Duration
	runDurationsLock sync.Mutex

	stageFailures map[string]*atomic.Int64
	stageLock     sync.Mutex
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	return &Metrics{
		startTime:     time.Now(),
		runDurations:  make([]time.Duration, 0, 1000),
		stageFailures: make(map[string]*atomic.Int64),
	}
}

func (m *Metrics) RecordRun(success bool) {
	m.runsTotal.Add(1)
	if success {
		m.runsSucceeded.Add(1)
	} else {
		m.runsFailed.Add(1)
	}
}

func (m *Metrics) RecordStageFailure(stage string) {
	m.stageLock.Lock()
	defer m.stageLock.Unlock()
	if m.stageFailures[stage] == nil {
		m.stageFailures[stage] = &atomic.Int64{}
	}
	m.stageFailures[stage].Add(1)
}

func (m *Metrics) RecordTokens(count int64) {
	m.tokensUsed.Add(count)
}

func (m *Metrics) RecordNotify(success bool) {
	if success {
		m.notifySent.Add(1)
	} else {
		m.notifyFailed.Add(1)
	}
}

func (m *Metrics) RecordRunDuration(d time.Duration) {
	m.runDurationsLock.Lock()
	defer m.runDurationsLock.Unlock()

	m.runDurations = append(m.runDurations, d)
	if len(m.runDurations) > 1000 {
		m.runDurations = m.runDurations[1:]
	}
}

func (m *Metrics) IncrementActiveRuns() {
	m.activeRuns.Add(1)
}

func (m *Metrics) DecrementActiveRuns() {
	m.activeRuns.Add(-1)
}

type Snapshot struct {
	Uptime         time.Duration    `json:"uptime"`
	RunsTotal      int64            `json:"runs_total"`
	RunsSucceeded  int64            `json:"runs_succeeded"`
	RunsFailed     int64            `json:"runs_failed"`
	ActiveRuns     int64            `json:"active_runs"`
	TokensUsed     int64            `json:"tokens_used"`
	NotifySent     int64            `json:"notify_sent"`
	NotifyFailed   int64            `json:"notify_failed"`
	AvgRunDuration time.Duration    `json:"avg_run_duration"`
	StageFailures  map[string]int64 `json:"stage_failures"`
	SuccessRate    float64          `json:"success_rate"`
}

func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:        time.Since(m.startTime),
		RunsTotal:     m.runsTotal.Load(),
		RunsSucceeded: m.runsSucceeded.Load(),
		RunsFailed:    m.runsFailed.Load(),
		ActiveRuns:    m.activeRuns.Load(),
		TokensUsed:    m.tokensUsed.Load(),
		NotifySent:    m.notifySent.Load(),
		NotifyFailed:  m.notifyFailed.Load(),
		StageFailures: make(map[string]int64),
	}

	if s.RunsTotal > 0 {
		s.SuccessRate = float64(s.RunsSucceeded) / float64(s.RunsTotal) * 100
	}

	m.runDurationsLock.Lock()
	if len(m.runDurations) > 0 {
		var total time.Duration
		for _, d := range m.runDurations {
			total += d
		}
		s.AvgRunDuration = total / time.Duration(len(m.runDurations))
	}
	m.runDurationsLock.Unlock()

	m.stageLock.Lock()
	for stage, count := range m.stageFailures {
		s.StageFailures[stage] = count.Load()
	}
	m.stageLock.Unlock()

	return s
}

func (m *Metrics) Prometheus() string {
	var sb strings.Builder

	sb.WriteString("# HELP eob_uptime_seconds Time since server start\n")
	sb.WriteString("# TYPE eob_uptime_seconds gauge\n")
	sb.WriteString("eob_uptime_seconds " + strconv.FormatInt(int64(time.Since(m.startTime).Seconds()), 10) + "\n\n")

	sb.WriteString("# HELP eob_runs_total Total pipeline runs\n")
	sb.WriteString("# TYPE eob_runs_total counter\n")
	sb.WriteString("eob_runs_total " + strconv.FormatInt(m.runsTotal.Load(), 10) + "\n\n")

	sb.WriteString("# HELP eob_runs_succeeded Successful pipeline runs\n")
	sb.WriteString("# TYPE eob_runs_succeeded counter\n")
	sb.WriteString("eob_runs_succeeded " + strconv.FormatInt(m.runsSucceeded.Load(), 10) + "\n\n")

	sb.WriteString("# HELP eob_runs_failed Failed pipeline runs\n")
	sb.WriteString("# TYPE eob_runs_failed counter\n")
	sb.WriteString("eob_runs_failed " + strconv.FormatInt(m.runsFailed.Load(), 10) + "\n\n")

	sb.WriteString("# HELP eob_active_runs Pipeline runs in flight\n")
	sb.WriteString("# TYPE eob_active_runs gauge\n")
	sb.WriteString("eob_active_runs " + strconv.FormatInt(m.activeRuns.Load(), 10) + "\n\n")

	sb.WriteString("# HELP eob_tokens_used Estimated extraction tokens used\n")
	sb.WriteString("# TYPE eob_tokens_used counter\n")
	sb.WriteString("eob_tokens_used " + strconv.FormatInt(m.tokensUsed.Load(), 10) + "\n\n")

	sb.WriteString("# HELP eob_notify_sent Downstream notifications delivered\n")
	sb.WriteString("# TYPE eob_notify_sent counter\n")
	sb.WriteString("eob_notify_sent " + strconv.FormatInt(m.notifySent.Load(), 10) + "\n\n")

	sb.WriteString("# HELP eob_notify_failed Downstream notifications failed\n")
	sb.WriteString("# TYPE eob_notify_failed counter\n")
	sb.WriteString("eob_notify_failed " + strconv.FormatInt(m.notifyFailed.Load(), 10) + "\n\n")

	m.stageLock.Lock()
	for stage, count := range m.stageFailures {
		sb.WriteString("# HELP eob_stage_failures_total Failures per pipeline stage\n")
		sb.WriteString("# TYPE eob_stage_failures_total counter\n")
		sb.WriteString("eob_stage_failures_total{stage=\"" + stage + "\"} " + strconv.FormatInt(count.Load(), 10) + "\n\n")
	}
	m.stageLock.Unlock()

	return sb.String()
}
