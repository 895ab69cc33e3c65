package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quest"

// Metrics 进度引擎指标；nil 接收者上的方法均为空操作，便于测试中省略
type Metrics struct {
	Registry *prometheus.Registry

	transitions       *prometheus.CounterVec
	pointsEarned      prometheus.Counter
	streakBonus       prometheus.Counter
	rankUps           prometheus.Counter
	levelUps          prometheus.Counter
	writes            prometheus.Counter
	writeFailures     prometheus.Counter
	writeLatency      prometheus.Histogram
	snapshots         *prometheus.CounterVec
	snapshotsRejected prometheus.Counter
	flagClears        prometheus.Counter
	sessions          prometheus.Gauge
}

// NewMetrics 创建独立 registry 并注册全部指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Progress transitions by kind and result.",
		}, []string{"kind", "result"}),
		pointsEarned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_earned_total",
			Help:      "Skill points earned by logged activities, streak bonus included.",
		}),
		streakBonus: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streak_bonus_total",
			Help:      "Bonus points granted for weekly streaks.",
		}),
		rankUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rank_ups_total",
			Help:      "Skill rank increases.",
		}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Account level increases.",
		}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Whole-document writes acknowledged by the store.",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Whole-document writes that failed.",
		}),
		writeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Latency of whole-document writes.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Incoming snapshots by outcome.",
		}, []string{"outcome"}),
		snapshotsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_rejected_total",
			Help:      "Incoming snapshots rejected by shape validation.",
		}),
		flagClears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leveling_flag_clears_total",
			Help:      "Leveling-up flags cleared by the scheduler.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Users with an open progress session.",
		}),
	}
	reg.MustRegister(
		m.transitions, m.pointsEarned, m.streakBonus, m.rankUps, m.levelUps,
		m.writes, m.writeFailures, m.writeLatency,
		m.snapshots, m.snapshotsRejected, m.flagClears, m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Transition 记录一次转换结果：applied / not_applicable / invalid
func (m *Metrics) Transition(kind, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, result).Inc()
}

// Applied 记录一次成功的活动记录
func (m *Metrics) Applied(points, bonus, rankUps, levelDelta int) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues("apply", "applied").Inc()
	m.pointsEarned.Add(float64(points))
	m.streakBonus.Add(float64(bonus))
	m.rankUps.Add(float64(rankUps))
	if levelDelta > 0 {
		m.levelUps.Add(float64(levelDelta))
	}
}

// Write 记录一次整文档写入
func (m *Metrics) Write(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.writeLatency.Observe(d.Seconds())
	if err != nil {
		m.writeFailures.Inc()
		return
	}
	m.writes.Inc()
}

// Snapshot 记录快照处理结果：adopted / ignored / rejected
func (m *Metrics) Snapshot(outcome string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(outcome).Inc()
	if outcome == "rejected" {
		m.snapshotsRejected.Inc()
	}
}

func (m *Metrics) FlagCleared() {
	if m == nil {
		return
	}
	m.flagClears.Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}
