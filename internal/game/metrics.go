package game

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts visitor progress. A nil *Metrics records nothing.
type Metrics struct {
	sessionsStarted  *prometheus.CounterVec
	answerChecks     *prometheus.CounterVec
	stageAdvances    *prometheus.CounterVec
	challengeChanges *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valentine",
			Name:      "sessions_started_total",
			Help:      "Session start requests, split by whether a new session was created.",
		}, []string{"result"}),
		answerChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valentine",
			Name:      "answer_checks_total",
			Help:      "Answer checks per stage and outcome.",
		}, []string{"stage", "correct"}),
		stageAdvances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valentine",
			Name:      "stage_advances_total",
			Help:      "Advance requests per target stage.",
		}, []string{"stage"}),
		challengeChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valentine",
			Name:      "challenge_transitions_total",
			Help:      "Challenge status transitions.",
		}, []string{"status"}),
	}
}

func (m *Metrics) sessionStarted(created bool) {
	if m == nil {
		return
	}
	result := "restored"
	if created {
		result = "created"
	}
	m.sessionsStarted.WithLabelValues(result).Inc()
}

func (m *Metrics) answerChecked(stage int, correct bool) {
	if m == nil {
		return
	}
	m.answerChecks.WithLabelValues(strconv.Itoa(stage), strconv.FormatBool(correct)).Inc()
}

func (m *Metrics) stageAdvanced(stage int) {
	if m == nil {
		return
	}
	m.stageAdvances.WithLabelValues(strconv.Itoa(stage)).Inc()
}

func (m *Metrics) challengeMoved(status string) {
	if m == nil {
		return
	}
	m.challengeChanges.WithLabelValues(status).Inc()
}
