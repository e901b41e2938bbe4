package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

const collectTimeout = 5 * time.Second

var executionStatuses = []model.ExecutionStatus{
	model.ExecutionNotStarted,
	model.ExecutionInProgress,
	model.ExecutionCompleted,
	model.ExecutionSkipped,
}

// StateCollector reports execution and snooze gauges read from the store at scrape time.
type StateCollector struct {
	executions store.ExecutionRepository
	steps      store.StepStateRepository
	logger     *zap.Logger
	now        func() time.Time

	executionsDesc *prometheus.Desc
	snoozedDesc    *prometheus.Desc
	upDesc         *prometheus.Desc
}

func NewStateCollector(st store.Repositories, logger *zap.Logger) *StateCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateCollector{
		executions: st.Executions(),
		steps:      st.StepStates(),
		logger:     logger,
		now:        time.Now,
		executionsDesc: prometheus.NewDesc(
			"guidepath_executions",
			"Current number of executions by status.",
			[]string{"status"}, nil,
		),
		snoozedDesc: prometheus.NewDesc(
			"guidepath_snoozed_steps_due",
			"Snoozed steps whose wake time has passed, by assignee.",
			[]string{"assigned_to"}, nil,
		),
		upDesc: prometheus.NewDesc(
			"guidepath_state_collector_up",
			"Whether the last store read for state metrics succeeded.",
			nil, nil,
		),
	}
}

func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.executionsDesc
	ch <- c.snoozedDesc
	ch <- c.upDesc
}

func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	up := 1.0
	for _, status := range executionStatuses {
		status := status
		_, total, err := c.executions.List(ctx, store.ExecutionFilter{Status: &status, Limit: 1})
		if err != nil {
			c.logger.Warn("failed to count executions", zap.String("status", string(status)), zap.Error(err))
			up = 0
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.executionsDesc, prometheus.GaugeValue, float64(total), string(status))
	}

	due, err := c.steps.ListSnoozedDue(ctx, "", c.now())
	if err != nil {
		c.logger.Warn("failed to list due snoozed steps", zap.Error(err))
		up = 0
	} else {
		byAssignee := make(map[string]int)
		for _, step := range due {
			byAssignee[step.AssignedTo]++
		}
		for assignee, n := range byAssignee {
			ch <- prometheus.MustNewConstMetric(c.snoozedDesc, prometheus.GaugeValue, float64(n), assignee)
		}
	}

	ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, up)
}
