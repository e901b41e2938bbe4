package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store/memory"
)

func TestStateCollectorReportsStoreState(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	active := &model.Execution{WorkflowName: "Renewal prep", UserID: "csm-1", Status: model.ExecutionInProgress, TotalSteps: 3}
	require.NoError(t, st.Executions().Create(ctx, active))
	require.NoError(t, st.Executions().Create(ctx, &model.Execution{WorkflowName: "Onboarding", UserID: "csm-2", Status: model.ExecutionCompleted, TotalSteps: 1}))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, st.StepStates().Upsert(ctx, &model.StepState{
		ExecutionID: active.ID,
		StepIndex:   0,
		StepID:      "welcome",
		Status:      model.StepSnoozed,
		SnoozeUntil: &past,
	}, 0))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewStateCollector(st, zap.NewNop())))
	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	executions := byName["guidepath_executions"]
	require.NotNil(t, executions)
	counts := make(map[string]float64)
	for _, m := range executions.GetMetric() {
		counts[m.GetLabel()[0].GetValue()] = m.GetGauge().GetValue()
	}
	assert.Equal(t, 1.0, counts[string(model.ExecutionInProgress)])
	assert.Equal(t, 1.0, counts[string(model.ExecutionCompleted)])
	assert.Equal(t, 0.0, counts[string(model.ExecutionSkipped)])

	snoozed := byName["guidepath_snoozed_steps_due"]
	require.NotNil(t, snoozed)
	require.Len(t, snoozed.GetMetric(), 1)
	assert.Equal(t, "csm-1", snoozed.GetMetric()[0].GetLabel()[0].GetValue())
	assert.Equal(t, 1.0, snoozed.GetMetric()[0].GetGauge().GetValue())

	up := byName["guidepath_state_collector_up"]
	require.NotNil(t, up)
	assert.Equal(t, 1.0, up.GetMetric()[0].GetGauge().GetValue())
}
