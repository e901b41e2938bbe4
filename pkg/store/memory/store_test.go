package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

func newExecution(t *testing.T, s *Store) *model.Execution {
	t.Helper()
	exec := &model.Execution{
		WorkflowConfigID: "renewal-prep",
		WorkflowName:     "Renewal prep",
		CustomerID:       uuid.New(),
		UserID:           "user-1",
		Status:           model.ExecutionInProgress,
		TotalSteps:       3,
	}
	require.NoError(t, s.Executions().Create(context.Background(), exec))
	return exec
}

func TestStepStateUpsertIsKeyedOnExecutionAndIndex(t *testing.T) {
	ctx := context.Background()
	s := New()
	exec := newExecution(t, s)

	state := &model.StepState{ExecutionID: exec.ID, StepIndex: 1, StepID: "step-1", Status: model.StepSnoozed}
	require.NoError(t, s.StepStates().Upsert(ctx, state, 0))
	assert.Equal(t, int64(1), state.Version)

	dup := &model.StepState{ExecutionID: exec.ID, StepIndex: 1, StepID: "step-1", Status: model.StepSkipped}
	err := s.StepStates().Upsert(ctx, dup, 0)
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	state.Status = model.StepPending
	require.NoError(t, s.StepStates().Upsert(ctx, state, 1))
	assert.Equal(t, int64(2), state.Version)

	stale := *state
	stale.Status = model.StepCompleted
	assert.ErrorIs(t, s.StepStates().Upsert(ctx, &stale, 1), store.ErrVersionConflict)

	states, err := s.StepStates().ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, model.StepPending, states[0].Status)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	exec := newExecution(t, s)
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx store.Repositories) error {
		state := &model.StepState{ExecutionID: exec.ID, StepIndex: 0, StepID: "step-0", Status: model.StepCompleted}
		if err := tx.StepStates().Upsert(ctx, state, 0); err != nil {
			return err
		}
		if err := tx.StepActions().Append(ctx, &model.StepAction{ExecutionID: exec.ID, StepIndex: 0, ActionType: model.ActionComplete}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	states, err := s.StepStates().ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Empty(t, states)
	actions, err := s.StepActions().ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestExecutionUpdateComparesVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	exec := newExecution(t, s)

	exec.CurrentStepIndex = 1
	require.NoError(t, s.Executions().Update(ctx, exec, 1))
	assert.Equal(t, int64(2), exec.Version)

	assert.ErrorIs(t, s.Executions().Update(ctx, exec, 1), store.ErrVersionConflict)
}

func TestListSnoozedDueFiltersByAssigneeAndTime(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New()
	s.SetClock(func() time.Time { return now })
	exec := newExecution(t, s)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	require.NoError(t, s.StepStates().Upsert(ctx, &model.StepState{ExecutionID: exec.ID, StepIndex: 0, Status: model.StepSnoozed, SnoozeUntil: &past}, 0))
	require.NoError(t, s.StepStates().Upsert(ctx, &model.StepState{ExecutionID: exec.ID, StepIndex: 1, Status: model.StepSnoozed, SnoozeUntil: &future}, 0))

	due, err := s.StepStates().ListSnoozedDue(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 0, due[0].State.StepIndex)
	assert.Equal(t, "user-1", due[0].AssignedTo)

	due, err = s.StepStates().ListSnoozedDue(ctx, "someone-else", now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMarkDueNotifiedOnlyStampsDueSnoozedSteps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New()
	s.SetClock(func() time.Time { return now })
	exec := newExecution(t, s)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	due := &model.StepState{ExecutionID: exec.ID, StepIndex: 0, Status: model.StepSnoozed, SnoozeUntil: &past}
	later := &model.StepState{ExecutionID: exec.ID, StepIndex: 1, Status: model.StepSnoozed, SnoozeUntil: &future}
	resumed := &model.StepState{ExecutionID: exec.ID, StepIndex: 2, Status: model.StepPending}
	for _, st := range []*model.StepState{due, later, resumed} {
		require.NoError(t, s.StepStates().Upsert(ctx, st, 0))
	}

	require.NoError(t, s.StepStates().MarkDueNotified(ctx, due.ID, now))
	assert.ErrorIs(t, s.StepStates().MarkDueNotified(ctx, due.ID, now), store.ErrVersionConflict)
	assert.ErrorIs(t, s.StepStates().MarkDueNotified(ctx, later.ID, now), store.ErrVersionConflict)
	assert.ErrorIs(t, s.StepStates().MarkDueNotified(ctx, resumed.ID, now), store.ErrVersionConflict)
	assert.ErrorIs(t, s.StepStates().MarkDueNotified(ctx, uuid.New(), now), store.ErrNotFound)

	stored, err := s.StepStates().Get(ctx, exec.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, stored.DueNotifiedAt)
	assert.True(t, stored.DueNotifiedAt.Equal(now))
}

func TestLoadFixtures(t *testing.T) {
	customerID := uuid.New()
	doc := `
customers:
  - id: ` + customerID.String() + `
    name: Acme
    tier: enterprise
contacts:
  - customer_id: ` + customerID.String() + `
    name: Jane Doe
    is_primary: true
`
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s := New()
	require.NoError(t, s.LoadFixtures(path))

	customer, err := s.Customers().GetByID(context.Background(), customerID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", customer.Name)

	contacts, err := s.Customers().Contacts(context.Background(), customerID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.True(t, contacts[0].IsPrimary)
}
