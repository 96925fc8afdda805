package trigger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iannil/gaia/internal/events"
	"github.com/iannil/gaia/internal/workflow"
)

// fakeRunner records every start request instead of executing anything.
type fakeRunner struct {
	mu     sync.Mutex
	starts []startRequest
}

type startRequest struct {
	workflowID  string
	triggeredBy string
	vars        map[string]any
}

func (f *fakeRunner) StartTriggered(ctx context.Context, w *workflow.Workflow, vars map[string]any, triggeredBy string) (*workflow.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, startRequest{workflowID: w.ID, triggeredBy: triggeredBy, vars: vars})
	return nil, nil
}

func (f *fakeRunner) requests() []startRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]startRequest(nil), f.starts...)
}

func testWorkflow(id string, triggers ...workflow.Trigger) *workflow.Workflow {
	return &workflow.Workflow{
		ID:       id,
		Name:     id,
		Steps:    []*workflow.Step{{ID: "a", Action: "echo"}},
		Triggers: triggers,
	}
}

func TestManagerManualFire(t *testing.T) {
	runner := &fakeRunner{}
	m := NewManager(runner)
	defer m.Stop()

	w := testWorkflow("wf", workflow.Trigger{Type: workflow.TriggerManual})
	require.NoError(t, m.Register(context.Background(), w))

	_, err := m.Fire(context.Background(), "wf", map[string]any{"k": "v"})
	require.NoError(t, err)

	reqs := runner.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "wf", reqs[0].workflowID)
	assert.Equal(t, "manual", reqs[0].triggeredBy)
	assert.Equal(t, "v", reqs[0].vars["k"])

	_, err = m.Fire(context.Background(), "unknown", nil)
	assert.Error(t, err)
}

func TestManagerRejectsDuplicateRegistration(t *testing.T) {
	m := NewManager(&fakeRunner{})
	defer m.Stop()

	w := testWorkflow("wf")
	require.NoError(t, m.Register(context.Background(), w))
	assert.Error(t, m.Register(context.Background(), w))

	require.NoError(t, m.Unregister("wf"))
	assert.Error(t, m.Unregister("wf"))
	require.NoError(t, m.Register(context.Background(), w))
}

func TestManagerScheduleTrigger(t *testing.T) {
	m := NewManager(&fakeRunner{})
	defer m.Stop()

	t.Run("valid cron registers", func(t *testing.T) {
		w := testWorkflow("nightly", workflow.Trigger{
			Type:   workflow.TriggerSchedule,
			Config: map[string]any{"cron": "0 2 * * *"},
		})
		assert.NoError(t, m.Register(context.Background(), w))
	})

	t.Run("invalid cron is rejected", func(t *testing.T) {
		w := testWorkflow("broken", workflow.Trigger{
			Type:   workflow.TriggerSchedule,
			Config: map[string]any{"cron": "not a cron"},
		})
		assert.Error(t, m.Register(context.Background(), w))
	})

	t.Run("missing cron is rejected", func(t *testing.T) {
		w := testWorkflow("empty", workflow.Trigger{Type: workflow.TriggerSchedule})
		assert.Error(t, m.Register(context.Background(), w))
	})
}

func TestManagerEventTrigger(t *testing.T) {
	runner := &fakeRunner{}
	bus := events.NewBus()
	m := NewManager(runner, WithEventBus(bus))
	defer m.Stop()

	w := testWorkflow("on-finding", workflow.Trigger{
		Type:   workflow.TriggerEvent,
		Config: map[string]any{"event": "finding.created"},
	})
	require.NoError(t, m.Register(context.Background(), w))

	bus.Publish(context.Background(), "finding.created", map[string]any{"severity": "high"})

	require.Eventually(t, func() bool {
		return len(runner.requests()) == 1
	}, time.Second, 5*time.Millisecond)

	req := runner.requests()[0]
	assert.Equal(t, "event", req.triggeredBy)
	event := req.vars["event"].(map[string]any)
	assert.Equal(t, "high", event["severity"])
}

func TestManagerEventTriggerRequiresBus(t *testing.T) {
	m := NewManager(&fakeRunner{})
	defer m.Stop()

	w := testWorkflow("no-bus", workflow.Trigger{
		Type:   workflow.TriggerEvent,
		Config: map[string]any{"event": "x"},
	})
	assert.Error(t, m.Register(context.Background(), w))
}

func TestManagerWebhookTrigger(t *testing.T) {
	runner := &fakeRunner{}
	m := NewManager(runner)
	defer m.Stop()

	w := testWorkflow("hooked", workflow.Trigger{
		Type:   workflow.TriggerWebhook,
		Config: map[string]any{"path": "/hooks/deploy"},
	})
	require.NoError(t, m.Register(context.Background(), w))

	t.Run("delivers payload", func(t *testing.T) {
		_, err := m.HandleWebhook(context.Background(), "/hooks/deploy", map[string]any{"ref": "main"})
		require.NoError(t, err)

		reqs := runner.requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "webhook", reqs[0].triggeredBy)
		payload := reqs[0].vars["webhook"].(map[string]any)
		assert.Equal(t, "main", payload["ref"])
	})

	t.Run("unknown path", func(t *testing.T) {
		_, err := m.HandleWebhook(context.Background(), "/hooks/other", nil)
		assert.Error(t, err)
	})

	t.Run("path conflict across workflows", func(t *testing.T) {
		other := testWorkflow("rival", workflow.Trigger{
			Type:   workflow.TriggerWebhook,
			Config: map[string]any{"path": "/hooks/deploy"},
		})
		assert.Error(t, m.Register(context.Background(), other))
	})

	t.Run("unregister releases the path", func(t *testing.T) {
		require.NoError(t, m.Unregister("hooked"))
		_, err := m.HandleWebhook(context.Background(), "/hooks/deploy", nil)
		assert.Error(t, err)
	})
}

func TestManagerPublishesTriggerFired(t *testing.T) {
	bus := events.NewBus()
	m := NewManager(&fakeRunner{}, WithEventBus(bus))
	defer m.Stop()

	require.NoError(t, m.Register(context.Background(), testWorkflow("wf")))
	_, err := m.Fire(context.Background(), "wf", nil)
	require.NoError(t, err)

	history := bus.History(events.TriggerFired, 0)
	require.Len(t, history, 1)
	assert.Equal(t, "wf", history[0].Data["workflow_id"])
	assert.Equal(t, "manual", history[0].Data["triggered_by"])
}

func TestManagerStopRejectsRegistration(t *testing.T) {
	m := NewManager(&fakeRunner{})
	m.Stop()
	assert.Error(t, m.Register(context.Background(), testWorkflow("late")))
}
