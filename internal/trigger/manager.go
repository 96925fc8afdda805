// Package trigger starts workflow executions in response to schedules,
// emitted events, webhook deliveries, and manual requests.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/robfig/cron/v3"

	"github.com/iannil/gaia/internal/events"
	"github.com/iannil/gaia/internal/workflow"
)

// Runner starts a workflow execution on behalf of a fired trigger.
// *workflow.Executor satisfies it.
type Runner interface {
	StartTriggered(ctx context.Context, w *workflow.Workflow, vars map[string]any, triggeredBy string) (*workflow.Execution, error)
}

// ScheduleConfig is the decoded config of a schedule trigger.
type ScheduleConfig struct {
	// Cron is a standard five-field cron expression.
	Cron string `mapstructure:"cron"`
}

// EventConfig is the decoded config of an event trigger.
type EventConfig struct {
	// Event is the bus event name that fires the trigger.
	Event string `mapstructure:"event"`
}

// WebhookConfig is the decoded config of a webhook trigger.
type WebhookConfig struct {
	// Path identifies the webhook endpoint, unique across workflows.
	Path string `mapstructure:"path"`
}

// registration tracks the live resources of one registered workflow.
type registration struct {
	workflow     *workflow.Workflow
	cronEntries  []cron.EntryID
	eventCancels []func()
	webhookPaths []string
}

// Manager owns the trigger lifecycle for a set of workflows. Schedule
// triggers run on an internal cron scheduler, event triggers subscribe to
// the event bus, and webhook triggers are fired by the caller through
// HandleWebhook.
type Manager struct {
	runner Runner
	logger *slog.Logger
	bus    *events.Bus
	cron   *cron.Cron

	mu       sync.Mutex
	regs     map[string]*registration
	webhooks map[string]string // path -> workflow id
	stopped  bool
}

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*Manager)

// WithLogger configures the manager to use the given structured logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithEventBus configures the bus used for event triggers and for
// publishing trigger.fired events. Without a bus, event triggers are
// rejected at registration.
func WithEventBus(bus *events.Bus) ManagerOption {
	return func(m *Manager) {
		m.bus = bus
	}
}

// NewManager creates a Manager that starts executions through runner.
func NewManager(runner Runner, opts ...ManagerOption) *Manager {
	m := &Manager{
		runner:   runner,
		logger:   slog.Default(),
		cron:     cron.New(),
		regs:     make(map[string]*registration),
		webhooks: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins evaluating schedule triggers. Registration is allowed both
// before and after Start.
func (m *Manager) Start() {
	m.cron.Start()
}

// Stop stops the scheduler and cancels all event subscriptions. In-flight
// executions are not interrupted.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	regs := make([]*registration, 0, len(m.regs))
	for _, reg := range m.regs {
		regs = append(regs, reg)
	}
	m.mu.Unlock()

	m.cron.Stop()
	for _, reg := range regs {
		for _, cancel := range reg.eventCancels {
			cancel()
		}
	}
}

// Register wires up every trigger the workflow declares. A workflow with
// no triggers registers successfully and can still be fired manually.
// Registering a workflow id twice is an error; Unregister it first.
func (m *Manager) Register(ctx context.Context, w *workflow.Workflow) error {
	if w == nil {
		return fmt.Errorf("cannot register nil workflow")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return fmt.Errorf("trigger manager is stopped")
	}
	if _, exists := m.regs[w.ID]; exists {
		return fmt.Errorf("workflow %q is already registered", w.ID)
	}

	reg := &registration{workflow: w}
	for i := range w.Triggers {
		if err := m.registerTrigger(ctx, reg, &w.Triggers[i]); err != nil {
			m.releaseLocked(reg)
			return fmt.Errorf("workflow %q trigger %d: %w", w.ID, i, err)
		}
	}

	m.regs[w.ID] = reg
	m.logger.InfoContext(ctx, "workflow registered",
		"workflow_id", w.ID,
		"trigger_count", len(w.Triggers),
	)
	return nil
}

// Unregister removes a workflow and releases its schedule entries, event
// subscriptions, and webhook paths.
func (m *Manager) Unregister(workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, exists := m.regs[workflowID]
	if !exists {
		return fmt.Errorf("workflow %q is not registered", workflowID)
	}
	m.releaseLocked(reg)
	delete(m.regs, workflowID)
	return nil
}

// Fire starts a manual execution of a registered workflow.
func (m *Manager) Fire(ctx context.Context, workflowID string, vars map[string]any) (*workflow.Execution, error) {
	m.mu.Lock()
	reg, exists := m.regs[workflowID]
	m.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("workflow %q is not registered", workflowID)
	}
	return m.fire(ctx, reg.workflow, string(workflow.TriggerManual), vars)
}

// HandleWebhook fires the workflow registered for the given webhook path.
// The payload is exposed to the workflow under the "webhook" variable.
func (m *Manager) HandleWebhook(ctx context.Context, path string, payload map[string]any) (*workflow.Execution, error) {
	m.mu.Lock()
	workflowID, exists := m.webhooks[path]
	var reg *registration
	if exists {
		reg = m.regs[workflowID]
	}
	m.mu.Unlock()
	if reg == nil {
		return nil, fmt.Errorf("no webhook registered at path %q", path)
	}

	vars := map[string]any{"webhook": payload}
	return m.fire(ctx, reg.workflow, string(workflow.TriggerWebhook), vars)
}

func (m *Manager) registerTrigger(ctx context.Context, reg *registration, t *workflow.Trigger) error {
	switch t.Type {
	case workflow.TriggerManual:
		return nil

	case workflow.TriggerSchedule:
		var cfg ScheduleConfig
		if err := mapstructure.Decode(t.Config, &cfg); err != nil {
			return fmt.Errorf("decoding schedule config: %w", err)
		}
		if cfg.Cron == "" {
			return fmt.Errorf("schedule trigger requires a cron expression")
		}
		w := reg.workflow
		entryID, err := m.cron.AddFunc(cfg.Cron, func() {
			if _, err := m.fire(context.Background(), w, string(workflow.TriggerSchedule), nil); err != nil {
				m.logger.Error("scheduled execution failed to start",
					"workflow_id", w.ID,
					"error", err,
				)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", cfg.Cron, err)
		}
		reg.cronEntries = append(reg.cronEntries, entryID)
		return nil

	case workflow.TriggerEvent:
		if m.bus == nil {
			return fmt.Errorf("event trigger requires an event bus")
		}
		var cfg EventConfig
		if err := mapstructure.Decode(t.Config, &cfg); err != nil {
			return fmt.Errorf("decoding event config: %w", err)
		}
		if cfg.Event == "" {
			return fmt.Errorf("event trigger requires an event name")
		}
		ch, cancel := m.bus.Subscribe(cfg.Event)
		reg.eventCancels = append(reg.eventCancels, cancel)
		w := reg.workflow
		go func() {
			for ev := range ch {
				vars := map[string]any{"event": ev.Data}
				if _, err := m.fire(context.Background(), w, string(workflow.TriggerEvent), vars); err != nil {
					m.logger.Error("event-triggered execution failed to start",
						"workflow_id", w.ID,
						"event", ev.Name,
						"error", err,
					)
				}
			}
		}()
		return nil

	case workflow.TriggerWebhook:
		var cfg WebhookConfig
		if err := mapstructure.Decode(t.Config, &cfg); err != nil {
			return fmt.Errorf("decoding webhook config: %w", err)
		}
		if cfg.Path == "" {
			return fmt.Errorf("webhook trigger requires a path")
		}
		if owner, taken := m.webhooks[cfg.Path]; taken {
			return fmt.Errorf("webhook path %q is already registered to workflow %q", cfg.Path, owner)
		}
		m.webhooks[cfg.Path] = reg.workflow.ID
		reg.webhookPaths = append(reg.webhookPaths, cfg.Path)
		return nil

	default:
		return fmt.Errorf("unsupported trigger type %q", t.Type)
	}
}

// releaseLocked frees a registration's resources. Caller holds m.mu.
func (m *Manager) releaseLocked(reg *registration) {
	for _, id := range reg.cronEntries {
		m.cron.Remove(id)
	}
	for _, cancel := range reg.eventCancels {
		cancel()
	}
	for _, path := range reg.webhookPaths {
		delete(m.webhooks, path)
	}
}

// fire publishes the trigger.fired event and starts the execution.
func (m *Manager) fire(ctx context.Context, w *workflow.Workflow, triggeredBy string, vars map[string]any) (*workflow.Execution, error) {
	if m.bus != nil {
		m.bus.Publish(ctx, events.TriggerFired, map[string]any{
			"workflow_id":  w.ID,
			"triggered_by": triggeredBy,
		})
	}
	m.logger.InfoContext(ctx, "trigger fired",
		"workflow_id", w.ID,
		"triggered_by", triggeredBy,
	)
	return m.runner.StartTriggered(ctx, w, vars, triggeredBy)
}
