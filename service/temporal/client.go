package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

var _ Scheduler = (*Client)(nil)

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

func (c *Client) workflowAction(token string) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        "reconcile-" + token,
		Workflow:  ReconcileWorkflow,
		TaskQueue: c.taskQueue,
		Args:      []interface{}{ReconcileInput{Token: token}},
	}
}

// CreateReconcileSchedule creates a schedule that runs ReconcileWorkflow every interval.
func (c *Client) CreateReconcileSchedule(ctx context.Context, token string, interval time.Duration) error {
	id := scheduleID(token)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: c.workflowAction(token),
		Memo: map[string]interface{}{
			"token":      token,
			"created_by": "mintledger",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule", "token", token, "schedule_id", id, "error", err)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("reconcile schedule created", "token", token, "schedule_id", id, "interval", interval)
	return nil
}

// UpsertReconcileSchedule creates the schedule, or updates its interval if it exists.
func (c *Client) UpsertReconcileSchedule(ctx context.Context, token string, interval time.Duration) error {
	id := scheduleID(token)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one", "schedule_id", id, "error", err)
		return c.CreateReconcileSchedule(ctx, token, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule", "token", token, "schedule_id", id, "error", err)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("reconcile schedule updated", "token", token, "schedule_id", id, "interval", interval)
	return nil
}

// DeleteReconcileSchedule deletes the token's reconcile schedule.
func (c *Client) DeleteReconcileSchedule(ctx context.Context, token string) error {
	id := scheduleID(token)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule", "token", token, "schedule_id", id, "error", err)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("reconcile schedule deleted", "token", token, "schedule_id", id)
	return nil
}

// RunReconcile starts ReconcileWorkflow immediately and waits for its result.
func (c *Client) RunReconcile(ctx context.Context, token string) (*ReconcileResult, error) {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("reconcile-%s-manual-%d", token, time.Now().Unix()),
		TaskQueue: c.taskQueue,
	}

	run, err := c.client.ExecuteWorkflow(ctx, opts, ReconcileWorkflow, ReconcileInput{Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to start reconcile workflow: %w", err)
	}
	c.logger.Info("reconcile workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())

	var result ReconcileResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("reconcile workflow failed: %w", err)
	}
	return &result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
