package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/OTADrop/internal/storage"
)

const (
	// CleanupArtifactTask is scheduled when a published upload has to be
	// rolled back outside the request.
	CleanupArtifactTask = "artifact:cleanup"

	maxRetry = 5
)

// CleanupPayload is serialized into the task payload so the worker knows
// which artifact to delete.
type CleanupPayload struct {
	Namespace storage.Namespace `json:"namespace"`
	Name      string            `json:"name"`
}

// Enqueuer is the subset of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewCleanupTask builds the task for payload.
func NewCleanupTask(payload CleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(CleanupArtifactTask, data), nil
}

// Client enqueues cleanup jobs; it implements upload.Janitor.
type Client struct {
	enqueuer Enqueuer
}

// NewClient wraps an asynq client.
func NewClient(enqueuer Enqueuer) *Client {
	return &Client{enqueuer: enqueuer}
}

// Discard enqueues deletion of one artifact.
func (c *Client) Discard(ctx context.Context, ns storage.Namespace, name string) error {
	task, err := NewCleanupTask(CleanupPayload{Namespace: ns, Name: name})
	if err != nil {
		return err
	}
	if _, err := c.enqueuer.EnqueueContext(ctx, task, asynq.MaxRetry(maxRetry)); err != nil {
		return fmt.Errorf("enqueue cleanup task: %w", err)
	}
	return nil
}
