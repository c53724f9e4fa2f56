package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OTADrop/internal/queue"
	"github.com/dharsanguruparan/OTADrop/internal/storage"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	store storage.Store
	log   *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(store storage.Store, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{store: store, log: log}
}

// Handler registers the cleanup job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.CleanupArtifactTask, p.handleCleanup)
	return mux
}

func (p *Processor) handleCleanup(ctx context.Context, task *asynq.Task) error {
	var payload queue.CleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	log := p.log.With(zap.String("namespace", string(payload.Namespace)), zap.String("name", payload.Name))
	err := p.store.Delete(ctx, payload.Namespace, payload.Name)
	switch {
	case err == nil:
		log.Info("removed artifact")
		return nil
	case errors.Is(err, storage.ErrNotFound):
		log.Debug("artifact already gone")
		return nil
	case errors.Is(err, storage.ErrInvalidName):
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		log.Error("remove artifact failed", zap.Error(err))
		return err
	}
}
