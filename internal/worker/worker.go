package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/linguaclip/backend/internal/transcribe"
	"github.com/linguaclip/backend/pkg/queue"
)

// TranscriptionProcessor consumes transcription jobs: claim the media
// item, run the backend, persist the result. Pipeline failures resolve
// to a terminal failed status on the item and are absorbed here; only
// envelope-level problems (undecodable payload, unknown job type) go
// back through the queue's retry/DLQ machinery.
type TranscriptionProcessor struct {
	service *transcribe.Service
	queue   *queue.Queue
	logger  *zap.Logger
}

// NewTranscriptionProcessor creates a transcription job processor.
func NewTranscriptionProcessor(service *transcribe.Service, q *queue.Queue, logger *zap.Logger) *TranscriptionProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptionProcessor{service: service, queue: q, logger: logger}
}

// Process executes one transcription job.
func (p *TranscriptionProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeTranscription {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.TranscriptionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	err := p.service.Process(ctx, payload.MediaItemID, payload.Language)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transcribe.ErrAlreadyProcessing):
		// duplicate submission lost the claim race; nothing to do
		p.logger.Info("item already claimed, skipping",
			zap.String("job_id", job.ID), zap.String("media_item_id", payload.MediaItemID.String()))
		return nil
	case errors.Is(err, transcribe.ErrItemNotFound):
		p.logger.Warn("media item gone, dropping job",
			zap.String("job_id", job.ID), zap.String("media_item_id", payload.MediaItemID.String()))
		return nil
	default:
		// the service already wrote the terminal failed status;
		// the async path logs and swallows, it never re-raises
		p.logger.Error("transcription job failed",
			zap.String("job_id", job.ID),
			zap.String("media_item_id", payload.MediaItemID.String()),
			zap.Error(err))
		return nil
	}
}

// Run starts the worker loop: dequeue, process, retry envelope errors.
func (p *TranscriptionProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("transcription worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("transcription worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job rejected", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
		}
	}
}
