// internal/workers/orientation/complete-orientation/handler.go
package completeorientation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/models"
	"healthcard-workers/internal/workers/jobs"
)

const (
	TaskType = "complete-orientation"
)

type schedulerService interface {
	Complete(ctx context.Context, bookingID string, now time.Time) error
}

type Handler struct {
	config    *Config
	scheduler schedulerService
	logger    logger.Logger
}

func NewHandler(config *Config, scheduler schedulerService, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		scheduler: scheduler,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		jobs.FailParse(client, job, fmt.Errorf("parse input: %v", err), h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		jobs.Fail(client, job, err, h.logger)
		return
	}

	jobs.Complete(client, job, output, h.logger)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	now := time.Now().UTC()
	if err := h.scheduler.Complete(ctx, input.BookingID, now); err != nil {
		return nil, err
	}

	return &Output{
		BookingStatus: string(models.BookingStatusCompleted),
		CompletedAt:   now.Format(time.RFC3339),
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
