// internal/workers/application/decide-application/handler.go
package decideapplication

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
	TaskType = "decide-application"
)

type lifecycleService interface {
	Approve(ctx context.Context, actor models.Actor, applicationID, remarks string) (*models.HealthCard, []models.Notification, error)
	Reject(ctx context.Context, actor models.Actor, applicationID, remarks string) ([]models.Notification, error)
}

type notifier interface {
	Dispatch(ctx context.Context, notes []models.Notification)
}

type Handler struct {
	config    *Config
	lifecycle lifecycleService
	notifier  notifier
	logger    logger.Logger
}

func NewHandler(config *Config, lifecycle lifecycleService, notifier notifier, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		lifecycle: lifecycle,
		notifier:  notifier,
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
	actor := models.Actor{ID: input.ActorID, Roles: input.ActorRoles}
	decidedAt := time.Now().UTC().Format(time.RFC3339)

	if !input.Approve {
		notes, err := h.lifecycle.Reject(ctx, actor, input.ApplicationID, input.Remarks)
		if err != nil {
			return nil, err
		}
		if h.notifier != nil {
			h.notifier.Dispatch(ctx, notes)
		}
		return &Output{
			ApplicationStatus: string(models.StatusRejected),
			DecidedAt:         decidedAt,
		}, nil
	}

	card, notes, err := h.lifecycle.Approve(ctx, actor, input.ApplicationID, input.Remarks)
	if err != nil {
		return nil, err
	}
	if h.notifier != nil {
		h.notifier.Dispatch(ctx, notes)
	}

	output := &Output{
		ApplicationStatus: string(models.StatusApproved),
		DecidedAt:         decidedAt,
	}
	if card != nil {
		output.HealthCardID = card.ID
		output.RegistrationNumber = card.RegistrationNumber
	}
	return output, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
