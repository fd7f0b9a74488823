// internal/workers/healthcard/issue-health-card/handler.go
package issuehealthcard

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
	TaskType = "issue-health-card"
)

type issuerService interface {
	Issue(ctx context.Context, applicationID string) (*models.HealthCard, []models.Notification, error)
}

type notifier interface {
	Dispatch(ctx context.Context, notes []models.Notification)
}

type Handler struct {
	config   *Config
	issuer   issuerService
	notifier notifier
	logger   logger.Logger
}

func NewHandler(config *Config, issuer issuerService, notifier notifier, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		issuer:   issuer,
		notifier: notifier,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
	card, notes, err := h.issuer.Issue(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}

	if h.notifier != nil {
		h.notifier.Dispatch(ctx, notes)
	}

	return &Output{
		HealthCardID:       card.ID,
		RegistrationNumber: card.RegistrationNumber,
		IssuedDate:         card.IssuedDate.Format(time.RFC3339),
		ExpiryDate:         card.ExpiryDate.Format(time.RFC3339),
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
