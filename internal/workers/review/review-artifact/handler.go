// internal/workers/review/review-artifact/handler.go
package reviewartifact

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/core/review"
	"healthcard-workers/internal/models"
	"healthcard-workers/internal/workers/jobs"
)

const (
	TaskType = "review-artifact"
)

type reviewService interface {
	Review(ctx context.Context, actor models.Actor, artifactID string, input review.ReviewInput) (*review.Outcome, []models.Notification, error)
}

type lifecycleService interface {
	ApplyReviewOutcome(ctx context.Context, actor models.Actor, outcome review.Outcome) (models.Status, error)
}

type notifier interface {
	Dispatch(ctx context.Context, notes []models.Notification)
}

type Handler struct {
	config    *Config
	review    reviewService
	lifecycle lifecycleService
	notifier  notifier
	logger    logger.Logger
}

func NewHandler(config *Config, review reviewService, lifecycle lifecycleService, notifier notifier, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		review:    review,
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
	actor := models.Actor{ID: input.ReviewerID, Roles: input.ReviewerRoles}

	outcome, notes, err := h.review.Review(ctx, actor, input.ArtifactID, review.ReviewInput{
		Decision:       review.Decision(input.Decision),
		Category:       input.Category,
		Reason:         input.Reason,
		SpecificIssues: input.SpecificIssues,
		Remarks:        input.Remarks,
	})
	if err != nil {
		return nil, err
	}

	status, err := h.lifecycle.ApplyReviewOutcome(ctx, actor, *outcome)
	if err != nil {
		return nil, err
	}

	if h.notifier != nil {
		h.notifier.Dispatch(ctx, notes)
	}

	return &Output{
		ApplicationID:     outcome.ApplicationID,
		Approved:          outcome.Approved,
		AttemptNumber:     outcome.AttemptNumber,
		Locked:            outcome.Locked,
		ApplicationStatus: string(status),
		ReviewedAt:        time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
