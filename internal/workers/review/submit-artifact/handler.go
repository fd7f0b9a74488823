// internal/workers/review/submit-artifact/handler.go
package submitartifact

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	derr "healthcard-workers/internal/common/errors"
	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/common/validation"
	"healthcard-workers/internal/models"
	"healthcard-workers/internal/workers/jobs"
)

const (
	TaskType = "submit-artifact"
)

// inputSchema rejects malformed payloads before they reach the service
// layer, so schema errors surface as non-retryable parse failures.
const inputSchema = `{
	"type": "object",
	"required": ["applicationId", "actorId", "kind", "payloadRef"],
	"properties": {
		"applicationId": {"type": "string", "minLength": 1},
		"actorId":       {"type": "string", "minLength": 1},
		"kind":          {"type": "string", "enum": ["document", "payment"]},
		"documentType":  {"type": "string"},
		"payloadRef":    {"type": "string", "minLength": 1}
	}
}`

type reviewService interface {
	Submit(ctx context.Context, actor models.Actor, lineage models.Lineage, payloadRef string) (string, error)
}

type lifecycleService interface {
	OnArtifactResubmitted(ctx context.Context, applicationID string, kind models.ArtifactKind) (models.Status, error)
}

type Handler struct {
	config    *Config
	review    reviewService
	lifecycle lifecycleService
	logger    logger.Logger
}

func NewHandler(config *Config, review reviewService, lifecycle lifecycleService, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		review:    review,
		lifecycle: lifecycle,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(job.Variables), &raw); err != nil {
		jobs.FailParse(client, job, fmt.Errorf("parse input: %v", err), h.logger)
		return
	}
	if res, err := validation.ValidateInput(raw, inputSchema); err != nil {
		jobs.FailParse(client, job, fmt.Errorf("validate input: %v", err), h.logger)
		return
	} else if !res.Valid {
		jobs.FailParse(client, job, fmt.Errorf("invalid input: %s", res.Error()), h.logger)
		return
	}

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
	kind := models.ArtifactKind(input.Kind)
	if kind != models.ArtifactKindDocument && kind != models.ArtifactKindPayment {
		return nil, fmt.Errorf("%w: unknown artifact kind %q", derr.ErrConflict, input.Kind)
	}
	if kind == models.ArtifactKindDocument && input.DocumentType == "" {
		return nil, fmt.Errorf("%w: documentType is required for document artifacts", derr.ErrConflict)
	}

	actor := models.Actor{ID: input.ActorID, Roles: []string{models.RoleApplicant}}
	lineage := models.Lineage{
		ApplicationID: input.ApplicationID,
		Kind:          kind,
		DocumentType:  input.DocumentType,
	}

	artifactID, err := h.review.Submit(ctx, actor, lineage, input.PayloadRef)
	if err != nil {
		return nil, err
	}

	status, err := h.lifecycle.OnArtifactResubmitted(ctx, input.ApplicationID, kind)
	if err != nil {
		return nil, err
	}

	return &Output{
		ArtifactID:        artifactID,
		ApplicationStatus: string(status),
		SubmittedAt:       time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
