// internal/workers/jobs/jobs.go

// Package jobs holds the complete/fail plumbing shared by every worker.
// Business failures throw a BPMN error with the stable domain code so the
// process model can branch on it; storage failures fail the job with
// retries left so the broker redelivers.
package jobs

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	derr "healthcard-workers/internal/common/errors"
	"healthcard-workers/internal/common/logger"
)

const retryableAttempts = 3

// Complete finishes the job and publishes output as process variables.
func Complete(client worker.JobClient, job entities.Job, output interface{}, log logger.Logger) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		log.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		log.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	} else {
		log.Info("job completed successfully", map[string]interface{}{
			"jobKey": job.Key,
		})
	}
}

// Fail routes an execution error. Retryable failures go back to the broker
// via FailJob; business failures become BPMN errors carrying the domain code.
func Fail(client worker.JobClient, job entities.Job, err error, log logger.Logger) {
	code := string(derr.CodeOf(err))

	log.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    code,
		"errorMessage": err.Error(),
		"retryable":    derr.IsRetryable(err),
	})

	if derr.IsRetryable(err) {
		retries := job.Retries - 1
		if retries < 0 {
			retries = 0
		}
		_, failErr := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(retries).
			ErrorMessage(err.Error()).
			Send(context.Background())
		if failErr != nil {
			log.Error("failed to fail job", map[string]interface{}{
				"error": failErr,
			})
		}
		return
	}

	_, throwErr := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(code).
		ErrorMessage(err.Error()).
		Send(context.Background())
	if throwErr != nil {
		log.Error("failed to throw error", map[string]interface{}{
			"error": throwErr,
		})
	}
}

// FailParse rejects malformed job variables without retrying.
func FailParse(client worker.JobClient, job entities.Job, err error, log logger.Logger) {
	log.Error("job input parse failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorMessage": err.Error(),
	})

	_, throwErr := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode("PARSE_ERROR").
		ErrorMessage(err.Error()).
		Send(context.Background())
	if throwErr != nil {
		log.Error("failed to throw error", map[string]interface{}{
			"error": throwErr,
		})
	}
}
