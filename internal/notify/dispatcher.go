// internal/notify/dispatcher.go
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	awsclient "healthcard-workers/internal/common/aws"
	"healthcard-workers/internal/common/config"
	derr "healthcard-workers/internal/common/errors"
	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/models"
)

// Contact is the delivery address book entry for a recipient.
type Contact struct {
	Email string
	Phone string
}

// ContactResolver maps a recipient id to delivery addresses.
type ContactResolver interface {
	Resolve(ctx context.Context, recipientID string) (Contact, error)
}

// SQLContactResolver reads contacts from the applicants table.
type SQLContactResolver struct {
	DB *sql.DB
}

func (r *SQLContactResolver) Resolve(ctx context.Context, recipientID string) (Contact, error) {
	var c Contact
	err := r.DB.QueryRowContext(ctx,
		`SELECT email, phone FROM applicants WHERE id = $1`, recipientID).
		Scan(&c.Email, &c.Phone)
	if err == sql.ErrNoRows {
		return c, fmt.Errorf("%w: applicant %s", derr.ErrNotFound, recipientID)
	}
	if err != nil {
		return c, derr.Storagef("contact lookup failed: %v", err)
	}
	return c, nil
}

// Dispatcher delivers notification intents over SES email and SNS SMS.
// Delivery is best-effort: one failed channel is logged and the rest
// proceed, so workflow operations never fail on notification problems.
type Dispatcher struct {
	ses      *awsclient.SESClient
	sns      *awsclient.SNSClient
	resolver ContactResolver
	db       *sql.DB
	cfg      config.NotificationConfig
	log      logger.Logger
}

func NewDispatcher(sesClient *awsclient.SESClient, snsClient *awsclient.SNSClient, resolver ContactResolver, db *sql.DB, cfg config.NotificationConfig, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		ses:      sesClient,
		sns:      snsClient,
		resolver: resolver,
		db:       db,
		cfg:      cfg,
		log:      log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

// Dispatch delivers each intent on every enabled channel.
func (d *Dispatcher) Dispatch(ctx context.Context, notes []models.Notification) {
	for _, n := range notes {
		if err := d.dispatchOne(ctx, n); err != nil {
			d.log.WithError(err).Warn("notification delivery failed", map[string]interface{}{
				"kind":        n.Kind,
				"recipientId": n.RecipientID,
			})
			continue
		}
		d.markRejectionNotified(ctx, n)
	}
}

// markRejectionNotified flips the rejection record's notification_sent flag
// once its rejection or escalation intent has been delivered. The record is
// inserted with the flag off; this is the only writer that turns it on.
func (d *Dispatcher) markRejectionNotified(ctx context.Context, n models.Notification) {
	if d.db == nil {
		return
	}
	if n.Kind != models.NotifyArtifactRejected && n.Kind != models.NotifyLineageEscalated {
		return
	}

	applicationID, _ := n.Payload["applicationId"].(string)
	kind, _ := n.Payload["artifactKind"].(string)
	documentType, _ := n.Payload["documentType"].(string)
	attempt, ok := n.Payload["attemptNumber"].(int)
	if applicationID == "" || kind == "" || !ok {
		return
	}

	_, err := d.db.ExecContext(ctx, `
		UPDATE rejection_records SET notification_sent = TRUE
		WHERE application_id = $1 AND kind = $2 AND document_type = $3
		  AND attempt_number = $4 AND notification_sent = FALSE`,
		applicationID, kind, documentType, attempt)
	if err != nil {
		d.log.WithError(err).Warn("notification flag update failed", map[string]interface{}{
			"applicationId": applicationID,
			"kind":          n.Kind,
		})
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, n models.Notification) error {
	contact, err := d.resolver.Resolve(ctx, n.RecipientID)
	if err != nil {
		return err
	}

	subject, body := render(n)

	if d.cfg.Email.Enabled && d.ses != nil && contact.Email != "" {
		input := &ses.SendEmailInput{
			Source:      aws.String(d.cfg.Email.FromEmail),
			Destination: &types.Destination{ToAddresses: []string{contact.Email}},
			Message: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		}
		if _, err := d.ses.SendEmail(ctx, input); err != nil {
			d.log.WithError(err).Warn("email delivery failed", map[string]interface{}{
				"kind":        n.Kind,
				"recipientId": n.RecipientID,
			})
		}
	}

	if d.cfg.SMS.Enabled && d.sns != nil && contact.Phone != "" {
		input := &sns.PublishInput{
			PhoneNumber: aws.String(contact.Phone),
			Message:     aws.String(body),
		}
		if _, err := d.sns.Publish(ctx, input); err != nil {
			d.log.WithError(err).Warn("sms delivery failed", map[string]interface{}{
				"kind":        n.Kind,
				"recipientId": n.RecipientID,
			})
		}
	}

	return nil
}

// render produces a plain-text subject and body for an intent. Wording is
// deliberately generic; templates live with the delivery layer, not the core.
func render(n models.Notification) (subject, body string) {
	switch n.Kind {
	case models.NotifyArtifactApproved:
		subject = "Your submission was approved"
	case models.NotifyArtifactRejected:
		subject = "Your submission needs attention"
	case models.NotifyLineageEscalated:
		subject = "Your application needs administrative review"
	case models.NotifyBookingConfirmed:
		subject = "Orientation booking confirmed"
	case models.NotifyBookingMissed:
		subject = "Missed orientation session"
	case models.NotifyApplicationApproved:
		subject = "Your application was approved"
	case models.NotifyApplicationRejected:
		subject = "Your application was not approved"
	case models.NotifyApplicationExpired:
		subject = "Your application has expired"
	case models.NotifyHealthCardIssued:
		subject = "Your health card is ready"
	case models.NotifyHealthCardRevoked:
		subject = "Your health card was revoked"
	default:
		subject = "Health card application update"
	}

	payload, err := json.Marshal(n.Payload)
	if err != nil {
		payload = []byte("{}")
	}
	body = fmt.Sprintf("%s\n\nDetails: %s", subject, payload)
	return subject, body
}
