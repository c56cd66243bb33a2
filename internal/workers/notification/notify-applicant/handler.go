// internal/workers/notification/notify-applicant/handler.go
package notifyapplicant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/models"
	"pmc-registration/internal/notify"
	"pmc-registration/internal/workflow"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "notify-applicant"
)

type Notifier interface {
	NotifyStageChanged(ctx context.Context, evt models.StageChangedEvent) []models.Notification
}

type Handler struct {
	config   *Config
	notifier Notifier
	errors   *apperrors.JobErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, notifier Notifier, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		notifier: notifier,
		errors:   apperrors.NewJobErrorHandler(log),
		logger:   log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		stdErr := apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err))
		h.errors.HandleJobError(ctx, client, job, stdErr)
		return stdErr
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return err
	}

	return h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.ApplicationID) == "" {
		return nil, apperrors.NewValidationError("applicationId is required",
			apperrors.FieldError{Field: "applicationId", Code: "REQUIRED_FIELD_MISSING", Message: "applicationId is required"})
	}
	to := workflow.Stage(input.ToStage)
	if !to.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("toStage %d is not a stage", input.ToStage))
	}

	records := h.notifier.NotifyStageChanged(ctx, models.StageChangedEvent{
		EventID:           input.EventID,
		ApplicationID:     input.ApplicationID,
		ApplicationNumber: input.ApplicationNumber,
		PositionType:      workflow.PositionType(input.PositionType),
		FromStage:         workflow.Stage(input.FromStage),
		ToStage:           to,
		Status:            to.Status(),
		Action:            workflow.Action(input.Action),
		ApplicantEmail:    input.ApplicantEmail,
		ApplicantMobile:   input.ApplicantMobile,
		ApplicantName:     input.ApplicantName,
		CertificateNumber: input.CertificateNumber,
		Reason:            input.Reason,
	})

	status := summarize(records)
	if status == notify.StatusFailed && h.config.FailOnUndelivered {
		return nil, apperrors.NewNotificationSendFailedError("email", fmt.Errorf("no channel delivered for %s", input.ApplicationID))
	}

	out := &Output{
		Status:        status,
		Notifications: records,
		SentAt:        time.Now().UTC().Format(time.RFC3339),
	}
	if len(records) > 0 {
		out.NotificationID = records[0].ID
	}
	h.logger.Info("applicant notified", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"toStage":       to.String(),
		"status":        status,
	})
	return out, nil
}

// summarize is sent when any channel delivered, failed when one was tried
// and none delivered, disabled otherwise.
func summarize(records []models.Notification) string {
	status := notify.StatusDisabled
	for _, r := range records {
		switch r.Status {
		case notify.StatusSent:
			return notify.StatusSent
		case notify.StatusFailed:
			status = notify.StatusFailed
		}
	}
	return status
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err.Error()})
		return err
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err.Error()})
		return err
	}
	return nil
}

// Execute runs the job body without a broker.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
