// internal/workers/application/issue-certificate/handler.go
package issuecertificate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pmc-registration/internal/application"
	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/workflow"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "issue-certificate"
)

// Store records where the issued certificate lives.
type Store interface {
	SetCertificatePath(ctx context.Context, id, path string) error
}

type Handler struct {
	config *Config
	store  Store
	errors *apperrors.JobErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, store Store, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		store:  store,
		errors: apperrors.NewJobErrorHandler(log),
		logger: log,
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

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if workflow.Stage(input.ToStage) != workflow.Approved {
		return nil, apperrors.NewNotActionableError(
			fmt.Sprintf("certificate is issued on approval, got %s", workflow.Stage(input.ToStage)))
	}
	if strings.TrimSpace(input.ApplicationID) == "" || strings.TrimSpace(input.CertificateNumber) == "" {
		return nil, apperrors.NewValidationError("applicationId and certificateNumber are required")
	}

	path := CertificatePath(h.config.PathPrefix, input.CertificateNumber)
	if err := h.store.SetCertificatePath(ctx, input.ApplicationID, path); err != nil {
		if errors.Is(err, application.ErrNotFound) {
			return nil, apperrors.NewResourceNotFoundError("application", input.ApplicationID)
		}
		return nil, apperrors.NewQueryExecutionFailedError("set certificate path", err)
	}

	h.logger.Info("certificate issued", map[string]interface{}{
		"applicationId":     input.ApplicationID,
		"certificateNumber": input.CertificateNumber,
		"path":              path,
	})
	return &Output{CertificatePath: path, IssuedAt: time.Now().UTC().Format(time.RFC3339)}, nil
}

// CertificatePath maps "PMC/ARC/2025/00001" to "<prefix>PMC_ARC_2025_00001.pdf".
func CertificatePath(prefix, certificateNumber string) string {
	return prefix + strings.ReplaceAll(strings.TrimSpace(certificateNumber), "/", "_") + ".pdf"
}

// Execute runs the job body without a broker.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
