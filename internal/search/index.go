// internal/search/index.go

// Package search keeps the Elasticsearch projection of applications that
// officers search over. The database stays the source of truth; the
// projection is refreshed from stage-changed events.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/models"
	"pmc-registration/internal/workflow"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var (
	ErrIndexFailed  = errors.New("SEARCH_INDEX_FAILED")
	ErrSearchFailed = errors.New("SEARCH_QUERY_FAILED")
)

const DefaultIndex = "pmc-applications"

const mapping = `{
  "mappings": {
    "properties": {
      "id":                {"type": "keyword"},
      "applicationNumber": {"type": "keyword", "fields": {"text": {"type": "text"}}},
      "fullName":          {"type": "text"},
      "email":             {"type": "keyword"},
      "mobile":            {"type": "keyword"},
      "positionType":      {"type": "keyword"},
      "currentStage":      {"type": "integer"},
      "status":            {"type": "keyword"},
      "certificateNumber": {"type": "keyword"},
      "createdAt":         {"type": "date"},
      "updatedAt":         {"type": "date"}
    }
  }
}`

// Document is one application in the projection.
type Document struct {
	ID                string                `json:"id"`
	ApplicationNumber string                `json:"applicationNumber"`
	FullName          string                `json:"fullName"`
	Email             string                `json:"email"`
	Mobile            string                `json:"mobile,omitempty"`
	PositionType      workflow.PositionType `json:"positionType"`
	CurrentStage      workflow.Stage        `json:"currentStage"`
	Status            string                `json:"status"`
	CertificateNumber string                `json:"certificateNumber,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

// FromApplication projects an application.
func FromApplication(app *models.Application) Document {
	d := Document{
		ID:                app.ID,
		ApplicationNumber: app.ApplicationNumber,
		FullName:          app.FullName(),
		Email:             app.Email,
		Mobile:            app.Mobile,
		PositionType:      app.PositionType,
		CurrentStage:      app.CurrentStage,
		Status:            app.CurrentStage.Status(),
		CreatedAt:         app.CreatedAt,
		UpdatedAt:         app.UpdatedAt,
	}
	if app.CertificateNumber != nil {
		d.CertificateNumber = *app.CertificateNumber
	}
	return d
}

type Index struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndex(client *elasticsearch.Client, index string, log logger.Logger) *Index {
	if index == "" {
		index = DefaultIndex
	}
	return &Index{client: client, index: index, logger: log.WithFields(map[string]interface{}{"component": "search", "index": index})}
}

// EnsureIndex creates the index with its mapping when missing.
func (x *Index) EnsureIndex(ctx context.Context) error {
	res, err := x.client.Indices.Exists([]string{x.index}, x.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailed, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = x.client.Indices.Create(x.index,
		x.client.Indices.Create.WithContext(ctx),
		x.client.Indices.Create.WithBody(strings.NewReader(mapping)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(readBody(res), "resource_already_exists_exception") {
		return fmt.Errorf("%w: create index: %s", ErrIndexFailed, res.Status())
	}
	x.logger.Info("search index created", nil)
	return nil
}

// Index writes the full projection of a newly created application.
func (x *Index) Index(ctx context.Context, app *models.Application) error {
	body, err := json.Marshal(FromApplication(app))
	if err != nil {
		return err
	}
	res, err := x.client.Index(x.index, bytes.NewReader(body),
		x.client.Index.WithContext(ctx),
		x.client.Index.WithDocumentID(app.ID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: %s: %s", ErrIndexFailed, res.Status(), readBody(res))
	}
	return nil
}

// HandleStageChanged applies a stage event to the projection. Unknown
// documents are created from the event.
func (x *Index) HandleStageChanged(ctx context.Context, evt models.StageChangedEvent) error {
	doc := map[string]interface{}{
		"id":                evt.ApplicationID,
		"applicationNumber": evt.ApplicationNumber,
		"fullName":          evt.ApplicantName,
		"email":             evt.ApplicantEmail,
		"positionType":      evt.PositionType,
		"currentStage":      int(evt.ToStage),
		"status":            evt.ToStage.Status(),
		"updatedAt":         evt.OccurredAt,
	}
	if evt.CertificateNumber != "" {
		doc["certificateNumber"] = evt.CertificateNumber
	}
	body, err := json.Marshal(map[string]interface{}{"doc": doc, "doc_as_upsert": true})
	if err != nil {
		return err
	}

	res, err := x.client.Update(x.index, evt.ApplicationID, bytes.NewReader(body),
		x.client.Update.WithContext(ctx),
		x.client.Update.WithRetryOnConflict(3))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: %s: %s", ErrIndexFailed, res.Status(), readBody(res))
	}
	x.logger.Debug("projection updated", map[string]interface{}{"applicationId": evt.ApplicationID, "stage": evt.ToStage.String()})
	return nil
}

func readBody(res *esapi.Response) string {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return string(b)
}
