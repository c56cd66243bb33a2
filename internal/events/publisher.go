// internal/events/publisher.go

// Package events fans stage changed events out to Kafka and Zeebe and
// consumes them back for projections.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pmc-registration/internal/common/camunda"
	"pmc-registration/internal/common/metrics"
	"pmc-registration/internal/models"
)

// Publisher delivers a stage changed event to one sink.
type Publisher interface {
	Publish(ctx context.Context, evt models.StageChangedEvent) error
}

// MessagePublisher is the part of the Zeebe client used here.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, name, correlationKey, messageID string, variables map[string]interface{}) error
}

// ZeebePublisher correlates the event with the application's process
// instance by application id.
type ZeebePublisher struct {
	client MessagePublisher
}

func NewZeebePublisher(client MessagePublisher) *ZeebePublisher {
	return &ZeebePublisher{client: client}
}

func (p *ZeebePublisher) Publish(ctx context.Context, evt models.StageChangedEvent) error {
	err := p.client.PublishMessage(ctx, camunda.MessageStageChanged, evt.ApplicationID, evt.EventID, evt.Variables())
	observe("zeebe", err)
	return err
}

// Multi publishes to every sink and joins the failures.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt models.StageChangedEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Encode is the wire format on the Kafka topic.
func Encode(evt models.StageChangedEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode stage event: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (models.StageChangedEvent, error) {
	var evt models.StageChangedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("decode stage event: %w", err)
	}
	if evt.ApplicationID == "" {
		return evt, errors.New("decode stage event: missing applicationId")
	}
	return evt, nil
}

func observe(sink string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.EventsPublished.WithLabelValues(sink, outcome).Inc()
}
