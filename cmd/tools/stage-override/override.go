// cmd/tools/stage-override/override.go
package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pmc-registration/internal/audit"
	"pmc-registration/internal/workflow"
)

var errProduction = errors.New("stage override is disabled in production")

// Forcer moves an application without workflow checks.
type Forcer interface {
	ForceStage(ctx context.Context, id string, to workflow.Stage, actorID, comments string) (workflow.Stage, error)
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

type override struct {
	ApplicationID string
	To            workflow.Stage
	ActorID       string
	Comments      string
}

func refuseProduction(env string) error {
	if strings.EqualFold(strings.TrimSpace(env), "production") {
		return errProduction
	}
	return nil
}

func parseOverride(applicationID, stage, actor, comments string) (override, error) {
	if strings.TrimSpace(applicationID) == "" {
		return override{}, errors.New("-application is required")
	}
	to, err := workflow.ParseStage(stage)
	if err != nil {
		return override{}, err
	}
	if strings.TrimSpace(actor) == "" {
		return override{}, errors.New("-actor is required")
	}
	if strings.TrimSpace(comments) == "" {
		comments = "manual override"
	}
	return override{ApplicationID: applicationID, To: to, ActorID: actor, Comments: comments}, nil
}

// apply forces the stage and audits it. An audit failure is reported but the
// override stands.
func apply(ctx context.Context, f Forcer, a Auditor, o override) (workflow.Stage, error) {
	from, err := f.ForceStage(ctx, o.ApplicationID, o.To, o.ActorID, o.Comments)
	if err != nil {
		return 0, fmt.Errorf("force stage: %w", err)
	}
	err = a.Record(ctx, audit.Entry{
		EventType:    audit.EventStageOverride,
		ResourceType: audit.ResourceApplication,
		ResourceID:   o.ApplicationID,
		Details: map[string]interface{}{
			"fromStage": from.String(),
			"toStage":   o.To.String(),
			"actorId":   o.ActorID,
			"comments":  o.Comments,
		},
	})
	if err != nil {
		return from, fmt.Errorf("stage moved from %s but audit failed: %w", from, err)
	}
	return from, nil
}
