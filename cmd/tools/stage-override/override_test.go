// cmd/tools/stage-override/override_test.go
package main

import (
	"context"
	"errors"
	"testing"

	"pmc-registration/internal/application"
	"pmc-registration/internal/audit"
	"pmc-registration/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeForcer struct {
	from workflow.Stage
	err  error
	to   workflow.Stage
}

func (f *fakeForcer) ForceStage(ctx context.Context, id string, to workflow.Stage, actorID, comments string) (workflow.Stage, error) {
	f.to = to
	return f.from, f.err
}

type fakeAuditor struct {
	entries []audit.Entry
	err     error
}

func (f *fakeAuditor) Record(ctx context.Context, e audit.Entry) error {
	f.entries = append(f.entries, e)
	return f.err
}

func TestRefuseProduction(t *testing.T) {
	assert.ErrorIs(t, refuseProduction("production"), errProduction)
	assert.ErrorIs(t, refuseProduction(" Production "), errProduction)
	assert.NoError(t, refuseProduction("development"))
	assert.NoError(t, refuseProduction(""))
}

func TestParseOverride(t *testing.T) {
	tests := []struct {
		name    string
		app     string
		stage   string
		actor   string
		want    workflow.Stage
		wantErr bool
	}{
		{"by name", "app-1", "clerk_pending", "qa", workflow.ClerkPending, false},
		{"by number", "app-1", "10", "qa", workflow.Rejected, false},
		{"missing application", "", "CLERK_PENDING", "qa", 0, true},
		{"unknown stage", "app-1", "Limbo", "qa", 0, true},
		{"missing actor", "app-1", "CLERK_PENDING", " ", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseOverride(tt.app, tt.stage, tt.actor, "")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, o.To)
			assert.Equal(t, "manual override", o.Comments)
		})
	}
}

func TestApply(t *testing.T) {
	f := &fakeForcer{from: workflow.PaymentPending}
	a := &fakeAuditor{}
	o := override{ApplicationID: "app-1", To: workflow.ClerkPending, ActorID: "qa", Comments: "skip gateway"}

	from, err := apply(context.Background(), f, a, o)
	require.NoError(t, err)
	assert.Equal(t, workflow.PaymentPending, from)
	assert.Equal(t, workflow.ClerkPending, f.to)
	require.Len(t, a.entries, 1)
	assert.Equal(t, audit.EventStageOverride, a.entries[0].EventType)
	assert.Equal(t, "app-1", a.entries[0].ResourceID)
	assert.Equal(t, workflow.PaymentPending.String(), a.entries[0].Details["fromStage"])
}

func TestApply_Errors(t *testing.T) {
	o := override{ApplicationID: "app-1", To: workflow.ClerkPending, ActorID: "qa"}

	_, err := apply(context.Background(), &fakeForcer{err: application.ErrNotFound}, &fakeAuditor{}, o)
	assert.ErrorIs(t, err, application.ErrNotFound)

	a := &fakeAuditor{err: errors.New("audit table missing")}
	from, err := apply(context.Background(), &fakeForcer{from: workflow.PaymentPending}, a, o)
	require.Error(t, err)
	assert.Equal(t, workflow.PaymentPending, from)
	assert.Contains(t, err.Error(), "audit failed")
}
