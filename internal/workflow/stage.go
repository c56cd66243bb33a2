// internal/workflow/stage.go

// Package workflow holds the registration stage model: stages, position types,
// officer roles and the transition table that ties them together.
package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// Stage is the single authoritative workflow position of an application.
type Stage int

const (
	JuniorEngineerPending Stage = iota
	DocumentVerificationPending
	AssistantEngineerPending
	ExecutiveEngineerPending
	CityEngineerPending
	PaymentPending
	ClerkPending
	ExecutiveEngineerSignPending
	CityEngineerSignPending
	Approved
	Rejected
)

var stageNames = [...]string{
	"JUNIOR_ENGINEER_PENDING",
	"DOCUMENT_VERIFICATION_PENDING",
	"ASSISTANT_ENGINEER_PENDING",
	"EXECUTIVE_ENGINEER_PENDING",
	"CITY_ENGINEER_PENDING",
	"PAYMENT_PENDING",
	"CLERK_PENDING",
	"EXECUTIVE_ENGINEER_SIGN_PENDING",
	"CITY_ENGINEER_SIGN_PENDING",
	"APPROVED",
	"REJECTED",
}

// display statuses derived from the stage; never stored
var stageStatuses = [...]string{
	"Submitted",
	"DocumentVerificationPending",
	"AssistantEngineerPending",
	"ExecutiveEngineerPending",
	"CityEngineerPending",
	"PaymentPending",
	"ClerkPending",
	"ExecutiveEngineerSignPending",
	"CityEngineerSignPending",
	"Completed",
	"Rejected",
}

func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Valid reports whether s is one of the eleven defined stages.
func (s Stage) Valid() bool {
	return s >= JuniorEngineerPending && s <= Rejected
}

// IsTerminal reports whether no further transition may leave s.
func (s Stage) IsTerminal() bool {
	return s == Approved || s == Rejected
}

// IsPending reports whether s is waiting for someone to act.
func (s Stage) IsPending() bool {
	return s.Valid() && !s.IsTerminal()
}

// Status returns the display status for the stage.
func (s Stage) Status() string {
	if !s.Valid() {
		return "Unknown"
	}
	return stageStatuses[s]
}

// StatusForStage is Stage.Status as a function, for templates and projections.
func StatusForStage(s Stage) string {
	return s.Status()
}

// ParseStage accepts either the numeric code or the stage name.
func ParseStage(v string) (Stage, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		s := Stage(n)
		if !s.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidStage, n)
		}
		return s, nil
	}
	for i, name := range stageNames {
		if strings.EqualFold(name, v) {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStage, v)
}

// AllStages lists the stages in workflow order.
func AllStages() []Stage {
	out := make([]Stage, 0, len(stageNames))
	for i := range stageNames {
		out = append(out, Stage(i))
	}
	return out
}
