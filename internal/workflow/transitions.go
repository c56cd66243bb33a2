// internal/workflow/transitions.go

package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStage        = errors.New("INVALID_STAGE")
	ErrInvalidPositionType = errors.New("INVALID_POSITION_TYPE")
	ErrNotActionable       = errors.New("STAGE_NOT_ACTIONABLE")
	ErrActionMismatch      = errors.New("ACTION_MISMATCH")
	ErrReasonRequired      = errors.New("REJECTION_REASON_REQUIRED")
	ErrInvalidPath         = errors.New("INVALID_STAGE_PATH")
)

// Action is the verb an actor performs to advance an application.
type Action string

const (
	ActionScheduleAppointment Action = "schedule-appointment"
	ActionApprove             Action = "approve"
	ActionSign                Action = "sign"
	ActionCompletePayment     Action = "complete-payment"
	ActionGenerateCertificate Action = "generate-certificate"
	ActionReject              Action = "reject"
)

// Transition is one row of the workflow table.
type Transition struct {
	Role          Role
	PositionTypes []PositionType // nil means every position type
	From          Stage
	To            Stage
	Action        Action
	RequiresOTP   bool
}

// Handles reports whether the row applies to the given position type.
func (t Transition) Handles(pt PositionType) bool {
	if t.PositionTypes == nil {
		return true
	}
	for _, p := range t.PositionTypes {
		if p == pt {
			return true
		}
	}
	return false
}

func only(pt PositionType) []PositionType { return []PositionType{pt} }

// juniorRoles and assistantRoles pair each verification role with the
// position type it is responsible for.
var juniorRoles = map[Role]PositionType{
	RoleJuniorArchitect:          Architect,
	RoleJuniorLicenceEngineer:    LicenceEngineer,
	RoleJuniorStructuralEngineer: StructuralEngineer,
	RoleJuniorSupervisor1:        Supervisor1,
	RoleJuniorSupervisor2:        Supervisor2,
}

var assistantRoles = map[Role]PositionType{
	RoleAssistantArchitect:          Architect,
	RoleAssistantLicenceEngineer:    LicenceEngineer,
	RoleAssistantStructuralEngineer: StructuralEngineer,
	RoleAssistantSupervisor1:        Supervisor1,
	RoleAssistantSupervisor2:        Supervisor2,
}

var table = buildTable()

func buildTable() []Transition {
	var rows []Transition
	for _, role := range OfficerRoles() {
		pt, ok := juniorRoles[role]
		if !ok {
			continue
		}
		rows = append(rows, Transition{Role: role, PositionTypes: only(pt), From: JuniorEngineerPending, To: DocumentVerificationPending, Action: ActionScheduleAppointment, RequiresOTP: true})
		// structural applications bypass the assistant review
		to := AssistantEngineerPending
		if pt == StructuralEngineer {
			to = ExecutiveEngineerPending
		}
		rows = append(rows, Transition{Role: role, PositionTypes: only(pt), From: DocumentVerificationPending, To: to, Action: ActionApprove, RequiresOTP: true})
	}
	for _, role := range OfficerRoles() {
		pt, ok := assistantRoles[role]
		if !ok {
			continue
		}
		rows = append(rows, Transition{Role: role, PositionTypes: only(pt), From: AssistantEngineerPending, To: ExecutiveEngineerPending, Action: ActionApprove, RequiresOTP: true})
	}
	rows = append(rows,
		Transition{Role: RoleExecutiveEngineer, From: ExecutiveEngineerPending, To: CityEngineerPending, Action: ActionSign, RequiresOTP: true},
		Transition{Role: RoleCityEngineer, From: CityEngineerPending, To: PaymentPending, Action: ActionSign, RequiresOTP: true},
		Transition{Role: RoleSystem, From: PaymentPending, To: ClerkPending, Action: ActionCompletePayment},
		Transition{Role: RoleClerk, From: ClerkPending, To: ExecutiveEngineerSignPending, Action: ActionGenerateCertificate, RequiresOTP: true},
		Transition{Role: RoleExecutiveEngineer, From: ExecutiveEngineerSignPending, To: CityEngineerSignPending, Action: ActionSign, RequiresOTP: true},
		Transition{Role: RoleCityEngineer, From: CityEngineerSignPending, To: Approved, Action: ActionSign, RequiresOTP: true},
	)
	return rows
}

// Transitions returns a copy of the workflow table.
func Transitions() []Transition {
	return append([]Transition(nil), table...)
}

// Resolve finds the forward transition the role may perform on an
// application of the given type sitting at from.
func Resolve(role Role, pt PositionType, from Stage) (Transition, error) {
	if !from.Valid() {
		return Transition{}, fmt.Errorf("%w: %d", ErrInvalidStage, int(from))
	}
	for _, t := range table {
		if t.Role == role && t.From == from && t.Handles(pt) {
			return t, nil
		}
	}
	return Transition{}, fmt.Errorf("%w: role %s cannot act on %s application at %s", ErrNotActionable, role, pt, from)
}

// NextStage resolves the transition and checks that the requested action is
// the one the table expects at that point.
func NextStage(role Role, pt PositionType, from Stage, action Action) (Stage, error) {
	t, err := Resolve(role, pt, from)
	if err != nil {
		return from, err
	}
	if t.Action != action {
		return from, fmt.Errorf("%w: expected %s at %s, got %s", ErrActionMismatch, t.Action, from, action)
	}
	return t.To, nil
}

// CanAct reports whether the role has a forward transition at stage.
func CanAct(role Role, pt PositionType, stage Stage) bool {
	_, err := Resolve(role, pt, stage)
	return err == nil
}

// PendingStages lists the stages at which the role has work to do.
func PendingStages(role Role) []Stage {
	seen := map[Stage]bool{}
	var out []Stage
	for _, t := range table {
		if t.Role == role && !seen[t.From] {
			seen[t.From] = true
			out = append(out, t.From)
		}
	}
	return out
}

// ResponsibleFor lists the position types the role handles. Roles without
// a type restriction handle all of them.
func ResponsibleFor(role Role) []PositionType {
	if pt, ok := juniorRoles[role]; ok {
		return only(pt)
	}
	if pt, ok := assistantRoles[role]; ok {
		return only(pt)
	}
	for _, t := range table {
		if t.Role == role {
			return AllPositionTypes()
		}
	}
	return nil
}

// ValidatePath checks that a recorded stage history starts at the first stage
// and only ever moves along table rows or into Rejected.
func ValidatePath(pt PositionType, path []Stage) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if path[0] != JuniorEngineerPending {
		return fmt.Errorf("%w: starts at %s", ErrInvalidPath, path[0])
	}
	for i := 1; i < len(path); i++ {
		from, to := path[i-1], path[i]
		if from.IsTerminal() {
			return fmt.Errorf("%w: leaves terminal stage %s", ErrInvalidPath, from)
		}
		if to == Rejected {
			continue
		}
		if !edgeExists(pt, from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidPath, from, to)
		}
	}
	return nil
}

func edgeExists(pt PositionType, from, to Stage) bool {
	for _, t := range table {
		if t.From == from && t.To == to && t.Handles(pt) {
			return true
		}
	}
	return false
}
