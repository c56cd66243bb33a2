// internal/workflow/roles.go

package workflow

import (
	"fmt"
	"strings"
)

// PositionType is the professional category an applicant registers for.
type PositionType string

const (
	Architect          PositionType = "Architect"
	StructuralEngineer PositionType = "StructuralEngineer"
	LicenceEngineer    PositionType = "LicenceEngineer"
	Supervisor1        PositionType = "Supervisor1"
	Supervisor2        PositionType = "Supervisor2"
)

var allPositionTypes = []PositionType{Architect, StructuralEngineer, LicenceEngineer, Supervisor1, Supervisor2}

// AllPositionTypes returns every position type.
func AllPositionTypes() []PositionType {
	return append([]PositionType(nil), allPositionTypes...)
}

func (p PositionType) Valid() bool {
	for _, pt := range allPositionTypes {
		if pt == p {
			return true
		}
	}
	return false
}

// ParsePositionType is case-insensitive.
func ParsePositionType(v string) (PositionType, error) {
	for _, pt := range allPositionTypes {
		if strings.EqualFold(string(pt), strings.TrimSpace(v)) {
			return pt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPositionType, v)
}

// Role is the internal lowercase role identifier used for routing and transitions.
type Role string

const (
	RoleUser                        Role = "user"
	RoleAdmin                       Role = "admin"
	RoleJuniorArchitect             Role = "juniorarchitect"
	RoleAssistantArchitect          Role = "assistantarchitect"
	RoleJuniorLicenceEngineer       Role = "juniorlicenceengineer"
	RoleAssistantLicenceEngineer    Role = "assistantlicenceengineer"
	RoleJuniorStructuralEngineer    Role = "juniorstructuralengineer"
	RoleAssistantStructuralEngineer Role = "assistantstructuralengineer"
	RoleJuniorSupervisor1           Role = "juniorsupervisor1"
	RoleAssistantSupervisor1        Role = "assistantsupervisor1"
	RoleJuniorSupervisor2           Role = "juniorsupervisor2"
	RoleAssistantSupervisor2        Role = "assistantsupervisor2"
	RoleExecutiveEngineer           Role = "executiveengineer"
	RoleCityEngineer                Role = "cityengineer"
	RoleClerk                       Role = "clerk"

	// RoleSystem acts on behalf of backend processes such as payment settlement.
	RoleSystem Role = "system"
)

// OfficerRoles lists every role that works a dashboard.
func OfficerRoles() []Role {
	return []Role{
		RoleJuniorArchitect, RoleAssistantArchitect,
		RoleJuniorLicenceEngineer, RoleAssistantLicenceEngineer,
		RoleJuniorStructuralEngineer, RoleAssistantStructuralEngineer,
		RoleJuniorSupervisor1, RoleAssistantSupervisor1,
		RoleJuniorSupervisor2, RoleAssistantSupervisor2,
		RoleExecutiveEngineer, RoleCityEngineer, RoleClerk,
	}
}

// IsOfficer reports whether r is one of the officer roles.
func (r Role) IsOfficer() bool {
	for _, o := range OfficerRoles() {
		if o == r {
			return true
		}
	}
	return false
}
