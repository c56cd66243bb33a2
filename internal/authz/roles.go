// internal/authz/roles.go

// Package authz maps backend role strings to internal roles and decides which
// routes each role may reach.
package authz

import (
	"errors"
	"fmt"
	"sort"

	"pmc-registration/internal/workflow"
)

var ErrUnknownRole = errors.New("UNKNOWN_ROLE")

// roleTable is the single mapping from the backend's role claim to the
// internal role. Several external roles alias to one internal role.
var roleTable = map[string]workflow.Role{
	"User":                        workflow.RoleUser,
	"Admin":                       workflow.RoleAdmin,
	"JuniorEngineer":              workflow.RoleJuniorArchitect,
	"JuniorArchitect":             workflow.RoleJuniorArchitect,
	"AssistantEngineer":           workflow.RoleAssistantArchitect,
	"AssistantArchitect":          workflow.RoleAssistantArchitect,
	"JuniorLicenceEngineer":       workflow.RoleJuniorLicenceEngineer,
	"AssistantLicenceEngineer":    workflow.RoleAssistantLicenceEngineer,
	"JuniorStructuralEngineer":    workflow.RoleJuniorStructuralEngineer,
	"AssistantStructuralEngineer": workflow.RoleAssistantStructuralEngineer,
	"JuniorSupervisor1":           workflow.RoleJuniorSupervisor1,
	"AssistantSupervisor1":        workflow.RoleAssistantSupervisor1,
	"JuniorSupervisor2":           workflow.RoleJuniorSupervisor2,
	"AssistantSupervisor2":        workflow.RoleAssistantSupervisor2,
	"ExecutiveEngineer":           workflow.RoleExecutiveEngineer,
	"CityEngineer":                workflow.RoleCityEngineer,
	"Clerk":                       workflow.RoleClerk,
}

// MapRole resolves an external role string. Matching is exact.
func MapRole(external string) (workflow.Role, error) {
	if r, ok := roleTable[external]; ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, external)
}

// ExternalRoles lists every accepted external role string, sorted.
func ExternalRoles() []string {
	out := make([]string, 0, len(roleTable))
	for k := range roleTable {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsKnownInternal reports whether r is the target of some external role.
func IsKnownInternal(r workflow.Role) bool {
	for _, v := range roleTable {
		if v == r {
			return true
		}
	}
	return false
}
