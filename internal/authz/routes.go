// internal/authz/routes.go
package authz

import (
	"strings"

	"pmc-registration/internal/workflow"
)

const (
	RouteLogin        = "/login"
	RouteOfficerLogin = "/officer-login"
	RouteUnauthorized = "/unauthorized"
	RouteNotFound     = "/not-found"
)

// Route is one protected location and the roles allowed on it.
type Route struct {
	Path  string
	Roles []workflow.Role
}

var publicRoutes = map[string]bool{
	"/":               true,
	RouteLogin:        true,
	RouteOfficerLogin: true,
	RouteUnauthorized: true,
	RouteNotFound:     true,
}

var routes = buildRoutes()

func buildRoutes() []Route {
	officers := workflow.OfficerRoles()
	everyone := append([]workflow.Role{workflow.RoleUser, workflow.RoleAdmin}, officers...)

	rs := []Route{
		{Path: "/dashboard", Roles: []workflow.Role{workflow.RoleUser}},
		{Path: "/application/new", Roles: []workflow.Role{workflow.RoleUser}},
		{Path: "/application/draft", Roles: []workflow.Role{workflow.RoleUser}},
		{Path: "/payment", Roles: []workflow.Role{workflow.RoleUser}},
		{Path: "/application/view", Roles: everyone},
		{Path: "/profile", Roles: everyone},
		{Path: "/admin/dashboard", Roles: []workflow.Role{workflow.RoleAdmin}},
		{Path: "/officer/search", Roles: append([]workflow.Role{workflow.RoleAdmin}, officers...)},
	}
	for _, r := range officers {
		rs = append(rs, Route{Path: "/" + string(r) + "/dashboard", Roles: []workflow.Role{r}})
	}
	return rs
}

// LandingRoute is where a role is sent after login.
func LandingRoute(role workflow.Role) string {
	switch role {
	case workflow.RoleUser:
		return "/dashboard"
	case workflow.RoleAdmin:
		return "/admin/dashboard"
	}
	if role.IsOfficer() {
		return "/" + string(role) + "/dashboard"
	}
	return RouteUnauthorized
}

// Lookup finds the route whose path matches exactly or is a parent segment
// of path, preferring the longest match.
func Lookup(path string) (Route, bool) {
	path = normalize(path)
	var best Route
	found := false
	for _, r := range routes {
		if path == r.Path || strings.HasPrefix(path, r.Path+"/") {
			if !found || len(r.Path) > len(best.Path) {
				best, found = r, true
			}
		}
	}
	return best, found
}

// AllowedRoles returns the allow-list for a protected path, nil if unknown.
func AllowedRoles(path string) []workflow.Role {
	r, ok := Lookup(path)
	if !ok {
		return nil
	}
	return append([]workflow.Role(nil), r.Roles...)
}

// IsPublic reports whether the path needs no session.
func IsPublic(path string) bool {
	return publicRoutes[normalize(path)]
}

func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}

func allows(roles []workflow.Role, role workflow.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
