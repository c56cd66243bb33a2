// internal/authz/guard.go
package authz

import (
	"net/url"

	"pmc-registration/internal/workflow"
)

// DecisionKind is the outcome of a route guard check.
type DecisionKind int

const (
	Loading DecisionKind = iota
	RedirectLogin
	Unauthorized
	Allow
	NotFound
)

func (k DecisionKind) String() string {
	switch k {
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect-login"
	case Unauthorized:
		return "unauthorized"
	case Allow:
		return "allow"
	case NotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// SessionState is what the guard needs to know about the current session.
type SessionState struct {
	Initializing  bool
	Authenticated bool
	Role          workflow.Role
}

// Decision tells the caller what to render or where to go.
type Decision struct {
	Kind     DecisionKind
	Location string
	ReturnTo string
}

// Guard decides access to path. While the session is initializing no
// redirect decision is made.
func Guard(state SessionState, path string) Decision {
	if state.Initializing {
		return Decision{Kind: Loading}
	}
	if IsPublic(path) {
		return Decision{Kind: Allow}
	}
	route, ok := Lookup(path)
	if !ok {
		return Decision{Kind: NotFound, Location: RouteNotFound}
	}
	if !state.Authenticated {
		return Decision{
			Kind:     RedirectLogin,
			Location: RouteLogin + "?returnTo=" + url.QueryEscape(path),
			ReturnTo: path,
		}
	}
	if !allows(route.Roles, state.Role) {
		return Decision{Kind: Unauthorized, Location: RouteUnauthorized}
	}
	return Decision{Kind: Allow}
}
