// internal/workflow/dashboard.go

package workflow

// DashboardKey extracts the routing attributes of a dashboard item.
type DashboardKey[T any] func(T) (Stage, PositionType)

// OnDashboard reports whether an application at stage with the given
// position type belongs on the role's dashboard.
func OnDashboard(role Role, stage Stage, pt PositionType) bool {
	return CanAct(role, pt, stage) && role != RoleSystem
}

// FilterDashboard keeps exactly the items the role can act on: their stage is
// one of the role's pending stages and their position type is one it handles.
func FilterDashboard[T any](role Role, items []T, key DashboardKey[T]) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		stage, pt := key(it)
		if OnDashboard(role, stage, pt) {
			out = append(out, it)
		}
	}
	return out
}
