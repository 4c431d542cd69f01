// Actor-context normalization over the identity directory's opaque metadata.
//
// The directory tags users with role and department under several historical
// field names. ResolveActorContext is the single place that knows the
// precedence order; callers must never inline the fallback chain.
package domain

import "strings"

// Actor roles recognized across the workflow.
const (
	RoleCitizen     = "citizen"
	RoleCoordinator = "coordinator"
	RoleOfficer     = "officer"
	RoleAdmin       = "lgu_admin"
)

// ActorContext is the normalized view of a directory user's workflow role
// and department affiliation.
type ActorContext struct {
	Role           string
	DepartmentCode string
}

// roleKeys and departmentKeys define the fixed metadata precedence order,
// highest first.
var (
	roleKeys       = []string{"role", "user_role", "account_type"}
	departmentKeys = []string{"department", "department_code", "dpt"}
)

// ResolveActorContext extracts role and department from a directory user.
// Missing role defaults to citizen; department codes are normalized to the
// uppercase short-code form used in complaint routing.
func ResolveActorContext(u *User) ActorContext {
	ctx := ActorContext{Role: RoleCitizen}
	if u == nil || u.Metadata == nil {
		return ctx
	}
	for _, k := range roleKeys {
		if v := strings.ToLower(strings.TrimSpace(u.Metadata[k])); v != "" {
			ctx.Role = v
			break
		}
	}
	for _, k := range departmentKeys {
		if v := strings.ToUpper(strings.TrimSpace(u.Metadata[k])); v != "" {
			ctx.DepartmentCode = v
			break
		}
	}
	return ctx
}
