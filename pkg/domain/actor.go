package domain

// Role tags an actor's capabilities. Roles arrive pre-resolved from the
// identity layer; the engine only ever checks membership.
type Role string

const (
	// RoleVerifier may verify or reject pending letters for its department.
	RoleVerifier Role = "verifier"

	// RoleDispatcher may route letters manually and advance or reject
	// document-routing records.
	RoleDispatcher Role = "dispatcher"

	// RoleRuleAdmin may create, update and disable routing rules for its
	// department.
	RoleRuleAdmin Role = "rule_admin"

	// RoleAuditor may read audit trails for any entity.
	RoleAuditor Role = "auditor"
)

// Actor is the resolved authentication context for one request. Credential
// validation happens upstream; by the time an Actor reaches a service it is
// trusted as-is.
type Actor struct {
	ID         ActorID
	Roles      []Role
	Department Department
}

// HasRole reports whether the actor carries the given role tag.
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanActFor reports whether the actor holds the role scoped to the given
// department. Department scoping is by exact name match.
func (a Actor) CanActFor(role Role, dept Department) bool {
	return a.HasRole(role) && a.Department == dept
}
