package tasks

import "taskhub/identity"

// Field names an update request may carry. These are wire-level names:
// the allow-list check runs against exactly what the client requested.
const (
	FieldStatus     = "status"
	FieldPriority   = "priority"
	FieldAssignedTo = "assignedTo"
)

// updateRole is the actor's strongest relationship to the target task.
type updateRole int

const (
	roleNone updateRole = iota
	roleAssignee
	roleCreator
	roleAdmin
)

// updatePolicy is the role-by-field allow-list. Evaluated once per
// mutation; any requested field outside the actor's row fails the
// entire update with no partial application.
var updatePolicy = map[updateRole][]string{
	roleAdmin:    {FieldStatus, FieldPriority, FieldAssignedTo},
	roleCreator:  {FieldStatus, FieldPriority},
	roleAssignee: {FieldStatus},
	roleNone:     {},
}

// roleFor computes the actor's update role for a task. Admin wins over
// creator, creator over assignee.
func roleFor(actor *identity.Identity, createdBy, assignedTo string) updateRole {
	switch {
	case actor.IsAdmin():
		return roleAdmin
	case actor.ID.Hex() == createdBy:
		return roleCreator
	case actor.ID.Hex() == assignedTo:
		return roleAssignee
	default:
		return roleNone
	}
}

// allowed reports whether every requested field is in the role's
// allow-list, returning the first offending field otherwise.
func allowed(role updateRole, requested []string) (string, bool) {
	row := updatePolicy[role]
	for _, field := range requested {
		found := false
		for _, f := range row {
			if f == field {
				found = true
				break
			}
		}
		if !found {
			return field, false
		}
	}
	return "", true
}

// policyMessage describes what the role may change. Mirrors the
// message the clients display verbatim.
func policyMessage(role updateRole) string {
	switch role {
	case roleAdmin:
		return "you can only update the status, priority and assignee"
	case roleCreator:
		return "you can only update the status and priority"
	default:
		return "you can only update the status"
	}
}
