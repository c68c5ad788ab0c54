package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead        Action = "read"
	ActionContact     Action = "contact"
	ActionWrite       Action = "write"
	ActionUpload      Action = "upload"
	ActionHistory     Action = "history"
	ActionDiagnostics Action = "diagnostics"
)

// Can reports whether role may perform action. Anonymous visitors are
// viewers.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleViewer:
		return action == ActionRead || action == ActionContact
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
