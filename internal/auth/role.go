package auth

import "fmt"

// Role is the privilege level carried in a token.
type Role string

const (
	// RoleViewer may read device state.
	RoleViewer Role = "viewer"

	// RoleOperator may also write the command register and raise interrupts.
	RoleOperator Role = "operator"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleViewer, RoleOperator:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// CanWrite reports whether the role may change device state.
func (r Role) CanWrite() bool {
	return r == RoleOperator
}
