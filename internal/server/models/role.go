package models

import "fmt"

// Role is the closed set of actor roles.
type Role int

const (
	RoleUnknown Role = iota
	RolePatient
	RoleProvider
	RoleClinicAdmin
	RolePlatformAdmin
)

var roleNames = map[Role]string{
	RolePatient:       "patient",
	RoleProvider:      "provider",
	RoleClinicAdmin:   "clinic_admin",
	RolePlatformAdmin: "platform_admin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// FacilityScoped reports whether sessions of this role carry a facility.
func (r Role) FacilityScoped() bool {
	return r == RoleProvider || r == RoleClinicAdmin
}

// ParseRole maps a role name back to its Role.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

func (r Role) MarshalText() ([]byte, error) {
	if _, ok := roleNames[r]; !ok {
		return nil, fmt.Errorf("unknown role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
