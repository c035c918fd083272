package models

import "fmt"

// Role is a closed set. Keep comparisons on Role values (or AtLeast), never
// on raw strings from a request.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

var roleLevels = map[Role]int{
	RoleUser:      0,
	RoleModerator: 1,
	RoleAdmin:     2,
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleLevels[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// AtLeast reports whether r carries the capabilities of want. Admin implies
// moderator implies user.
func (r Role) AtLeast(want Role) bool {
	rl, ok := roleLevels[r]
	if !ok {
		return false
	}
	wl, ok := roleLevels[want]
	if !ok {
		return false
	}
	return rl >= wl
}

func (r Role) String() string { return string(r) }
