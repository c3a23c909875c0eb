package domain

// Role is a named group of users. Equality is defined by ID alone.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NewRole creates a Role that has not been stored yet.
func NewRole(name string) *Role {
	return &Role{Name: name}
}

// Equal reports whether both roles share the same identity, whatever their names.
func (r Role) Equal(other Role) bool {
	return r.ID == other.ID
}
