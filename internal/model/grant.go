package model

// Operation is a logical CRUD operation derived from the inbound HTTP method.
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// AccessGrant allows an API key to perform a set of operations per entity on
// one instance service. A key may hold multiple grants, one per instance
// service.
type AccessGrant struct {
	ID                int64                  `json:"id" db:"id"`
	APIKeyID          int64                  `json:"api_key_id" db:"api_key_id"`
	InstanceServiceID int64                  `json:"instance_service_id" db:"instance_service_id"`
	Permissions       map[string][]Operation `json:"permissions"`
}

// Allows reports whether the grant permits the given operation on the entity.
func (g *AccessGrant) Allows(entity string, op Operation) bool {
	ops, ok := g.Permissions[entity]
	if !ok {
		return false
	}
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}
