package httpkit

import (
	"slices"

	"github.com/gin-gonic/gin"
)

// Identity is the authenticated operator behind an admin request.
type Identity interface {
	Subject() string
	Roles() []string
	HasRole(role string) bool
	IsAuthenticated() bool
}

type identity struct {
	subject string
	roles   []string
}

func (i *identity) Subject() string          { return i.subject }
func (i *identity) Roles() []string          { return i.roles }
func (i *identity) HasRole(role string) bool { return slices.Contains(i.roles, role) }
func (i *identity) IsAuthenticated() bool    { return i.subject != "" }

// GetIdentity extracts the Identity placed on the context by AuthRequired.
func GetIdentity(c *gin.Context) Identity {
	subject := c.GetString(ContextSubjectKey)
	var roles []string
	if raw, ok := c.Get(ContextRolesKey); ok {
		roles, _ = raw.([]string)
	}
	return &identity{subject: subject, roles: roles}
}
