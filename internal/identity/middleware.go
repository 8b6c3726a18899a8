package identity

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/pkg/util"
)

const principalKey = "principal"

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	UserID string
	Roles  []domain.Role
}

// HasRole reports whether the principal carries the given role.
func (p *Principal) HasRole(role domain.Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authenticate verifies the bearer token and stores the principal in the
// request locals.
func Authenticate(manager *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return util.NewUnauthorized("missing bearer token")
		}
		claims, err := manager.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return util.NewUnauthorized("invalid token")
		}
		roles := make([]domain.Role, 0, len(claims.Roles))
		for _, r := range claims.Roles {
			roles = append(roles, domain.Role(r))
		}
		c.Locals(principalKey, &Principal{UserID: claims.SubjectID, Roles: roles})
		return c.Next()
	}
}

// PrincipalFromContext returns the authenticated principal, or nil.
func PrincipalFromContext(c *fiber.Ctx) *Principal {
	principal, _ := c.Locals(principalKey).(*Principal)
	return principal
}

// RequireRole rejects requests whose principal lacks the role.
func RequireRole(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal := PrincipalFromContext(c)
		if principal == nil {
			return util.NewUnauthorized("authentication required")
		}
		if !principal.HasRole(role) && !principal.HasRole(domain.RoleAdmin) {
			return util.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
