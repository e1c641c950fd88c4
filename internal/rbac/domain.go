package rbac

import "context"

// Role is the role level of a user; lower values carry more authority.
type Role int

const (
	// RoleSuperAdmin can do everything an admin can.
	RoleSuperAdmin Role = 1
	// RoleAdmin manages periods, closures and other users' records.
	RoleAdmin Role = 2
	// RoleCommon records its own movements and transactions.
	RoleCommon Role = 3
)

// Valid reports whether r is a known role level.
func (r Role) Valid() bool {
	return r >= RoleSuperAdmin && r <= RoleCommon
}

// IsAdmin reports whether r carries administrative authority.
func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

func (r Role) String() string {
	switch r {
	case RoleSuperAdmin:
		return "super_admin"
	case RoleAdmin:
		return "admin"
	case RoleCommon:
		return "common"
	default:
		return "unknown"
	}
}

// Actor describes the authenticated user performing an operation.
type Actor struct {
	ID   int64
	Role Role
}

// Policy decides which capabilities an actor holds.
type Policy interface {
	CanManagePeriods(a Actor) bool
	CanClosePeriod(a Actor) bool
	CanModifyMovement(a Actor, ownerID int64) bool
	CanDeleteTransaction(a Actor, creatorID int64) bool
	CanViewUser(a Actor, userID int64) bool
}

// RolePolicy grants capabilities from the role level alone.
type RolePolicy struct{}

var _ Policy = RolePolicy{}

func (RolePolicy) CanManagePeriods(a Actor) bool { return a.Role.IsAdmin() }

func (RolePolicy) CanClosePeriod(a Actor) bool { return a.Role.IsAdmin() }

func (RolePolicy) CanModifyMovement(a Actor, ownerID int64) bool {
	return a.ID == ownerID || a.Role.IsAdmin()
}

func (RolePolicy) CanDeleteTransaction(a Actor, creatorID int64) bool {
	return a.ID == creatorID || a.Role.IsAdmin()
}

func (RolePolicy) CanViewUser(a Actor, userID int64) bool {
	return a.ID == userID || a.Role.IsAdmin()
}

// Directory resolves a user id into an actor, failing for unknown or inactive users.
type Directory interface {
	Lookup(ctx context.Context, userID int64) (Actor, error)
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor attached by the identity middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
