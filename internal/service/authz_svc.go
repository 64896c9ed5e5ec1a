package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
)

// Permission tiers. A super-admin can do everything a manager can, plus
// hard deletes.
const (
	RoleManager    = "manager"
	RoleSuperAdmin = "superadmin"
)

// Claims is the caller identity supplied by the external identity service.
// The role inside is treated as untrusted input.
type Claims struct {
	UID  string
	Role string
}

type roleStore interface {
	GetRole(ctx context.Context, uid string) (string, error)
}

type auditAppender interface {
	Append(ctx context.Context, entry model.AuditLogEntry) error
}

// AuthzService is the access control guard. Elevated role claims are
// re-verified against the locally owned role store on every privileged
// request; a mismatch is a security event and the request is denied.
type AuthzService struct {
	roles roleStore
	audit auditAppender
}

func NewAuthzService(roles roleStore, audit auditAppender) *AuthzService {
	return &AuthzService{roles: roles, audit: audit}
}

// Require checks that the caller holds at least the given tier. Fail closed:
// any store failure or mismatch denies the request with a generic error that
// reveals neither the actual nor the required role.
func (s *AuthzService) Require(ctx context.Context, claims Claims, tier string, ipHash string) error {
	if claims.UID == "" || claims.Role == "" {
		return model.ErrUnauthenticated
	}

	stored, err := s.roles.GetRole(ctx, claims.UID)
	if err != nil {
		return mapStoreErr(err)
	}

	if stored != claims.Role {
		s.logSecurityEvent(ctx, claims, stored, ipHash)
		return model.ErrForbidden
	}

	if !tierSatisfied(stored, tier) {
		return model.ErrForbidden
	}
	return nil
}

// tierSatisfied reports whether the verified role grants the required tier.
func tierSatisfied(role, tier string) bool {
	switch tier {
	case RoleManager:
		return role == RoleManager || role == RoleSuperAdmin
	case RoleSuperAdmin:
		return role == RoleSuperAdmin
	}
	return false
}

// logSecurityEvent records a stale or forged elevated-role claim, both in
// the structured log and the audit trail. Audit failure here is logged but
// does not mask the denial.
func (s *AuthzService) logSecurityEvent(ctx context.Context, claims Claims, storedRole string, ipHash string) {
	log.Warn().
		Str("security_event", "role_mismatch").
		Str("uid", claims.UID).
		Str("claimed_role", claims.Role).
		Str("stored_role", storedRole).
		Msg("elevated role claim did not match role store")

	details, _ := json.Marshal(map[string]string{
		"claimedRole": claims.Role,
		"storedRole":  storedRole,
	})
	entry := model.AuditLogEntry{
		ActionType:    model.ActionSecurityEvent,
		PerformedBy:   claims.UID,
		Details:       details,
		IPHash:        ipHash,
		CorrelationID: uuid.New(),
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		log.Error().Err(err).Msg("audit: security event write failed")
	}
}
