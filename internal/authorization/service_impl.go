package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrganization = "organization"
	ObjectInvitation   = "invitation"
)

const (
	ActionOrganizationView   = "organization.view"
	ActionOrganizationUpdate = "organization.update"
	ActionOrganizationDelete = "organization.delete"
	ActionOrganizationLogo   = "organization.logo"

	ActionMemberInvite     = "member.invite"
	ActionMemberChangeRole = "member.change_role"
	ActionMemberRemove     = "member.remove"

	ActionInvitationCancel = "invitation.cancel"

	// ActionRoleGrant is checked against RoleObject of the role being handed
	// out, by invitation or by role change.
	ActionRoleGrant = "role.grant"
)

// MemberObject names an existing member by its current role.
func MemberObject(role userdomain.Role) string {
	return "member/" + string(role)
}

// RoleObject names a role that is about to be granted.
func RoleObject(role userdomain.Role) string {
	return "role/" + string(role)
}

func subject(role userdomain.Role) string {
	return "role:" + string(role)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds the role policy. Policies live in code; nothing is
// persisted.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role userdomain.Role, object string, action string) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject(role), object, action)
	if err != nil {
		return fmt.Errorf("enforce %s on %s: %w", action, object, err)
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("role", string(role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions
		{subject(userdomain.RoleMember), ObjectOrganization, ActionOrganizationView},

		// Admin permissions: manage invitations and plain members only
		{subject(userdomain.RoleAdmin), ObjectOrganization, ActionMemberInvite},
		{subject(userdomain.RoleAdmin), ObjectInvitation, ActionInvitationCancel},
		{subject(userdomain.RoleAdmin), MemberObject(userdomain.RoleMember), ActionMemberChangeRole},
		{subject(userdomain.RoleAdmin), MemberObject(userdomain.RoleMember), ActionMemberRemove},
		{subject(userdomain.RoleAdmin), RoleObject(userdomain.RoleMember), ActionRoleGrant},
		{subject(userdomain.RoleAdmin), RoleObject(userdomain.RoleAdmin), ActionRoleGrant},

		// Owner permissions
		{subject(userdomain.RoleOwner), ObjectOrganization, ActionOrganizationUpdate},
		{subject(userdomain.RoleOwner), ObjectOrganization, ActionOrganizationDelete},
		{subject(userdomain.RoleOwner), ObjectOrganization, ActionOrganizationLogo},
		{subject(userdomain.RoleOwner), "member/*", ActionMemberChangeRole},
		{subject(userdomain.RoleOwner), "member/*", ActionMemberRemove},
		{subject(userdomain.RoleOwner), "role/*", ActionRoleGrant},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}

	inheritance := [][]string{
		{subject(userdomain.RoleOwner), subject(userdomain.RoleAdmin)},
		{subject(userdomain.RoleAdmin), subject(userdomain.RoleMember)},
	}
	for _, rule := range inheritance {
		if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}
	return nil
}
