package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tasklane/internal/user/domain"
)

// MemoryStore keeps users and organizations in process memory. It enforces the
// same uniqueness rules as the relational schema but has no rollback: writes
// made before a failing step stay applied.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[snowflake.ID]domain.User
	orgs        map[snowflake.ID]domain.Organization
	members     map[snowflake.ID]domain.OrganizationMember
	invitations map[snowflake.ID]domain.OrganizationInvitation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[snowflake.ID]domain.User),
		orgs:        make(map[snowflake.ID]domain.Organization),
		members:     make(map[snowflake.ID]domain.OrganizationMember),
		invitations: make(map[snowflake.ID]domain.OrganizationInvitation),
	}
}

var (
	_ domain.Queries    = (*MemoryStore)(nil)
	_ domain.Repository = (*MemoryStore)(nil)
)

func (s *MemoryStore) GetUser(_ context.Context, userID snowflake.ID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return cloneUser(user), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *MemoryStore) GetCurrentUserOrganizations(_ context.Context, userID snowflake.ID) ([]domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgs := make([]domain.Organization, 0)
	for _, member := range s.members {
		if member.UserID != userID {
			continue
		}
		if org, ok := s.orgs[member.OrgID]; ok {
			orgs = append(orgs, s.loadOrganization(org))
		}
	}
	sort.Slice(orgs, func(i, j int) bool {
		return lessByCreated(orgs[i].CreatedAt, orgs[i].ID, orgs[j].CreatedAt, orgs[j].ID)
	})
	return orgs, nil
}

func (s *MemoryStore) GetInvitation(_ context.Context, invitationID snowflake.ID) (*domain.OrganizationInvitation, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invitation, ok := s.invitations[invitationID]
	if !ok {
		return nil, "", domain.ErrInvitationNotFound
	}
	return &invitation, s.orgs[invitation.OrgID].Name, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return domain.ErrEmailTaken
		}
	}
	s.users[user.ID] = *cloneUser(*user)
	return nil
}

func (s *MemoryStore) UpdatePreferences(_ context.Context, userID snowflake.ID, prefs domain.Preferences) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	user.Preferences = &prefs
	user.UpdatedAt = time.Now().UTC()
	s.users[userID] = user
	return cloneUser(user), nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, userID snowflake.ID, name *string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	user.Name = name
	user.UpdatedAt = time.Now().UTC()
	s.users[userID] = user

	for id, member := range s.members {
		if member.UserID == userID {
			member.Name = name
			s.members[id] = member
		}
	}
	return cloneUser(user), nil
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, userID snowflake.ID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.PasswordHash = &hash
	user.UpdatedAt = time.Now().UTC()
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) MarkEmailVerified(_ context.Context, userID snowflake.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if user.EmailVerifiedAt == nil {
		verified := at
		user.EmailVerifiedAt = &verified
		s.users[userID] = user
	}
	return nil
}

func (s *MemoryStore) CreateOrganization(_ context.Context, org *domain.Organization, owner *domain.OrganizationMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if org.Slug != nil && s.slugTaken(*org.Slug, org.ID) {
		return domain.ErrSlugTaken
	}
	stored := *org
	stored.Members = nil
	stored.Invitations = nil
	s.orgs[org.ID] = stored
	if owner != nil {
		s.members[owner.ID] = *owner
	}
	return nil
}

func (s *MemoryStore) UpdateOrganization(_ context.Context, orgID snowflake.ID, patch domain.OrganizationPatch) (*domain.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, ok := s.orgs[orgID]
	if !ok {
		return nil, domain.ErrOrganizationNotFound
	}
	if patch.Name != nil {
		org.Name = *patch.Name
	}
	if patch.Slug != nil {
		if *patch.Slug != "" && s.slugTaken(*patch.Slug, orgID) {
			return nil, domain.ErrSlugTaken
		}
		org.Slug = emptyToNil(*patch.Slug)
	}
	if patch.Logo != nil {
		org.Logo = emptyToNil(*patch.Logo)
	}
	if patch.Metadata != nil {
		org.Metadata = emptyToNil(*patch.Metadata)
	}
	s.orgs[orgID] = org

	loaded := s.loadOrganization(org)
	return &loaded, nil
}

func (s *MemoryStore) DeleteOrganization(_ context.Context, orgID snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orgs[orgID]; !ok {
		return domain.ErrOrganizationNotFound
	}
	delete(s.orgs, orgID)
	for id, member := range s.members {
		if member.OrgID == orgID {
			delete(s.members, id)
		}
	}
	for id, invitation := range s.invitations {
		if invitation.OrgID == orgID {
			delete(s.invitations, id)
		}
	}
	return nil
}

func (s *MemoryStore) AddMember(_ context.Context, member *domain.OrganizationMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orgs[member.OrgID]; !ok {
		return domain.ErrOrganizationNotFound
	}
	for _, existing := range s.members {
		if existing.OrgID == member.OrgID && existing.UserID == member.UserID {
			return domain.ErrAlreadyMember
		}
	}
	s.members[member.ID] = *member
	return nil
}

func (s *MemoryStore) UpdateMemberRole(_ context.Context, memberID snowflake.ID, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	member, ok := s.members[memberID]
	if !ok {
		return domain.ErrMemberNotFound
	}
	member.Role = role
	s.members[memberID] = member
	return nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, memberID snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[memberID]; !ok {
		return domain.ErrMemberNotFound
	}
	delete(s.members, memberID)
	return nil
}

func (s *MemoryStore) CreateInvitation(_ context.Context, invitation *domain.OrganizationInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orgs[invitation.OrgID]; !ok {
		return domain.ErrOrganizationNotFound
	}
	s.invitations[invitation.ID] = *invitation
	return nil
}

func (s *MemoryStore) TransitionInvitation(_ context.Context, invitationID snowflake.ID, to domain.InvitationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	invitation, ok := s.invitations[invitationID]
	if !ok {
		return domain.ErrInvitationNotFound
	}
	if invitation.Status != domain.InvitationPending {
		return domain.ErrInvitationNotPending
	}
	invitation.Status = to
	s.invitations[invitationID] = invitation
	return nil
}

// loadOrganization attaches members and pending invitations. Callers hold mu.
func (s *MemoryStore) loadOrganization(org domain.Organization) domain.Organization {
	org.Members = make([]domain.OrganizationMember, 0)
	for _, member := range s.members {
		if member.OrgID == org.ID {
			org.Members = append(org.Members, member)
		}
	}
	sort.Slice(org.Members, func(i, j int) bool {
		a, b := org.Members[i], org.Members[j]
		return lessByCreated(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})

	org.Invitations = make([]domain.OrganizationInvitation, 0)
	for _, invitation := range s.invitations {
		if invitation.OrgID == org.ID && invitation.Status == domain.InvitationPending {
			org.Invitations = append(org.Invitations, invitation)
		}
	}
	sort.Slice(org.Invitations, func(i, j int) bool {
		a, b := org.Invitations[i], org.Invitations[j]
		return lessByCreated(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	return org
}

func (s *MemoryStore) slugTaken(slug string, except snowflake.ID) bool {
	for id, org := range s.orgs {
		if id != except && org.Slug != nil && *org.Slug == slug {
			return true
		}
	}
	return false
}

func cloneUser(user domain.User) *domain.User {
	if user.Preferences != nil {
		prefs := *user.Preferences
		user.Preferences = &prefs
	}
	if user.EmailVerifiedAt != nil {
		verified := *user.EmailVerifiedAt
		user.EmailVerifiedAt = &verified
	}
	return &user
}

func emptyToNil(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func lessByCreated(at time.Time, aID snowflake.ID, bt time.Time, bID snowflake.ID) bool {
	if at.Equal(bt) {
		return aID < bID
	}
	return at.Before(bt)
}
