package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tasklane/internal/user/domain"
	"github.com/smallbiznis/tasklane/pkg/db"
	"gorm.io/gorm"
)

// GormStore is the relational user store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{db: conn}
}

// WithTx returns a store bound to tx.
func (r *GormStore) WithTx(tx *gorm.DB) *GormStore {
	return &GormStore{db: tx}
}

var (
	_ domain.Queries    = (*GormStore)(nil)
	_ domain.Repository = (*GormStore)(nil)
)

func (r *GormStore) GetUser(ctx context.Context, userID snowflake.ID) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "LOWER(email) = LOWER(?)", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormStore) GetCurrentUserOrganizations(ctx context.Context, userID snowflake.ID) ([]domain.Organization, error) {
	memberships := r.db.Model(&domain.OrganizationMember{}).Select("org_id").Where("user_id = ?", userID)

	var orgs []domain.Organization
	err := r.loadOrganizations(ctx).
		Where("id IN (?)", memberships).
		Order("created_at ASC, id ASC").
		Find(&orgs).Error
	if err != nil {
		return nil, err
	}
	return orgs, nil
}

func (r *GormStore) GetInvitation(ctx context.Context, invitationID snowflake.ID) (*domain.OrganizationInvitation, string, error) {
	var invitation domain.OrganizationInvitation
	if err := r.db.WithContext(ctx).First(&invitation, "id = ?", invitationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", domain.ErrInvitationNotFound
		}
		return nil, "", err
	}

	var orgName string
	err := r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Select("name").
		Where("id = ?", invitation.OrgID).
		Scan(&orgName).Error
	if err != nil {
		return nil, "", err
	}
	return &invitation, orgName, nil
}

func (r *GormStore) CreateUser(ctx context.Context, user *domain.User) error {
	if _, err := r.GetUserByEmail(ctx, user.Email); err == nil {
		return domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *GormStore) UpdatePreferences(ctx context.Context, userID snowflake.ID, prefs domain.Preferences) (*domain.User, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Select("preferences", "updated_at").
		Updates(&domain.User{Preferences: &prefs, UpdatedAt: time.Now().UTC()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrUserNotFound
	}
	return r.GetUser(ctx, userID)
}

func (r *GormStore) UpdateProfile(ctx context.Context, userID snowflake.ID, name *string) (*domain.User, error) {
	var value any
	if name != nil {
		value = *name
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.User{}).
			Where("id = ?", userID).
			Updates(map[string]any{"name": value, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrUserNotFound
		}
		return tx.Model(&domain.OrganizationMember{}).
			Where("user_id = ?", userID).
			Update("name", value).Error
	})
	if err != nil {
		return nil, err
	}
	return r.GetUser(ctx, userID)
}

func (r *GormStore) UpdatePasswordHash(ctx context.Context, userID snowflake.ID, hash string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"password_hash": hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *GormStore) MarkEmailVerified(ctx context.Context, userID snowflake.ID, at time.Time) error {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ? AND email_verified_at IS NULL", userID).
		Update("email_verified_at", at).Error
}

func (r *GormStore) CreateOrganization(ctx context.Context, org *domain.Organization, owner *domain.OrganizationMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members", "Invitations").Create(org).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrSlugTaken
			}
			return err
		}
		if owner == nil {
			return nil
		}
		return tx.Create(owner).Error
	})
}

func (r *GormStore) UpdateOrganization(ctx context.Context, orgID snowflake.ID, patch domain.OrganizationPatch) (*domain.Organization, error) {
	fields := map[string]any{}
	if patch.Name != nil {
		fields["name"] = *patch.Name
	}
	if patch.Slug != nil {
		fields["slug"] = nullable(*patch.Slug)
	}
	if patch.Logo != nil {
		fields["logo"] = nullable(*patch.Logo)
	}
	if patch.Metadata != nil {
		fields["metadata"] = nullable(*patch.Metadata)
	}

	if len(fields) > 0 {
		res := r.db.WithContext(ctx).Model(&domain.Organization{}).Where("id = ?", orgID).Updates(fields)
		if res.Error != nil {
			if db.IsDuplicateKeyErr(res.Error) {
				return nil, domain.ErrSlugTaken
			}
			return nil, res.Error
		}
	}

	var org domain.Organization
	if err := r.loadOrganizations(ctx).First(&org, "id = ?", orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *GormStore) DeleteOrganization(ctx context.Context, orgID snowflake.ID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("org_id = ?", orgID).Delete(&domain.OrganizationInvitation{}).Error; err != nil {
			return fmt.Errorf("delete invitations: %w", err)
		}
		if err := tx.Where("org_id = ?", orgID).Delete(&domain.OrganizationMember{}).Error; err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
		res := tx.Where("id = ?", orgID).Delete(&domain.Organization{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrOrganizationNotFound
		}
		return nil
	})
}

func (r *GormStore) AddMember(ctx context.Context, member *domain.OrganizationMember) error {
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrAlreadyMember
		}
		return err
	}
	return nil
}

func (r *GormStore) UpdateMemberRole(ctx context.Context, memberID snowflake.ID, role domain.Role) error {
	res := r.db.WithContext(ctx).
		Model(&domain.OrganizationMember{}).
		Where("id = ?", memberID).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *GormStore) RemoveMember(ctx context.Context, memberID snowflake.ID) error {
	res := r.db.WithContext(ctx).Where("id = ?", memberID).Delete(&domain.OrganizationMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *GormStore) CreateInvitation(ctx context.Context, invitation *domain.OrganizationInvitation) error {
	if err := r.db.WithContext(ctx).Create(invitation).Error; err != nil {
		// postgres enforces one pending invitation per address
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrInvitationAlreadyPending
		}
		return err
	}
	return nil
}

func (r *GormStore) TransitionInvitation(ctx context.Context, invitationID snowflake.ID, to domain.InvitationStatus) error {
	res := r.db.WithContext(ctx).
		Model(&domain.OrganizationInvitation{}).
		Where("id = ? AND status = ?", invitationID, domain.InvitationPending).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.OrganizationInvitation{}).Where("id = ?", invitationID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrInvitationNotFound
	}
	return domain.ErrInvitationNotPending
}

func (r *GormStore) loadOrganizations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Members", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at ASC, id ASC")
		}).
		Preload("Invitations", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("status = ?", domain.InvitationPending).Order("created_at ASC, id ASC")
		})
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
