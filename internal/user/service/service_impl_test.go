package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tasklane/internal/authorization"
	"github.com/smallbiznis/tasklane/internal/clock"
	"github.com/smallbiznis/tasklane/internal/event"
	"github.com/smallbiznis/tasklane/internal/providers/email"
	"github.com/smallbiznis/tasklane/internal/providers/storage"
	"github.com/smallbiznis/tasklane/internal/uow"
	"github.com/smallbiznis/tasklane/internal/user/domain"
	"github.com/smallbiznis/tasklane/internal/user/usertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fileGatewayMock struct {
	mock.Mock
}

func (m *fileGatewayMock) UploadPublic(ctx context.Context, data []byte, key string, contentType string) (*storage.UploadResult, error) {
	args := m.Called(ctx, data, key, contentType)
	res, _ := args.Get(0).(*storage.UploadResult)
	return res, args.Error(1)
}

func (m *fileGatewayMock) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *fileGatewayMock) KeyFromURL(url string) (string, bool) {
	args := m.Called(url)
	return args.String(0), args.Bool(1)
}

type mailerMock struct {
	mock.Mock
}

func (m *mailerMock) SendInvitation(ctx context.Context, to string, locale string, data email.InvitationData) error {
	return m.Called(ctx, to, locale, data).Error(0)
}

func (m *mailerMock) SendVerification(ctx context.Context, to string, locale string, data email.VerificationData) error {
	return m.Called(ctx, to, locale, data).Error(0)
}

func (m *mailerMock) SendPasswordReset(ctx context.Context, to string, locale string, data email.PasswordResetData) error {
	return m.Called(ctx, to, locale, data).Error(0)
}

type recordedEvent struct {
	orgID snowflake.ID
	topic string
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Publish(_ context.Context, orgID snowflake.ID, topic string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{orgID: orgID, topic: topic})
	return nil
}

func (r *eventRecorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.topic)
	}
	return out
}

type fixture struct {
	svc     domain.Service
	uow     *uow.MemoryUnitOfWork
	clock   *clock.FakeClock
	files   *fileGatewayMock
	mailer  *mailerMock
	events  *eventRecorder
	factory *usertest.Factory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithFiles(t, nil)
}

// newFixtureWithFiles wires files into the service instead of the mock gateway
// when it is not nil.
func newFixtureWithFiles(t *testing.T, files storage.FileGateway) *fixture {
	t.Helper()

	enforcer, err := authorization.NewEnforcer()
	require.NoError(t, err)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	f := &fixture{
		uow:     uow.NewMemory(),
		clock:   clock.NewFakeClock(usertest.Epoch.Add(time.Hour)),
		files:   &fileGatewayMock{},
		mailer:  &mailerMock{},
		events:  &eventRecorder{},
		factory: usertest.NewFactory(t),
	}
	if files == nil {
		files = f.files
	}
	log := zaptest.NewLogger(t)
	f.svc = New(Params{
		Log:    log,
		UOW:    f.uow,
		Clock:  f.clock,
		GenID:  node,
		Authz:  authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
		Files:  files,
		Mailer: f.mailer,
		Events: f.events,
	})
	t.Cleanup(func() {
		f.files.AssertExpectations(t)
		f.mailer.AssertExpectations(t)
	})
	return f
}

func (f *fixture) seed(t *testing.T, seed usertest.Seed) {
	t.Helper()
	require.NoError(t, f.uow.Do(context.Background(), func(ctx context.Context, repos uow.Repositories) error {
		seed.Apply(t, repos.Users)
		return nil
	}))
}

// team seeds an organization owned by owner with the given extra members.
func (f *fixture) team(t *testing.T, owner domain.User, extra map[*domain.User]domain.Role) (domain.Organization, map[snowflake.ID]domain.OrganizationMember) {
	t.Helper()

	users := []domain.User{owner}
	org, ownerMember := f.factory.Organization(owner)
	members := map[snowflake.ID]domain.OrganizationMember{owner.ID: ownerMember}
	var extras []domain.OrganizationMember
	for user, role := range extra {
		users = append(users, *user)
		m := f.factory.Member(org, *user, role)
		members[user.ID] = m
		extras = append(extras, m)
	}
	f.seed(t, usertest.Seed{
		Users:         users,
		Organizations: []usertest.SeedOrganization{{Organization: org, Owner: ownerMember}},
		Members:       extras,
	})
	return org, members
}

func (f *fixture) organization(t *testing.T, user domain.User, orgID snowflake.ID) domain.Organization {
	t.Helper()

	orgs, err := f.svc.ListOrganizations(context.Background(), usertest.Current(user))
	require.NoError(t, err)
	for _, org := range orgs {
		if org.ID == orgID {
			return org
		}
	}
	t.Fatalf("organization %s not visible to %s", orgID, user.Email)
	return domain.Organization{}
}

func strPtr(s string) *string { return &s }

func TestUpdateUserPreferencesMergesPartials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	f.seed(t, usertest.Seed{Users: []domain.User{alice}})
	me := usertest.Current(alice)

	once, err := f.svc.UpdateUserPreferences(ctx, me, domain.UpdatePreferencesRequest{Theme: strPtr(domain.ThemeDark)})
	require.NoError(t, err)
	twice, err := f.svc.UpdateUserPreferences(ctx, me, domain.UpdatePreferencesRequest{Theme: strPtr(domain.ThemeDark)})
	require.NoError(t, err)
	assert.Equal(t, *once.Preferences, *twice.Preferences)

	merged, err := f.svc.UpdateUserPreferences(ctx, me, domain.UpdatePreferencesRequest{Locale: strPtr(domain.LocaleEN)})
	require.NoError(t, err)
	assert.Equal(t, domain.Preferences{Locale: domain.LocaleEN, Theme: domain.ThemeDark}, *merged.Preferences)
}

func TestUpdateUserPreferencesOrderIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	bob := f.factory.User()
	f.seed(t, usertest.Seed{Users: []domain.User{alice, bob}})

	locale := domain.UpdatePreferencesRequest{Locale: strPtr(domain.LocaleEN)}
	theme := domain.UpdatePreferencesRequest{Theme: strPtr(domain.ThemeDark)}

	_, err := f.svc.UpdateUserPreferences(ctx, usertest.Current(alice), locale)
	require.NoError(t, err)
	a, err := f.svc.UpdateUserPreferences(ctx, usertest.Current(alice), theme)
	require.NoError(t, err)

	_, err = f.svc.UpdateUserPreferences(ctx, usertest.Current(bob), theme)
	require.NoError(t, err)
	b, err := f.svc.UpdateUserPreferences(ctx, usertest.Current(bob), locale)
	require.NoError(t, err)

	assert.Equal(t, *a.Preferences, *b.Preferences)
	assert.Equal(t, domain.Preferences{Locale: domain.LocaleEN, Theme: domain.ThemeDark}, *a.Preferences)
}

func TestUpdateUserPreferencesValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	f.seed(t, usertest.Seed{Users: []domain.User{alice}})

	_, err := f.svc.UpdateUserPreferences(ctx, usertest.Current(alice), domain.UpdatePreferencesRequest{Locale: strPtr("de")})
	assert.ErrorIs(t, err, domain.ErrInvalidLocale)
	_, err = f.svc.UpdateUserPreferences(ctx, usertest.Current(alice), domain.UpdatePreferencesRequest{Theme: strPtr("sepia")})
	assert.ErrorIs(t, err, domain.ErrInvalidTheme)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	f.seed(t, usertest.Seed{Users: []domain.User{alice}})

	user, err := f.svc.UpdateProfile(ctx, usertest.Current(alice), domain.UpdateProfileRequest{Name: "  Alice  "})
	require.NoError(t, err)
	require.NotNil(t, user.Name)
	assert.Equal(t, "Alice", *user.Name)

	user, err = f.svc.UpdateProfile(ctx, usertest.Current(alice), domain.UpdateProfileRequest{Name: "   "})
	require.NoError(t, err)
	assert.Nil(t, user.Name)

	_, err = f.svc.UpdateProfile(ctx, usertest.Current(alice), domain.UpdateProfileRequest{Name: strings.Repeat("a", 101)})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestCreateOrganizationMakesCreatorOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	f.seed(t, usertest.Seed{Users: []domain.User{alice}})

	org, err := f.svc.CreateOrganization(ctx, usertest.Current(alice), domain.CreateOrganizationRequest{Name: " Acme & Co "})
	require.NoError(t, err)
	assert.Equal(t, "Acme & Co", org.Name)
	require.NotNil(t, org.Slug)
	assert.Equal(t, "acme-and-co", *org.Slug)

	loaded := f.organization(t, alice, org.ID)
	require.Len(t, loaded.Members, 1)
	assert.Equal(t, domain.RoleOwner, loaded.Members[0].Role)
	assert.Equal(t, []string{event.OrganizationCreatedTopic}, f.events.topics())

	_, err = f.svc.CreateOrganization(ctx, usertest.Current(alice), domain.CreateOrganizationRequest{Name: "Other", Slug: strPtr("ACME and co")})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)

	_, err = f.svc.CreateOrganization(ctx, usertest.Current(alice), domain.CreateOrganizationRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	_, err = f.svc.CreateOrganization(ctx, usertest.Current(alice), domain.CreateOrganizationRequest{Name: "Ok", Slug: strPtr("!!!")})
	assert.ErrorIs(t, err, domain.ErrInvalidSlug)
}

func TestUpdateOrganizationSanitizesSlug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	org, _ := f.team(t, alice, nil)

	updated, err := f.svc.UpdateOrganization(ctx, usertest.Current(alice), org.ID, domain.UpdateOrganizationRequest{Slug: strPtr("My Org!! Name")})
	require.NoError(t, err)
	require.NotNil(t, updated.Slug)
	assert.Equal(t, "my-org-name", *updated.Slug)

	persisted := f.organization(t, alice, org.ID)
	assert.Regexp(t, regexp.MustCompile(`^[a-z0-9-]+$`), *persisted.Slug)
	assert.Equal(t, "my-org-name", *persisted.Slug)

	updated, err = f.svc.UpdateOrganization(ctx, usertest.Current(alice), org.ID, domain.UpdateOrganizationRequest{Slug: strPtr("snake_case__slug")})
	require.NoError(t, err)
	assert.Equal(t, "snake-case-slug", *updated.Slug)
}

func TestUpdateOrganizationValidationComesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	org, _ := f.team(t, alice, nil)

	_, err := f.svc.UpdateOrganization(ctx, usertest.Current(alice), org.ID, domain.UpdateOrganizationRequest{Name: strPtr("   "), Slug: strPtr("fresh")})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	persisted := f.organization(t, alice, org.ID)
	assert.Equal(t, org.Name, persisted.Name)
	assert.Equal(t, *org.Slug, *persisted.Slug)
}

func TestUpdateOrganizationRequiresOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	bob := f.factory.User()
	carol := f.factory.User()
	outsider := f.factory.User()
	org, _ := f.team(t, alice, map[*domain.User]domain.Role{&bob: domain.RoleAdmin, &carol: domain.RoleMember})
	f.seed(t, usertest.Seed{Users: []domain.User{outsider}})

	for _, user := range []domain.User{bob, carol} {
		_, err := f.svc.UpdateOrganization(ctx, usertest.Current(user), org.ID, domain.UpdateOrganizationRequest{Name: strPtr("Hijacked")})
		assert.ErrorIs(t, err, domain.ErrOnlyOwnersCanUpdate)
	}
	_, err := f.svc.UpdateOrganization(ctx, usertest.Current(outsider), org.ID, domain.UpdateOrganizationRequest{Name: strPtr("Hijacked")})
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)
	_, err = f.svc.UpdateOrganization(ctx, usertest.Current(alice), f.factory.ID(), domain.UpdateOrganizationRequest{Name: strPtr("Ghost")})
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

	assert.Equal(t, org.Name, f.organization(t, alice, org.ID).Name)
}

func TestUpdateOrganizationDeletesReplacedLogo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	org, _ := f.team(t, alice, nil)
	me := usertest.Current(alice)

	prefix := domain.LogoKeyPrefix(org.ID)
	first := "https://cdn.example.com/" + prefix + "logo-a.png"
	second := "https://cdn.example.com/" + prefix + "logo-b.png"
	f.files.On("KeyFromURL", first).Return(prefix+"logo-a.png", true)
	f.files.On("KeyFromURL", second).Return(prefix+"logo-b.png", true)

	_, err := f.svc.UpdateOrganization(ctx, me, org.ID, domain.UpdateOrganizationRequest{Logo: &first})
	require.NoError(t, err)

	// same logo again: nothing to delete
	_, err = f.svc.UpdateOrganization(ctx, me, org.ID, domain.UpdateOrganizationRequest{Logo: &first})
	require.NoError(t, err)
	f.files.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)

	f.files.On("Delete", mock.Anything, prefix+"logo-a.png").Return(errors.New("bucket unavailable")).Once()

	updated, err := f.svc.UpdateOrganization(ctx, me, org.ID, domain.UpdateOrganizationRequest{Logo: &second})
	require.NoError(t, err, "old logo deletion failures are not surfaced")
	require.NotNil(t, updated.Logo)
	assert.Equal(t, second, *updated.Logo)
}

func TestUpdateOrganizationClearingLogoKeepsFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	org, _ := f.team(t, alice, nil)
	me := usertest.Current(alice)

	logo := "https://cdn.example.com/" + domain.LogoKeyPrefix(org.ID) + "logo-a.png"
	f.files.On("KeyFromURL", logo).Return(domain.LogoKeyPrefix(org.ID)+"logo-a.png", true).Once()
	_, err := f.svc.UpdateOrganization(ctx, me, org.ID, domain.UpdateOrganizationRequest{Logo: &logo})
	require.NoError(t, err)

	updated, err := f.svc.UpdateOrganization(ctx, me, org.ID, domain.UpdateOrganizationRequest{Logo: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.Logo)
	f.files.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestUpdateOrganizationAcceptsExternalLogo(t *testing.T) {
	f := newFixture(t)
	alice := f.factory.User()
	org, _ := f.team(t, alice, nil)

	logo := "https://images.example.org/brand.png"
	f.files.On("KeyFromURL", logo).Return("", false).Once()
	updated, err := f.svc.UpdateOrganization(context.Background(), usertest.Current(alice), org.ID, domain.UpdateOrganizationRequest{Logo: &logo})
	require.NoError(t, err)
	require.NotNil(t, updated.Logo)
	assert.Equal(t, logo, *updated.Logo)
}

func TestLogoFilesStayWithinTheirOrganization(t *testing.T) {
	files := storage.NewMemory("https://cdn.example.com")
	f := newFixtureWithFiles(t, files)
	ctx := context.Background()
	alice := f.factory.User()
	bob := f.factory.User()
	orgA, _ := f.team(t, alice, nil)
	orgB, _ := f.team(t, bob, nil)
	png := domain.UploadLogoRequest{Data: []byte("png"), MimeType: "image/png"}

	bobLogo, err := f.svc.UploadOrganizationLogo(ctx, usertest.Current(bob), orgB.ID, png)
	require.NoError(t, err)
	_, err = f.svc.UpdateOrganization(ctx, usertest.Current(bob), orgB.ID, domain.UpdateOrganizationRequest{Logo: &bobLogo.URL})
	require.NoError(t, err)

	// pointing A at B's file, directly or through a relative path, is refused
	_, err = f.svc.UpdateOrganization(ctx, usertest.Current(alice), orgA.ID, domain.UpdateOrganizationRequest{Logo: &bobLogo.URL})
	assert.ErrorIs(t, err, domain.ErrInvalidLogo)
	dotted := "https://cdn.example.com/" + domain.LogoKeyPrefix(orgA.ID) + "../../" + bobLogo.Key
	_, err = f.svc.UpdateOrganization(ctx, usertest.Current(alice), orgA.ID, domain.UpdateOrganizationRequest{Logo: &dotted})
	assert.ErrorIs(t, err, domain.ErrInvalidLogo)

	_, stored := files.Get(bobLogo.Key)
	assert.True(t, stored)
	assert.Nil(t, f.organization(t, alice, orgA.ID).Logo)
}

func TestReplacingForeignLogoLeavesItStored(t *testing.T) {
	files := storage.NewMemory("https://cdn.example.com")
	f := newFixtureWithFiles(t, files)
	ctx := context.Background()
	alice := f.factory.User()
	bob := f.factory.User()
	orgB, _ := f.team(t, bob, nil)
	png := domain.UploadLogoRequest{Data: []byte("png"), MimeType: "image/png"}

	bobLogo, err := f.svc.UploadOrganizationLogo(ctx, usertest.Current(bob), orgB.ID, png)
	require.NoError(t, err)

	// an organization whose stored logo already points at B's file
	orgA, owner := f.factory.Organization(alice)
	orgA.Logo = &bobLogo.URL
	f.seed(t, usertest.Seed{
		Users:         []domain.User{alice},
		Organizations: []usertest.SeedOrganization{{Organization: orgA, Owner: owner}},
	})

	own, err := f.svc.UploadOrganizationLogo(ctx, usertest.Current(alice), orgA.ID, png)
	require.NoError(t, err)
	_, err = f.svc.UpdateOrganization(ctx, usertest.Current(alice), orgA.ID, domain.UpdateOrganizationRequest{Logo: &own.URL})
	require.NoError(t, err)
	_, stored := files.Get(bobLogo.Key)
	assert.True(t, stored, "replacing A's logo must not touch B's file")

	next, err := f.svc.UploadOrganizationLogo(ctx, usertest.Current(alice), orgA.ID, png)
	require.NoError(t, err)
	_, err = f.svc.UpdateOrganization(ctx, usertest.Current(alice), orgA.ID, domain.UpdateOrganizationRequest{Logo: &next.URL})
	require.NoError(t, err)
	_, stored = files.Get(own.Key)
	assert.False(t, stored, "A's own replaced logo is deleted")

	require.NoError(t, f.svc.DeleteOrganization(ctx, usertest.Current(alice), orgA.ID))
	_, stored = files.Get(next.Key)
	assert.False(t, stored)
	_, stored = files.Get(bobLogo.Key)
	assert.True(t, stored, "deleting A must not touch B's file")
}

func TestDeleteOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	bob := f.factory.User()
	org, _ := f.team(t, alice, map[*domain.User]domain.Role{&bob: domain.RoleAdmin})

	err := f.svc.DeleteOrganization(ctx, usertest.Current(bob), org.ID)
	assert.ErrorIs(t, err, domain.ErrOnlyOwnersCanDelete)

	require.NoError(t, f.svc.DeleteOrganization(ctx, usertest.Current(alice), org.ID))
	for _, user := range []domain.User{alice, bob} {
		orgs, err := f.svc.ListOrganizations(ctx, usertest.Current(user))
		require.NoError(t, err)
		assert.Empty(t, orgs)
	}
	assert.Contains(t, f.events.topics(), event.OrganizationDeletedTopic)
}

func TestUploadLogoRejectsPDFWithoutUploading(t *testing.T) {
	f := newFixture(t)
	alice := f.factory.User()
	org, _ := f.team(t, alice, nil)

	_, err := f.svc.UploadOrganizationLogo(context.Background(), usertest.Current(alice), org.ID, domain.UploadLogoRequest{
		Data:     []byte("%PDF-1.7"),
		Filename: "logo.pdf",
		MimeType: "application/pdf",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidFileType)
	f.files.AssertNotCalled(t, "UploadPublic", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadLogoRejectsLargeFile(t *testing.T) {
	f := newFixture(t)
	alice := f.factory.User()
	org, _ := f.team(t, alice, nil)

	_, err := f.svc.UploadOrganizationLogo(context.Background(), usertest.Current(alice), org.ID, domain.UploadLogoRequest{
		Data:     make([]byte, domain.MaxLogoBytes+1),
		MimeType: "image/png",
	})
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)

	f.files.On("UploadPublic", mock.Anything, mock.Anything, mock.Anything, "image/png").
		Return(&storage.UploadResult{URL: "https://cdn.example.com/x.png", Key: "x.png"}, nil).Once()
	_, err = f.svc.UploadOrganizationLogo(context.Background(), usertest.Current(alice), org.ID, domain.UploadLogoRequest{
		Data:     make([]byte, domain.MaxLogoBytes),
		MimeType: "image/png",
	})
	assert.NoError(t, err, "exactly the limit is accepted")
}

func TestUploadLogoStoresUnderOrganizationKey(t *testing.T) {
	f := newFixture(t)
	alice := f.factory.User()
	bob := f.factory.User()
	org, _ := f.team(t, alice, map[*domain.User]domain.Role{&bob: domain.RoleAdmin})

	_, err := f.svc.UploadOrganizationLogo(context.Background(), usertest.Current(bob), org.ID, domain.UploadLogoRequest{
		Data:     []byte("<svg/>"),
		MimeType: "image/svg+xml",
	})
	assert.ErrorIs(t, err, domain.ErrOnlyOwnersCanUploadLogo)

	keyPattern := regexp.MustCompile(`^organizations/` + org.ID.String() + `/logo-\d+-[0-9a-f-]{36}\.svg$`)
	f.files.On("UploadPublic", mock.Anything, []byte("<svg/>"), mock.MatchedBy(keyPattern.MatchString), "image/svg+xml").
		Return(&storage.UploadResult{URL: "https://cdn.example.com/logo.svg", Key: "logo.svg"}, nil).Once()

	res, err := f.svc.UploadOrganizationLogo(context.Background(), usertest.Current(alice), org.ID, domain.UploadLogoRequest{
		Data:     []byte("<svg/>"),
		Filename: "logo.svg",
		MimeType: "image/svg+xml",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/logo.svg", res.URL)
}
