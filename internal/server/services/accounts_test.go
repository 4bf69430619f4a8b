package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestMe(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, "john@example.com", models.RoleCustomer)
	claims, _ := f.login(t, "john@example.com", testPassword)

	me, err := f.accounts.Me(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, a.ID, me.ID)
	assert.Empty(t, me.PasswordHash)
	assert.Nil(t, me.RefreshTokenHash)
}

func TestUpdatePersonalData(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "john@example.com", models.RoleCustomer)
	claims, _ := f.login(t, "john@example.com", testPassword)
	ctx := context.Background()

	updated, err := f.accounts.UpdatePersonalData(ctx, claims, 1, models.PersonalData{
		Name:      ptr(" Johnny "),
		Telephone: ptr("+37120000000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Johnny", updated.Name)
	assert.Equal(t, "+37120000000", updated.Telephone)
	assert.Equal(t, int64(2), updated.Version)

	_, err = f.accounts.UpdatePersonalData(ctx, claims, 1, models.PersonalData{Name: ptr("Stale")})
	requireReason(t, err, common.ErrorConflict, ReasonStaleVersion)

	same, err := f.accounts.UpdatePersonalData(ctx, claims, 2, models.PersonalData{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), same.Version)
	assert.Equal(t, "Johnny", same.Name)
}

func TestUpdatePersonalData_Validation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "john@example.com", models.RoleCustomer)
	claims, _ := f.login(t, "john@example.com", testPassword)
	ctx := context.Background()

	_, err := f.accounts.UpdatePersonalData(ctx, claims, 1, models.PersonalData{Name: ptr(" ")})
	requireReason(t, err, common.ErrorValidation, ReasonInvalidName)

	_, err = f.accounts.UpdatePersonalData(ctx, claims, 1, models.PersonalData{ImageURL: ptr("avatars/999/x")})
	requireReason(t, err, common.ErrorValidation, ReasonInvalidImage)

	_, err = f.accounts.UpdatePersonalData(ctx, claims, 1, models.PersonalData{Telephone: ptr(strings.Repeat("1", 21))})
	requireReason(t, err, common.ErrorValidation, ReasonInvalidTelephone)

	assert.Equal(t, int64(1), f.current(t, claims.ID).Version)
}

func TestUpdatePersonalData_ConcurrentSameVersion(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "john@example.com", models.RoleCustomer)
	claims, _ := f.login(t, "john@example.com", testPassword)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		stale     int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := "Writer " + strings.Repeat("x", i+1)
			_, err := f.accounts.UpdatePersonalData(context.Background(), claims, 1, models.PersonalData{Name: &name})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if ReasonOf(err) == ReasonStaleVersion {
				stale++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, stale)
	assert.Equal(t, int64(2), f.current(t, claims.ID).Version)
}

func TestUpdatePassword(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "john@example.com", models.RoleCustomer)
	claims, _ := f.login(t, "john@example.com", testPassword)
	ctx := context.Background()

	err := f.accounts.UpdatePassword(ctx, claims, 1, testPassword, testPassword)
	requireReason(t, err, common.ErrorValidation, ReasonPasswordUnchanged)

	err = f.accounts.UpdatePassword(ctx, claims, 1, "Wrong#123", newPassword)
	requireReason(t, err, common.ErrorValidation, ReasonPasswordMismatch)

	err = f.accounts.UpdatePassword(ctx, claims, 1, testPassword, "weakpass")
	requireReason(t, err, common.ErrorValidation, ReasonWeakPassword)

	err = f.accounts.UpdatePassword(ctx, claims, 1, testPassword, "Aa1#"+strings.Repeat("x", 69))
	requireReason(t, err, common.ErrorValidation, ReasonWeakPassword)

	err = f.accounts.UpdatePassword(ctx, claims, 7, testPassword, newPassword)
	requireReason(t, err, common.ErrorConflict, ReasonStaleVersion)

	require.NoError(t, f.accounts.UpdatePassword(ctx, claims, 1, testPassword, newPassword))
	_, err = f.auth.Verify(ctx, "john@example.com", newPassword)
	require.NoError(t, err)
}

func TestDeleteSelf(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "john@example.com", models.RoleCustomer)
	claims, _ := f.login(t, "john@example.com", testPassword)
	ctx := context.Background()

	err := f.accounts.DeleteSelf(ctx, claims, 5)
	requireReason(t, err, common.ErrorConflict, ReasonStaleVersion)

	require.NoError(t, f.accounts.DeleteSelf(ctx, claims, claims.Version))

	stored := f.current(t, claims.ID)
	assert.Equal(t, models.StatusInactive, stored.Status)
	assert.NotNil(t, stored.DeletedAt)

	_, err = f.accounts.Me(ctx, claims)
	requireReason(t, err, common.ErrorForbidden, ReasonInactive)

	_, err = f.accounts.UpdatePersonalData(ctx, claims, stored.Version, models.PersonalData{Name: ptr("Ghost")})
	requireReason(t, err, common.ErrorForbidden, ReasonInactive)
}

func TestDeleteSelf_AdminRefused(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "admin@example.com", models.RoleAdmin)
	claims, _ := f.login(t, "admin@example.com", testPassword)

	err := f.accounts.DeleteSelf(context.Background(), claims, claims.Version)
	requireReason(t, err, common.ErrorForbidden, ReasonAdminDelete)
}

func adminAndCustomer(t *testing.T, f *fixture) (admin *models.Account, customer *models.Account) {
	t.Helper()
	return f.seed(t, "admin@example.com", models.RoleAdmin), f.seed(t, "john@example.com", models.RoleCustomer)
}

func TestUpdateAccount(t *testing.T) {
	f := newFixture(t)
	admin, customer := adminAndCustomer(t, f)
	adminClaims, _ := f.login(t, admin.Email, testPassword)
	ctx := context.Background()

	updated, err := f.accounts.UpdateAccount(ctx, adminClaims, customer.ID, 1, models.Patch{
		Email: ptr("Johnny@Example.com"),
		Role:  ptr(models.RoleAdmin),
	})
	require.NoError(t, err)
	assert.Equal(t, "johnny@example.com", updated.Email)
	assert.Equal(t, models.RoleAdmin, updated.Role)
	assert.Equal(t, int64(2), updated.Version)

	_, err = f.accounts.UpdateAccount(ctx, adminClaims, customer.ID, 1, models.Patch{PersonalData: models.PersonalData{Name: ptr("Stale")}})
	requireReason(t, err, common.ErrorConflict, ReasonStaleVersion)
}

func TestUpdateAccount_Refusals(t *testing.T) {
	f := newFixture(t)
	admin, customer := adminAndCustomer(t, f)
	other := f.seed(t, "other@example.com", models.RoleCustomer)
	adminClaims, _ := f.login(t, admin.Email, testPassword)
	customerClaims, _ := f.login(t, customer.Email, testPassword)
	ctx := context.Background()

	_, err := f.accounts.UpdateAccount(ctx, adminClaims, admin.ID, 1, models.Patch{PersonalData: models.PersonalData{Name: ptr("Me")}})
	requireReason(t, err, common.ErrorForbidden, ReasonSelfTarget)

	_, err = f.accounts.UpdateAccount(ctx, customerClaims, other.ID, 1, models.Patch{PersonalData: models.PersonalData{Name: ptr("Hacked")}})
	requireReason(t, err, common.ErrorForbidden, ReasonAccessDenied)

	_, err = f.accounts.UpdateAccount(ctx, adminClaims, customer.ID, 1, models.Patch{Email: ptr("OTHER@example.com")})
	requireReason(t, err, common.ErrorConflict, ReasonEmailExists)

	_, err = f.accounts.UpdateAccount(ctx, adminClaims, customer.ID, 1, models.Patch{Role: ptr(models.Role("ROOT"))})
	requireReason(t, err, common.ErrorValidation, ReasonInvalidRole)

	_, err = f.accounts.UpdateAccount(ctx, adminClaims, 999, 1, models.Patch{PersonalData: models.PersonalData{Name: ptr("Nobody")}})
	requireReason(t, err, common.ErrorNotFound, ReasonNotFound)

	require.NoError(t, f.accounts.DeleteAccount(ctx, adminClaims, other.ID, 1))
	_, err = f.accounts.UpdateAccount(ctx, adminClaims, other.ID, 2, models.Patch{PersonalData: models.PersonalData{Name: ptr("Zombie")}})
	requireReason(t, err, common.ErrorForbidden, ReasonInactive)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	admin, customer := adminAndCustomer(t, f)
	second := f.seed(t, "second-admin@example.com", models.RoleAdmin)
	adminClaims, _ := f.login(t, admin.Email, testPassword)
	ctx := context.Background()

	err := f.accounts.DeleteAccount(ctx, adminClaims, admin.ID, 1)
	requireReason(t, err, common.ErrorForbidden, ReasonSelfTarget)

	err = f.accounts.DeleteAccount(ctx, adminClaims, second.ID, 1)
	requireReason(t, err, common.ErrorForbidden, ReasonAdminDelete)

	err = f.accounts.DeleteAccount(ctx, adminClaims, customer.ID, 3)
	requireReason(t, err, common.ErrorConflict, ReasonStaleVersion)

	require.NoError(t, f.accounts.DeleteAccount(ctx, adminClaims, customer.ID, 1))

	_, err = f.accounts.Account(ctx, adminClaims, customer.ID)
	requireReason(t, err, common.ErrorNotFound, ReasonNotFound)

	err = f.accounts.DeleteAccount(ctx, adminClaims, customer.ID, 2)
	requireReason(t, err, common.ErrorForbidden, ReasonInactive)

	_, err = f.auth.Login(ctx, customer.Email, testPassword)
	requireReason(t, err, common.ErrorUnauthorized, ReasonInactive)
}

func TestAccount_AdminRead(t *testing.T) {
	f := newFixture(t)
	admin, customer := adminAndCustomer(t, f)
	adminClaims, _ := f.login(t, admin.Email, testPassword)
	customerClaims, _ := f.login(t, customer.Email, testPassword)
	ctx := context.Background()

	got, err := f.accounts.Account(ctx, adminClaims, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, customer.Email, got.Email)
	assert.Empty(t, got.PasswordHash)

	_, err = f.accounts.Account(ctx, customerClaims, admin.ID)
	requireReason(t, err, common.ErrorForbidden, ReasonAccessDenied)
}

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)
	admin, customer := adminAndCustomer(t, f)
	adminClaims, _ := f.login(t, admin.Email, testPassword)
	customerClaims, _ := f.login(t, customer.Email, testPassword)
	ctx := context.Background()

	in := NewAccount{Email: "ops@example.com", Name: "Ops", Password: testPassword, Role: models.RoleAdmin}

	_, err := f.accounts.CreateAccount(ctx, customerClaims, in)
	requireReason(t, err, common.ErrorForbidden, ReasonAccessDenied)

	created, err := f.accounts.CreateAccount(ctx, adminClaims, in)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, created.Role)
	assert.Equal(t, int64(1), created.Version)

	_, err = f.accounts.CreateAccount(ctx, adminClaims, in)
	requireReason(t, err, common.ErrorConflict, ReasonEmailExists)

	in.Email, in.Role = "x@example.com", "ROOT"
	_, err = f.accounts.CreateAccount(ctx, adminClaims, in)
	requireReason(t, err, common.ErrorValidation, ReasonInvalidRole)
}

func TestAvatar(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "john@example.com", models.RoleCustomer)
	claims, _ := f.login(t, "john@example.com", testPassword)
	ctx := context.Background()

	_, err := f.accounts.AvatarDownloadURL(ctx, claims)
	requireReason(t, err, common.ErrorNotFound, ReasonNotFound)

	up, err := f.accounts.AvatarUploadURL(ctx, claims)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.Key, "avatars/"))
	assert.Contains(t, up.URL, up.Key)

	_, err = f.accounts.UpdatePersonalData(ctx, claims, 1, models.PersonalData{ImageURL: &up.Key})
	require.NoError(t, err)

	link, err := f.accounts.AvatarDownloadURL(ctx, claims)
	require.NoError(t, err)
	assert.Contains(t, link, up.Key)

	f.presigner.err = errors.New("s3 down")
	_, err = f.accounts.AvatarUploadURL(ctx, claims)
	requireReason(t, err, common.ErrorInternal, ReasonInternal)
	assert.Equal(t, "internal error", err.Error())
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, created, err := f.accounts.EnsureAdmin(ctx, "Admin@Example.com", "Administrator", testPassword)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, models.RoleAdmin, a.Role)
	assert.Equal(t, "admin@example.com", a.Email)

	again, created, err := f.accounts.EnsureAdmin(ctx, "admin@example.com", "Administrator", testPassword)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, again)

	_, _, err = f.accounts.EnsureAdmin(ctx, "root@example.com", "Root", "weak")
	requireReason(t, err, common.ErrorValidation, ReasonWeakPassword)
}
