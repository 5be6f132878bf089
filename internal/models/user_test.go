package models

import (
	"context"
	"testing"

	apperrors "AlertDesk/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRootUserCreatesOrganization(t *testing.T) {
	db := setupDB(t)
	admin := createAdmin(t, db)

	assert.Equal(t, RoleAdmin, admin.Role)
	org, err := GetOrganization(context.Background(), db, admin.OrganizationID)
	require.NoError(t, err)
	assert.Equal(t, "CEIoT", org.Name)
	assert.True(t, org.Enabled)
	assert.NotEqual(t, "s3cret-pass", admin.Password)
}

func TestCreateRootUserValidation(t *testing.T) {
	db := setupDB(t)
	admin := createAdmin(t, db)
	ctx := context.Background()

	_, err := CreateRootUser(ctx, db, RegisterRootRequest{
		Email: "x@ceiot.test", Password: "s3cret-pass", Password2: "other-pass", OrganizationName: "Org",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = CreateRootUser(ctx, db, RegisterRootRequest{
		Email: admin.Email, Password: "s3cret-pass", Password2: "s3cret-pass", OrganizationName: "Org",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = CreateRootUser(ctx, db, RegisterRootRequest{
		Email: "y@ceiot.test", Password: "12345678", Password2: "12345678", OrganizationName: "Org",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	var orgs int64
	db.Model(&Organization{}).Count(&orgs)
	assert.Equal(t, int64(1), orgs)
}

func TestCreateOperatorRequiresAdmin(t *testing.T) {
	db := setupDB(t)
	admin := createAdmin(t, db)
	op := createOperator(t, db, admin)

	assert.Equal(t, RoleOperator, op.Role)
	assert.Equal(t, admin.OrganizationID, op.OrganizationID)

	_, err := CreateOperator(context.Background(), db, op.Identity(), RegisterOperatorRequest{
		Email: "z@ceiot.test", Password: "s3cret-pass", Password2: "s3cret-pass", Name: "A", Surname: "B",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
}

func TestAuthenticate(t *testing.T) {
	db := setupDB(t)
	admin := createAdmin(t, db)
	ctx := context.Background()

	user, err := Authenticate(ctx, db, admin.Email, "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, user.ID)
	assert.NotNil(t, user.LastLogin)

	_, err = Authenticate(ctx, db, admin.Email, "wrong-pass")
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))
	_, err = Authenticate(ctx, db, "nobody@ceiot.test", "s3cret-pass")
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))
}

func TestListUsersIsOrganizationScoped(t *testing.T) {
	db := setupDB(t)
	admin := createAdmin(t, db)
	createOperator(t, db, admin)
	other := createAdmin(t, db)

	users, err := ListUsers(context.Background(), db, admin.Identity())
	require.NoError(t, err)
	assert.Len(t, users, 2)

	users, err = ListUsers(context.Background(), db, other.Identity())
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestUpdateUserRules(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	admin := createAdmin(t, db)
	op := createOperator(t, db, admin)
	op2 := createOperator(t, db, admin)
	stranger := createAdmin(t, db)

	name := "Renamed"
	updated, err := UpdateUser(ctx, db, op.Identity(), op.ID, UpdateUserRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	_, err = UpdateUser(ctx, db, op.Identity(), op2.ID, UpdateUserRequest{Name: &name})
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	_, err = UpdateUser(ctx, db, admin.Identity(), op2.ID, UpdateUserRequest{Name: &name})
	assert.NoError(t, err)

	_, err = UpdateUser(ctx, db, stranger.Identity(), op.ID, UpdateUserRequest{Name: &name})
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	password := "n3w-password"
	_, err = UpdateUser(ctx, db, op.Identity(), op.ID, UpdateUserRequest{Password: &password})
	require.NoError(t, err)
	_, err = Authenticate(ctx, db, op.Email, password)
	assert.NoError(t, err)
}
