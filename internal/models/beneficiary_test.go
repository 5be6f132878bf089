package models

import (
	"context"
	"testing"

	apperrors "AlertDesk/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBeneficiaryDefaults(t *testing.T) {
	db := setupDB(t)
	admin := createAdmin(t, db)

	b, err := CreateBeneficiary(context.Background(), db, admin.Identity(), CreateBeneficiaryRequest{
		Name: "John", Surname: "Smith", Telephone: "1154047987",
	})
	require.NoError(t, err)
	assert.True(t, b.Enabled)
	assert.Equal(t, DefaultCompany, b.Company)
	assert.Equal(t, admin.OrganizationID, b.OrganizationID)
}

func TestCreateBeneficiaryRejections(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	admin := createAdmin(t, db)
	other := createAdmin(t, db)
	createBeneficiary(t, db, admin.Identity(), "1154047987", true)

	// 电话号码全局唯一
	_, err := CreateBeneficiary(ctx, db, other.Identity(), CreateBeneficiaryRequest{
		Name: "John", Surname: "Smith", Telephone: "1154047987",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindDuplicatePhoneNumber))

	_, err = CreateBeneficiary(ctx, db, admin.Identity(), CreateBeneficiaryRequest{
		Name: "John", Surname: "Smith", Telephone: "11-5404",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = CreateBeneficiary(ctx, db, admin.Identity(), CreateBeneficiaryRequest{
		Name: "John", Surname: "Smith", Telephone: "1154047988", Company: "XXX",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	missing := uint(5)
	_, err = CreateBeneficiary(ctx, db, admin.Identity(), CreateBeneficiaryRequest{
		Name: "John", Surname: "Smith", Telephone: "1154047988", TypeID: &missing,
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidReference))

	foreign, err := CreateBeneficiaryType(ctx, db, other.Identity(), TypeRequest{Code: "ELD", Description: "Elderly"})
	require.NoError(t, err)
	_, err = CreateBeneficiary(ctx, db, admin.Identity(), CreateBeneficiaryRequest{
		Name: "John", Surname: "Smith", Telephone: "1154047988", TypeID: &foreign.ID,
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidReference))
}

func TestListBeneficiariesFilters(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	admin := createAdmin(t, db)
	other := createAdmin(t, db)
	createBeneficiary(t, db, admin.Identity(), "1154047987", true)
	createBeneficiary(t, db, admin.Identity(), "1154047988", false)
	createBeneficiary(t, db, other.Identity(), "1154047989", true)

	all, err := ListBeneficiaries(ctx, db, admin.Identity(), BeneficiaryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled := true
	only, err := ListBeneficiaries(ctx, db, admin.Identity(), BeneficiaryFilter{Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "1154047987", only[0].Telephone)

	none, err := ListBeneficiaries(ctx, db, admin.Identity(), BeneficiaryFilter{IDs: []uint{}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateAndDisableBeneficiary(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	admin := createAdmin(t, db)
	b := createBeneficiary(t, db, admin.Identity(), "1154047987", true)
	createBeneficiary(t, db, admin.Identity(), "1154047988", true)

	desc := "Cambio de texto de beneficiario"
	updated, err := UpdateBeneficiary(ctx, db, admin.Identity(), b.ID, UpdateBeneficiaryRequest{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)

	taken := "1154047988"
	_, err = UpdateBeneficiary(ctx, db, admin.Identity(), b.ID, UpdateBeneficiaryRequest{Telephone: &taken})
	assert.True(t, apperrors.IsKind(err, apperrors.KindDuplicatePhoneNumber))

	_, err = DisableBeneficiary(ctx, db, admin.Identity(), b.ID)
	require.NoError(t, err)
	stored, err := GetBeneficiary(ctx, db, admin.Identity(), b.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)

	stranger := createAdmin(t, db)
	_, err = GetBeneficiary(ctx, db, stranger.Identity(), b.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}
