package models

import (
	"context"
	"encoding/json"
	"testing"

	apperrors "AlertDesk/pkg/errors"
	"AlertDesk/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMapsLocation(t *testing.T) {
	lat, lng, err := ParseMapsLocation("https://maps.google.com/?q=-34.75,-58.29")
	require.NoError(t, err)
	assert.Equal(t, -34.75, lat)
	assert.Equal(t, -58.29, lng)

	lat, lng, err = ParseMapsLocation("AYUDA! estoy en https://maps.google.com/?q=-34.6037,-58.3816 por favor")
	require.NoError(t, err)
	assert.Equal(t, -34.6037, lat)
	assert.Equal(t, -58.3816, lng)

	for _, body := range []string{
		"help me",
		"https://maps.google.com/?q=",
		"https://maps.google.com/?q=-34.75",
		"https://maps.google.com/?q=-34.75,-58.29,10",
		"https://maps.google.com/?q=abc,-58.29",
		"https://maps.google.com/?q=-34.75,xyz",
		"https://maps.google.com/?q=-134.75,-58.29",
		"https://maps.google.com/?q=NaN,1",
	} {
		_, _, err := ParseMapsLocation(body)
		assert.True(t, apperrors.IsKind(err, apperrors.KindMalformedLocation), body)
	}
}

func TestIngestAlertDisabledBeneficiary(t *testing.T) {
	db := setupDB(t)
	admin := createAdmin(t, db)
	createBeneficiary(t, db, admin.Identity(), "1154047987", false)

	_, _, err := IngestAlert(context.Background(), db, IngestRequest{Telephone: "1154047987", Latitude: -34.75, Longitude: -58.29})
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnknownOrBeneficiaryDisabled))

	_, _, err = IngestAlert(context.Background(), db, IngestRequest{Telephone: "1100000000", Latitude: -34.75, Longitude: -58.29})
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnknownOrBeneficiaryDisabled))

	var count int64
	require.NoError(t, db.Model(&Alert{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIngestAlertCopiesOrganizationAndSignals(t *testing.T) {
	db := setupDB(t)
	admin := createAdmin(t, db)
	b := createBeneficiary(t, db, admin.Identity(), "1154047987", true)

	var got []*Alert
	util.Sig().Connect(SigAlertCreated, func(sender any, params ...any) {
		got = append(got, sender.(*Alert))
	})
	t.Cleanup(func() { util.Sig().Disconnect(SigAlertCreated) })

	alert := ingest(t, db, "1154047987")
	assert.Equal(t, StateNew, alert.State)
	assert.Equal(t, b.OrganizationID, alert.OrganizationID)
	assert.Equal(t, b.ID, alert.BeneficiaryID)
	assert.NoError(t, alert.CheckInvariants())
	require.Len(t, got, 1)
	assert.Equal(t, alert.ID, got[0].ID)
}

func TestIngestSMSDeduplicatesMessageSid(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	admin := createAdmin(t, db)
	createBeneficiary(t, db, admin.Identity(), "1154047987", true)

	signals := 0
	util.Sig().Connect(SigAlertCreated, func(sender any, params ...any) { signals++ })
	t.Cleanup(func() { util.Sig().Disconnect(SigAlertCreated) })

	msg := SMSMessage{
		From:       "+1154047987",
		Body:       "https://maps.google.com/?q=-34.75,-58.29",
		MessageSID: "SM0123456789abcdef0123456789abcdef",
	}
	first, created, err := IngestSMS(ctx, db, msg)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, first.MessageSID)

	again, created, err := IngestSMS(ctx, db, msg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, signals)

	_, _, err = IngestSMS(ctx, db, SMSMessage{From: "1154047987", Body: "sin ubicacion"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindMalformedLocation))
}

func TestRenderAlertShape(t *testing.T) {
	db := setupDB(t)
	admin := createAdmin(t, db)
	createBeneficiary(t, db, admin.Identity(), "1154047987", true)
	alert := ingest(t, db, "1154047987")

	stored, err := GetAlert(context.Background(), db, admin.Identity(), alert.ID)
	require.NoError(t, err)

	raw, err := MarshalAlert(stored)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	assert.Equal(t, "1154047987", m["telephone"])
	assert.Equal(t, "-34.75000000", m["latitude"])
	assert.Equal(t, "-58.29000000", m["longitude"])
	assert.Equal(t, "N", m["state"])
	assert.Equal(t, "New", m["state_name"])
	assert.Nil(t, m["datetime_attended"])
	assert.Nil(t, m["operator_id"])
	assert.Equal(t, float64(admin.OrganizationID), m["organization_id"])
}

func TestMessageSidIsStoredAndReloaded(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	admin := createAdmin(t, db)
	createBeneficiary(t, db, admin.Identity(), "1154047987", true)

	columns, err := db.Migrator().ColumnTypes(&Alert{})
	require.NoError(t, err)
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "message_sid")

	alert, created, err := IngestAlert(ctx, db, IngestRequest{
		Telephone: "1154047987", Latitude: -34.75, Longitude: -58.29, MessageSID: "SMroundtrip",
	})
	require.NoError(t, err)
	require.True(t, created)

	stored, err := GetAlert(ctx, db, admin.Identity(), alert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.MessageSID)
	assert.Equal(t, "SMroundtrip", *stored.MessageSID)
}

func TestMessageSidDoesNotCrossOrganizations(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	orgA := createAdmin(t, db)
	orgB := createAdmin(t, db)
	createBeneficiary(t, db, orgA.Identity(), "1111111111", true)
	createBeneficiary(t, db, orgB.Identity(), "2222222222", true)

	first, created, err := IngestAlert(ctx, db, IngestRequest{
		Telephone: "1111111111", Latitude: 1, Longitude: 1, MessageSID: "SMabc",
	})
	require.NoError(t, err)
	require.True(t, created)

	// 另一个组织的受益人重用同一个 sid
	got, created, err := IngestAlert(ctx, db, IngestRequest{
		Telephone: "2222222222", Latitude: 1, Longitude: 1, MessageSID: "SMabc",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.False(t, created)
	assert.Nil(t, got)

	// API callers only reach beneficiaries of their own organization
	got, _, err = IngestAlert(ctx, db, IngestRequest{
		Telephone: "1111111111", Latitude: 1, Longitude: 1, MessageSID: "SMabc",
		OrganizationID: orgB.OrganizationID,
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnknownOrBeneficiaryDisabled))
	assert.Nil(t, got)

	again, created, err := IngestAlert(ctx, db, IngestRequest{
		Telephone: "1111111111", Latitude: 1, Longitude: 1, MessageSID: "SMabc",
		OrganizationID: orgA.OrganizationID,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&Alert{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMessageSidReplayAfterDisable(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	admin := createAdmin(t, db)
	b := createBeneficiary(t, db, admin.Identity(), "1154047987", true)

	msg := SMSMessage{From: "1154047987", Body: "https://maps.google.com/?q=1,2", MessageSID: "SMdisabled"}
	_, created, err := IngestSMS(ctx, db, msg)
	require.NoError(t, err)
	require.True(t, created)

	_, err = DisableBeneficiary(ctx, db, admin.Identity(), b.ID)
	require.NoError(t, err)

	got, created, err := IngestSMS(ctx, db, msg)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnknownOrBeneficiaryDisabled))
	assert.False(t, created)
	assert.Nil(t, got)
}
