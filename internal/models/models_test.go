package models

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"

	"AlertDesk/pkg/util"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var seq atomic.Int64

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := util.InitDatabase(io.Discard, util.DriverSQLite, filepath.Join(t.TempDir(), "alertdesk.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// createAdmin registers a root user and its organization.
func createAdmin(t *testing.T, db *gorm.DB) *User {
	t.Helper()
	n := seq.Add(1)
	user, err := CreateRootUser(context.Background(), db, RegisterRootRequest{
		Email:            fmt.Sprintf("admin%d@ceiot.test", n),
		Password:         "s3cret-pass",
		Password2:        "s3cret-pass",
		Name:             "John",
		Surname:          "Smith",
		OrganizationName: "CEIoT",
	})
	require.NoError(t, err)
	return user
}

func createOperator(t *testing.T, db *gorm.DB, admin *User) *User {
	t.Helper()
	n := seq.Add(1)
	user, err := CreateOperator(context.Background(), db, admin.Identity(), RegisterOperatorRequest{
		Email:     fmt.Sprintf("operator%d@ceiot.test", n),
		Password:  "s3cret-pass",
		Password2: "s3cret-pass",
		Name:      "Jane",
		Surname:   "Doe",
	})
	require.NoError(t, err)
	return user
}

func createBeneficiary(t *testing.T, db *gorm.DB, caller Identity, phone string, enabled bool) *Beneficiary {
	t.Helper()
	b, err := CreateBeneficiary(context.Background(), db, caller, CreateBeneficiaryRequest{
		Name:        "John",
		Surname:     "Smith",
		Telephone:   phone,
		Company:     "CLA",
		Enabled:     &enabled,
		Description: "Prueba de beneficiario",
	})
	require.NoError(t, err)
	return b
}

func ingest(t *testing.T, db *gorm.DB, phone string) *Alert {
	t.Helper()
	alert, created, err := IngestAlert(context.Background(), db, IngestRequest{
		Telephone: phone,
		Latitude:  -34.75,
		Longitude: -58.29,
		Source:    SourceAPI,
	})
	require.NoError(t, err)
	require.True(t, created)
	return alert
}
