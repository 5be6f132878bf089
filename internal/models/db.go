package models

import (
	"gorm.io/gorm"
)

// Migrate creates or updates every table the service owns, plus any extra
// models contributed by middleware (the audit log).
func Migrate(db *gorm.DB, extra ...any) error {
	dst := []any{
		&Organization{},
		&User{},
		&BeneficiaryType{},
		&AlertType{},
		&Beneficiary{},
		&Alert{},
	}
	return db.AutoMigrate(append(dst, extra...)...)
}
