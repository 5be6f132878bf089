package models

import (
	"context"
	"time"

	apperrors "AlertDesk/pkg/errors"

	"gorm.io/gorm"
)

// Organization is the tenant every user, beneficiary and alert belongs to.
type Organization struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:64;not null"`
	Enabled   bool      `json:"enabled" gorm:"not null"`
	CreatedAt time.Time `json:"-" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"-" gorm:"autoUpdateTime"`
}

// GetOrganization 按ID获取组织
func GetOrganization(ctx context.Context, db *gorm.DB, id uint) (*Organization, error) {
	var org Organization
	if err := db.WithContext(ctx).First(&org, id).Error; err != nil {
		return nil, notFound(err, "organization")
	}
	return &org, nil
}

// notFound maps gorm's record-not-found onto the NotFound kind and keeps
// anything else as an internal failure.
func notFound(err error, what string) error {
	if apperrors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.WithKind(apperrors.KindNotFound, what+" not found")
	}
	return apperrors.Wrap(err, "load "+what)
}

// uniqueViolation maps a unique index hit to dup and wraps anything else.
// The pre-insert checks cover the common case; this covers concurrent writers.
func uniqueViolation(err error, dup error, action string) error {
	if apperrors.Is(err, gorm.ErrDuplicatedKey) {
		return dup
	}
	return apperrors.Wrap(err, action)
}
