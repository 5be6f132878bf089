package models

import (
	"context"
	"strings"
	"time"

	apperrors "AlertDesk/pkg/errors"

	"gorm.io/gorm"
)

// TypeFields is shared by beneficiary and alert types. Codes are unique per
// organization and kind.
type TypeFields struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Code           string    `json:"code" gorm:"size:8;not null;uniqueIndex:,composite:org_code"`
	Description    string    `json:"description" gorm:"size:32;not null"`
	OrganizationID uint      `json:"-" gorm:"index;uniqueIndex:,composite:org_code;not null"`
	CreatedAt      time.Time `json:"-" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"-" gorm:"autoUpdateTime"`
}

type BeneficiaryType struct {
	TypeFields
}

type AlertType struct {
	TypeFields
}

func (t *BeneficiaryType) fields() *TypeFields { return &t.TypeFields }
func (t *AlertType) fields() *TypeFields       { return &t.TypeFields }

// 删除类型前先把引用置空
func (t *BeneficiaryType) detach(tx *gorm.DB) error {
	return tx.Model(&Beneficiary{}).Where("type_id = ?", t.ID).Update("type_id", nil).Error
}

func (t *AlertType) detach(tx *gorm.DB) error {
	return tx.Model(&Alert{}).Where("type_id = ?", t.ID).Update("type_id", nil).Error
}

type taxonomy[T any] interface {
	*T
	fields() *TypeFields
	detach(tx *gorm.DB) error
}

type TypeRequest struct {
	Code        string `json:"code" binding:"required"`
	Description string `json:"description" binding:"required"`
}

type TypeUpdate struct {
	Code        *string `json:"code"`
	Description *string `json:"description"`
}

func validateTypeFields(code, description string) error {
	if code == "" || len(code) > 8 {
		return apperrors.WithKind(apperrors.KindValidation, "code must have between 1 and 8 characters").WithContext("field", "code")
	}
	if description == "" || len(description) > 32 {
		return apperrors.WithKind(apperrors.KindValidation, "description must have between 1 and 32 characters").WithContext("field", "description")
	}
	return nil
}

func codeTaken(code string) error {
	return apperrors.WithKindf(apperrors.KindDuplicateCode, "code %q already exists", code).WithContext("code", code)
}

func ensureCodeFree[T any, P taxonomy[T]](db *gorm.DB, organizationID uint, code string, exceptID uint) error {
	var count int64
	q := db.Model(P(new(T))).Where("organization_id = ? AND code = ?", organizationID, code)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return apperrors.Wrap(err, "check code")
	}
	if count > 0 {
		return codeTaken(code)
	}
	return nil
}

func createType[T any, P taxonomy[T]](ctx context.Context, db *gorm.DB, caller Identity, req TypeRequest) (*T, error) {
	if !caller.IsAdmin() {
		return nil, apperrors.WithKind(apperrors.KindForbidden, "only an administrator can manage types")
	}
	code := strings.TrimSpace(req.Code)
	if err := validateTypeFields(code, req.Description); err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)
	if err := ensureCodeFree[T, P](db, caller.OrganizationID, code, 0); err != nil {
		return nil, err
	}
	t := new(T)
	f := P(t).fields()
	f.Code = code
	f.Description = req.Description
	f.OrganizationID = caller.OrganizationID
	if err := db.Create(t).Error; err != nil {
		return nil, uniqueViolation(err, codeTaken(code), "create type")
	}
	return t, nil
}

func listTypes[T any, P taxonomy[T]](ctx context.Context, db *gorm.DB, caller Identity) ([]T, error) {
	var out []T
	err := db.WithContext(ctx).
		Where("organization_id = ?", caller.OrganizationID).
		Order("code").
		Find(&out).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "list types")
	}
	return out, nil
}

func getType[T any, P taxonomy[T]](ctx context.Context, db *gorm.DB, organizationID, id uint) (*T, error) {
	t := new(T)
	err := db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		First(t, id).Error
	if err != nil {
		return nil, notFound(err, "type")
	}
	return t, nil
}

func updateType[T any, P taxonomy[T]](ctx context.Context, db *gorm.DB, caller Identity, id uint, req TypeUpdate) (*T, error) {
	if !caller.IsAdmin() {
		return nil, apperrors.WithKind(apperrors.KindForbidden, "only an administrator can manage types")
	}
	t, err := getType[T, P](ctx, db, caller.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	f := P(t).fields()
	code, description := f.Code, f.Description
	if req.Code != nil {
		code = strings.TrimSpace(*req.Code)
	}
	if req.Description != nil {
		description = *req.Description
	}
	if err := validateTypeFields(code, description); err != nil {
		return nil, err
	}
	if code != f.Code {
		if err := ensureCodeFree[T, P](db.WithContext(ctx), caller.OrganizationID, code, id); err != nil {
			return nil, err
		}
	}
	err = db.WithContext(ctx).Model(t).Updates(map[string]any{
		"code":        code,
		"description": description,
	}).Error
	if err != nil {
		return nil, uniqueViolation(err, codeTaken(code), "update type")
	}
	f.Code, f.Description = code, description
	return t, nil
}

func deleteType[T any, P taxonomy[T]](ctx context.Context, db *gorm.DB, caller Identity, id uint) error {
	if !caller.IsAdmin() {
		return apperrors.WithKind(apperrors.KindForbidden, "only an administrator can manage types")
	}
	t, err := getType[T, P](ctx, db, caller.OrganizationID, id)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := P(t).detach(tx); err != nil {
			return apperrors.Wrap(err, "detach type")
		}
		if err := tx.Delete(t).Error; err != nil {
			return apperrors.Wrap(err, "delete type")
		}
		return nil
	})
}

func CreateBeneficiaryType(ctx context.Context, db *gorm.DB, caller Identity, req TypeRequest) (*BeneficiaryType, error) {
	return createType[BeneficiaryType](ctx, db, caller, req)
}

func ListBeneficiaryTypes(ctx context.Context, db *gorm.DB, caller Identity) ([]BeneficiaryType, error) {
	return listTypes[BeneficiaryType](ctx, db, caller)
}

func GetBeneficiaryType(ctx context.Context, db *gorm.DB, caller Identity, id uint) (*BeneficiaryType, error) {
	return getType[BeneficiaryType](ctx, db, caller.OrganizationID, id)
}

func UpdateBeneficiaryType(ctx context.Context, db *gorm.DB, caller Identity, id uint, req TypeUpdate) (*BeneficiaryType, error) {
	return updateType[BeneficiaryType](ctx, db, caller, id, req)
}

func DeleteBeneficiaryType(ctx context.Context, db *gorm.DB, caller Identity, id uint) error {
	return deleteType[BeneficiaryType](ctx, db, caller, id)
}

func CreateAlertType(ctx context.Context, db *gorm.DB, caller Identity, req TypeRequest) (*AlertType, error) {
	return createType[AlertType](ctx, db, caller, req)
}

func ListAlertTypes(ctx context.Context, db *gorm.DB, caller Identity) ([]AlertType, error) {
	return listTypes[AlertType](ctx, db, caller)
}

func GetAlertType(ctx context.Context, db *gorm.DB, caller Identity, id uint) (*AlertType, error) {
	return getType[AlertType](ctx, db, caller.OrganizationID, id)
}

func UpdateAlertType(ctx context.Context, db *gorm.DB, caller Identity, id uint, req TypeUpdate) (*AlertType, error) {
	return updateType[AlertType](ctx, db, caller, id, req)
}

func DeleteAlertType(ctx context.Context, db *gorm.DB, caller Identity, id uint) error {
	return deleteType[AlertType](ctx, db, caller, id)
}
