package models

import (
	"context"
	"strings"
	"time"

	apperrors "AlertDesk/pkg/errors"
	"AlertDesk/pkg/util"

	"gorm.io/gorm"
)

const SigBeneficiarySaved = "beneficiary.saved"

// Carrier codes accepted for Beneficiary.Company.
var Companies = map[string]string{
	"CLA": "Claro",
	"PER": "Personal",
	"MOV": "Movistar",
	"TUE": "Tuenti",
	"OTH": "Other",
}

const DefaultCompany = "OTH"

// Beneficiary is a person who may raise alerts. Telephone numbers are
// unique across all organizations since SMS ingestion resolves by phone alone.
type Beneficiary struct {
	ID             uint             `json:"id" gorm:"primaryKey"`
	Name           string           `json:"name" gorm:"size:64;not null"`
	Surname        string           `json:"surname" gorm:"size:64;not null"`
	Telephone      string           `json:"telephone" gorm:"size:32;uniqueIndex;not null"`
	Company        string           `json:"company" gorm:"size:3"`
	Enabled        bool             `json:"enabled" gorm:"not null;index"`
	Description    string           `json:"description" gorm:"size:512"`
	TypeID         *uint            `json:"type_id"`
	Type           *BeneficiaryType `json:"-"`
	OrganizationID uint             `json:"-" gorm:"index;not null"`
	CreatedAt      time.Time        `json:"-" gorm:"autoCreateTime"`
	UpdatedAt      time.Time        `json:"-" gorm:"autoUpdateTime"`
}

type CreateBeneficiaryRequest struct {
	Name        string `json:"name" binding:"required"`
	Surname     string `json:"surname" binding:"required"`
	Telephone   string `json:"telephone" binding:"required"`
	Company     string `json:"company"`
	Enabled     *bool  `json:"enabled"`
	Description string `json:"description"`
	TypeID      *uint  `json:"type_id"`
}

// UpdateBeneficiaryRequest is a partial update. A type_id of 0 clears the type.
type UpdateBeneficiaryRequest struct {
	Name        *string `json:"name"`
	Surname     *string `json:"surname"`
	Telephone   *string `json:"telephone"`
	Company     *string `json:"company"`
	Enabled     *bool   `json:"enabled"`
	Description *string `json:"description"`
	TypeID      *uint   `json:"type_id"`
}

type BeneficiaryFilter struct {
	Enabled   *bool
	Telephone string
	TypeID    *uint
	// Query is matched with LIKE when no search index is available.
	Query string
	// IDs restricts the result to a prior search hit list when non-nil.
	IDs []uint
}

func checkLen(field, value string, min, max int) error {
	if n := len([]rune(value)); n < min || n > max {
		return apperrors.WithKindf(apperrors.KindValidation, "%s must have between %d and %d characters", field, min, max).WithContext("field", field)
	}
	return nil
}

func validateTelephone(phone string) error {
	if err := checkLen("telephone", phone, 1, 32); err != nil {
		return err
	}
	if !util.IsDigits(phone) {
		return apperrors.WithKind(apperrors.KindValidation, "only digits are allowed").WithContext("field", "telephone")
	}
	return nil
}

func validateCompany(company string) error {
	if _, ok := Companies[company]; !ok {
		return apperrors.WithKindf(apperrors.KindValidation, "%q is not a valid choice", company).WithContext("field", "company")
	}
	return nil
}

func ensurePhoneFree(db *gorm.DB, phone string, exceptID uint) error {
	var count int64
	q := db.Model(&Beneficiary{}).Where("telephone = ?", phone)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return apperrors.Wrap(err, "check telephone")
	}
	if count > 0 {
		return phoneTaken(phone)
	}
	return nil
}

func phoneTaken(phone string) error {
	return apperrors.WithKind(apperrors.KindDuplicatePhoneNumber, "telephone is already used by another beneficiary").WithContext("telephone", phone)
}

func ensureBeneficiaryType(db *gorm.DB, organizationID, typeID uint) error {
	var count int64
	err := db.Model(&BeneficiaryType{}).
		Where("id = ? AND organization_id = ?", typeID, organizationID).
		Count(&count).Error
	if err != nil {
		return apperrors.Wrap(err, "check beneficiary type")
	}
	if count == 0 {
		return apperrors.WithKind(apperrors.KindInvalidReference, "invalid beneficiary type").WithContext("field", "type_id")
	}
	return nil
}

// CreateBeneficiary 创建受益人
func CreateBeneficiary(ctx context.Context, db *gorm.DB, caller Identity, req CreateBeneficiaryRequest) (*Beneficiary, error) {
	b := &Beneficiary{
		Name:           strings.TrimSpace(req.Name),
		Surname:        strings.TrimSpace(req.Surname),
		Telephone:      strings.TrimSpace(req.Telephone),
		Company:        req.Company,
		Enabled:        true,
		Description:    req.Description,
		OrganizationID: caller.OrganizationID,
	}
	if b.Company == "" {
		b.Company = DefaultCompany
	}
	if req.Enabled != nil {
		b.Enabled = *req.Enabled
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	db = db.WithContext(ctx)
	if err := ensurePhoneFree(db, b.Telephone, 0); err != nil {
		return nil, err
	}
	if req.TypeID != nil {
		if err := ensureBeneficiaryType(db, caller.OrganizationID, *req.TypeID); err != nil {
			return nil, err
		}
		b.TypeID = req.TypeID
	}
	if err := db.Create(b).Error; err != nil {
		return nil, uniqueViolation(err, phoneTaken(b.Telephone), "create beneficiary")
	}
	util.Sig().Emit(SigBeneficiarySaved, b)
	return b, nil
}

func (b *Beneficiary) validate() error {
	if err := checkLen("name", b.Name, 1, 64); err != nil {
		return err
	}
	if err := checkLen("surname", b.Surname, 1, 64); err != nil {
		return err
	}
	if err := validateTelephone(b.Telephone); err != nil {
		return err
	}
	if err := validateCompany(b.Company); err != nil {
		return err
	}
	return checkLen("description", b.Description, 0, 512)
}

// GetBeneficiary loads a beneficiary of the caller's organization.
func GetBeneficiary(ctx context.Context, db *gorm.DB, caller Identity, id uint) (*Beneficiary, error) {
	var b Beneficiary
	err := db.WithContext(ctx).
		Where("organization_id = ?", caller.OrganizationID).
		First(&b, id).Error
	if err != nil {
		return nil, notFound(err, "beneficiary")
	}
	return &b, nil
}

func ListBeneficiaries(ctx context.Context, db *gorm.DB, caller Identity, filter BeneficiaryFilter) ([]Beneficiary, error) {
	q := db.WithContext(ctx).Where("organization_id = ?", caller.OrganizationID)
	if filter.Enabled != nil {
		q = q.Where("enabled = ?", *filter.Enabled)
	}
	if filter.Telephone != "" {
		q = q.Where("telephone = ?", filter.Telephone)
	}
	if filter.TypeID != nil {
		q = q.Where("type_id = ?", *filter.TypeID)
	}
	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		q = q.Where("name LIKE ? OR surname LIKE ? OR telephone LIKE ? OR description LIKE ?", like, like, like, like)
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return []Beneficiary{}, nil
		}
		q = q.Where("id IN ?", filter.IDs)
	}
	var out []Beneficiary
	if err := q.Order("id").Find(&out).Error; err != nil {
		return nil, apperrors.Wrap(err, "list beneficiaries")
	}
	return out, nil
}

func UpdateBeneficiary(ctx context.Context, db *gorm.DB, caller Identity, id uint, req UpdateBeneficiaryRequest) (*Beneficiary, error) {
	b, err := GetBeneficiary(ctx, db, caller, id)
	if err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)

	vals := map[string]any{}
	if req.Name != nil {
		b.Name = strings.TrimSpace(*req.Name)
		vals["name"] = b.Name
	}
	if req.Surname != nil {
		b.Surname = strings.TrimSpace(*req.Surname)
		vals["surname"] = b.Surname
	}
	if req.Telephone != nil {
		b.Telephone = strings.TrimSpace(*req.Telephone)
		vals["telephone"] = b.Telephone
	}
	if req.Company != nil {
		b.Company = *req.Company
		vals["company"] = b.Company
	}
	if req.Enabled != nil {
		b.Enabled = *req.Enabled
		vals["enabled"] = b.Enabled
	}
	if req.Description != nil {
		b.Description = *req.Description
		vals["description"] = b.Description
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	if req.Telephone != nil {
		if err := ensurePhoneFree(db, b.Telephone, b.ID); err != nil {
			return nil, err
		}
	}
	if req.TypeID != nil {
		if *req.TypeID == 0 {
			b.TypeID = nil
			vals["type_id"] = nil
		} else {
			if err := ensureBeneficiaryType(db, caller.OrganizationID, *req.TypeID); err != nil {
				return nil, err
			}
			b.TypeID = req.TypeID
			vals["type_id"] = *req.TypeID
		}
	}
	if len(vals) == 0 {
		return b, nil
	}
	if err := db.Model(&Beneficiary{}).Where("id = ?", b.ID).Updates(vals).Error; err != nil {
		return nil, uniqueViolation(err, phoneTaken(b.Telephone), "update beneficiary")
	}
	util.Sig().Emit(SigBeneficiarySaved, b)
	return b, nil
}

// DisableBeneficiary is the logical delete: the row stays so alerts keep
// their reference, but SMS and API ingestion stop resolving it.
func DisableBeneficiary(ctx context.Context, db *gorm.DB, caller Identity, id uint) (*Beneficiary, error) {
	disabled := false
	return UpdateBeneficiary(ctx, db, caller, id, UpdateBeneficiaryRequest{Enabled: &disabled})
}

// FindEnabledBeneficiary resolves the beneficiary an incoming alert belongs to.
func FindEnabledBeneficiary(ctx context.Context, db *gorm.DB, telephone string) (*Beneficiary, error) {
	var b Beneficiary
	err := db.WithContext(ctx).
		Where("telephone = ? AND enabled = ?", telephone, true).
		First(&b).Error
	if err != nil {
		if apperrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithKind(apperrors.KindUnknownOrBeneficiaryDisabled, "beneficiary does not exist or is disabled").WithContext("telephone", telephone)
		}
		return nil, apperrors.Wrap(err, "find beneficiary")
	}
	return &b, nil
}
