package models

import (
	"context"
	"strings"
	"time"

	apperrors "AlertDesk/pkg/errors"

	"gorm.io/gorm"
)

// AlertState is stored as a single-letter code.
type AlertState string

const (
	StateNew      AlertState = "N"
	StateAttended AlertState = "A"
	StateClosed   AlertState = "C"
)

var stateNames = map[AlertState]string{
	StateNew:      "New",
	StateAttended: "Attended",
	StateClosed:   "Closed",
}

func (s AlertState) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

func (s AlertState) Name() string {
	return stateNames[s]
}

// ParseAlertState accepts either the code ("A") or the name ("attended").
func ParseAlertState(s string) (AlertState, error) {
	s = strings.TrimSpace(s)
	if st := AlertState(strings.ToUpper(s)); st.Valid() {
		return st, nil
	}
	for code, name := range stateNames {
		if strings.EqualFold(name, s) {
			return code, nil
		}
	}
	return "", apperrors.WithKindf(apperrors.KindValidation, "%q is not a valid state", s).WithContext("field", "state")
}

// Alert 求助警报
type Alert struct {
	ID               uint          `gorm:"primaryKey"`
	MessageSID       *string       `gorm:"column:message_sid;size:34;uniqueIndex"` // 短信服务商的消息ID
	Datetime         time.Time     `gorm:"not null;index"`
	DatetimeAttended *time.Time
	DatetimeClosed   *time.Time
	BeneficiaryID    uint `gorm:"index;not null"`
	Beneficiary      *Beneficiary
	Latitude         float64    `gorm:"type:decimal(11,8);not null"`
	Longitude        float64    `gorm:"type:decimal(11,8);not null"`
	State            AlertState `gorm:"size:1;not null;default:N;index"`
	OperatorID       *uint
	Operator         *User
	Observations     string `gorm:"size:512"`
	TypeID           *uint
	Type             *AlertType
	OrganizationID   uint      `gorm:"index;not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

type AlertFilter struct {
	State         *AlertState
	BeneficiaryID *uint
	TypeID        *uint
}

// GetAlert loads an alert of the caller's organization with its beneficiary.
func GetAlert(ctx context.Context, db *gorm.DB, caller Identity, id uint) (*Alert, error) {
	var alert Alert
	err := db.WithContext(ctx).
		Preload("Beneficiary").
		Where("organization_id = ?", caller.OrganizationID).
		First(&alert, id).Error
	if err != nil {
		return nil, notFound(err, "alert")
	}
	return &alert, nil
}

// ListAlerts 最新的警报在前
func ListAlerts(ctx context.Context, db *gorm.DB, caller Identity, filter AlertFilter) ([]Alert, error) {
	q := db.WithContext(ctx).
		Preload("Beneficiary").
		Where("organization_id = ?", caller.OrganizationID)
	if filter.State != nil {
		q = q.Where("state = ?", *filter.State)
	}
	if filter.BeneficiaryID != nil {
		q = q.Where("beneficiary_id = ?", *filter.BeneficiaryID)
	}
	if filter.TypeID != nil {
		q = q.Where("type_id = ?", *filter.TypeID)
	}
	var alerts []Alert
	if err := q.Order("datetime DESC, id DESC").Find(&alerts).Error; err != nil {
		return nil, apperrors.Wrap(err, "list alerts")
	}
	return alerts, nil
}

// CountAlertsByState returns the number of alerts per organization and state.
func CountAlertsByState(ctx context.Context, db *gorm.DB) (map[uint]map[AlertState]int64, error) {
	var rows []struct {
		OrganizationID uint
		State          AlertState
		Total          int64
	}
	err := db.WithContext(ctx).Model(&Alert{}).
		Select("organization_id, state, COUNT(*) AS total").
		Group("organization_id, state").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "count alerts")
	}
	out := make(map[uint]map[AlertState]int64)
	for _, r := range rows {
		if out[r.OrganizationID] == nil {
			out[r.OrganizationID] = make(map[AlertState]int64)
		}
		out[r.OrganizationID][r.State] = r.Total
	}
	return out, nil
}
