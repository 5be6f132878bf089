package models

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "AlertDesk/pkg/errors"
	"AlertDesk/pkg/util"

	"gorm.io/gorm"
)

const SigAlertCreated = "alert.created"

const (
	SourceAPI = "api"
	SourceSMS = "sms"
)

// MapsMarker prefixes the coordinates in an SMS body.
const MapsMarker = "https://maps.google.com/?q="

type IngestRequest struct {
	Telephone      string
	Latitude       float64
	Longitude      float64
	MessageSID     string
	Source         string
	OrganizationID uint // 0 表示不限组织（短信入口）
}

// SMSMessage is what the SMS provider posts to the webhook.
type SMSMessage struct {
	From       string
	Body       string
	MessageSID string
}

func validCoordinates(lat, lng float64) bool {
	for _, v := range []float64{lat, lng} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// ParseMapsLocation extracts "<lat>,<lng>" following MapsMarker. The token
// ends at the first whitespace and must hold exactly two numbers.
func ParseMapsLocation(body string) (lat, lng float64, err error) {
	idx := strings.Index(body, MapsMarker)
	if idx < 0 {
		return 0, 0, apperrors.WithKind(apperrors.KindMalformedLocation, "message has no map location")
	}
	fields := strings.Fields(body[idx+len(MapsMarker):])
	if len(fields) == 0 {
		return 0, 0, apperrors.WithKind(apperrors.KindMalformedLocation, "map location is empty")
	}
	parts := strings.Split(fields[0], ",")
	if len(parts) != 2 {
		return 0, 0, apperrors.WithKindf(apperrors.KindMalformedLocation, "map location %q must have two coordinates", fields[0])
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return 0, 0, apperrors.WithKindf(apperrors.KindMalformedLocation, "invalid latitude %q", parts[0])
	}
	if lng, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return 0, 0, apperrors.WithKindf(apperrors.KindMalformedLocation, "invalid longitude %q", parts[1])
	}
	if !validCoordinates(lat, lng) {
		return 0, 0, apperrors.WithKindf(apperrors.KindMalformedLocation, "coordinates out of range: %s", fields[0])
	}
	return lat, lng, nil
}

func findBySID(ctx context.Context, db *gorm.DB, sid string) (*Alert, error) {
	var alert Alert
	err := db.WithContext(ctx).Preload("Beneficiary").Where("message_sid = ?", sid).First(&alert).Error
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// replayedAlert returns the alert already stored under sid, or nil when the
// sid is new. A sid recorded for another beneficiary is rejected so a replay
// never exposes an alert outside the sender's organization.
func replayedAlert(ctx context.Context, db *gorm.DB, sid string, b *Beneficiary) (*Alert, error) {
	existing, err := findBySID(ctx, db, sid)
	if apperrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		e := apperrors.WithKind(apperrors.KindValidation, "message_sid could not be checked").WithContext("field", "message_sid")
		e.Err = err
		return nil, e
	}
	if existing.BeneficiaryID != b.ID {
		return nil, apperrors.WithKind(apperrors.KindValidation, "message_sid was already used by another sender").WithContext("field", "message_sid")
	}
	return existing, nil
}

// IngestAlert creates a New alert for the enabled beneficiary owning the
// telephone. A request repeating a known MessageSID from the same
// beneficiary returns the stored alert with created == false and publishes
// nothing. A non-zero OrganizationID restricts the lookup to that
// organization.
func IngestAlert(ctx context.Context, db *gorm.DB, req IngestRequest) (alert *Alert, created bool, err error) {
	if err := validateTelephone(req.Telephone); err != nil {
		return nil, false, err
	}
	if !validCoordinates(req.Latitude, req.Longitude) {
		return nil, false, apperrors.WithKind(apperrors.KindValidation, "coordinates out of range").WithContext("field", "latitude")
	}
	if len(req.MessageSID) > 34 {
		return nil, false, apperrors.WithKind(apperrors.KindValidation, "message_sid is too long").WithContext("field", "message_sid")
	}

	// 先确定受益人，再判断重放
	beneficiary, err := FindEnabledBeneficiary(ctx, db, req.Telephone)
	if err != nil {
		return nil, false, err
	}
	if req.OrganizationID != 0 && beneficiary.OrganizationID != req.OrganizationID {
		return nil, false, apperrors.WithKind(apperrors.KindUnknownOrBeneficiaryDisabled, "beneficiary does not exist or is disabled").WithContext("telephone", req.Telephone)
	}
	if req.MessageSID != "" {
		existing, err := replayedAlert(ctx, db, req.MessageSID, beneficiary)
		if err != nil || existing != nil {
			return existing, false, err
		}
	}

	alert = &Alert{
		Datetime:       time.Now(),
		BeneficiaryID:  beneficiary.ID,
		Beneficiary:    beneficiary,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		State:          StateNew,
		OrganizationID: beneficiary.OrganizationID,
	}
	if req.MessageSID != "" {
		sid := req.MessageSID
		alert.MessageSID = &sid
	}
	if err := db.WithContext(ctx).Omit("Beneficiary", "Operator", "Type").Create(alert).Error; err != nil {
		// 并发重试的短信可能同时到达，唯一索引兜底
		if alert.MessageSID != nil && apperrors.Is(err, gorm.ErrDuplicatedKey) {
			existing, lookupErr := replayedAlert(ctx, db, *alert.MessageSID, beneficiary)
			if lookupErr != nil || existing != nil {
				return existing, false, lookupErr
			}
		}
		return nil, false, apperrors.Wrap(err, "create alert")
	}

	util.Sig().Emit(SigAlertCreated, alert, req.Source)
	return alert, true, nil
}

// IngestSMS parses a provider message and hands it to IngestAlert.
func IngestSMS(ctx context.Context, db *gorm.DB, msg SMSMessage) (*Alert, bool, error) {
	phone := util.DigitsOnly(msg.From)
	if phone == "" {
		return nil, false, apperrors.WithKind(apperrors.KindValidation, "sender telephone is missing").WithContext("field", "From")
	}
	lat, lng, err := ParseMapsLocation(msg.Body)
	if err != nil {
		return nil, false, err
	}
	return IngestAlert(ctx, db, IngestRequest{
		Telephone:  phone,
		Latitude:   lat,
		Longitude:  lng,
		MessageSID: strings.TrimSpace(msg.MessageSID),
		Source:     SourceSMS,
	})
}
