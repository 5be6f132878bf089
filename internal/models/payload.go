package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AlertPayload is the one shape alerts take on the wire, both in REST
// responses and in live broadcasts.
type AlertPayload struct {
	ID               uint       `json:"id"`
	Datetime         time.Time  `json:"datetime"`
	DatetimeAttended *time.Time `json:"datetime_attended"`
	DatetimeClosed   *time.Time `json:"datetime_closed"`
	BeneficiaryID    uint       `json:"beneficiary_id"`
	Telephone        string     `json:"telephone"`
	Latitude         string     `json:"latitude"`
	Longitude        string     `json:"longitude"`
	State            AlertState `json:"state"`
	StateName        string     `json:"state_name"`
	OperatorID       *uint      `json:"operator_id"`
	Observations     string     `json:"observations"`
	TypeID           *uint      `json:"type_id"`
	MessageSID       string     `json:"message_sid"`
	OrganizationID   uint       `json:"organization_id"`
}

// RenderAlert expects alert.Beneficiary to be loaded for the telephone.
func RenderAlert(alert *Alert) AlertPayload {
	p := AlertPayload{
		ID:               alert.ID,
		Datetime:         alert.Datetime.UTC(),
		DatetimeAttended: utcPtr(alert.DatetimeAttended),
		DatetimeClosed:   utcPtr(alert.DatetimeClosed),
		BeneficiaryID:    alert.BeneficiaryID,
		Latitude:         formatCoordinate(alert.Latitude),
		Longitude:        formatCoordinate(alert.Longitude),
		State:            alert.State,
		StateName:        alert.State.Name(),
		OperatorID:       alert.OperatorID,
		Observations:     alert.Observations,
		TypeID:           alert.TypeID,
		OrganizationID:   alert.OrganizationID,
	}
	if alert.Beneficiary != nil {
		p.Telephone = alert.Beneficiary.Telephone
	}
	if alert.MessageSID != nil {
		p.MessageSID = *alert.MessageSID
	}
	return p
}

func RenderAlerts(alerts []Alert) []AlertPayload {
	out := make([]AlertPayload, 0, len(alerts))
	for i := range alerts {
		out = append(out, RenderAlert(&alerts[i]))
	}
	return out
}

// MarshalAlert is the broadcast encoding of RenderAlert.
func MarshalAlert(alert *Alert) ([]byte, error) {
	return json.Marshal(RenderAlert(alert))
}

// decimal(11,8)
func formatCoordinate(v float64) string {
	return fmt.Sprintf("%.8f", v)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
