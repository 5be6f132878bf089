package models

import (
	"context"
	"time"

	apperrors "AlertDesk/pkg/errors"

	"gorm.io/gorm"
)

// AlertUpdate is the body of PATCH /alerts/:id. Every field is optional; a
// type_id of 0 clears the type.
type AlertUpdate struct {
	State        *string `json:"state"`
	Observations *string `json:"observations"`
	TypeID       *uint   `json:"type_id"`
}

func invalidTransition(from, to AlertState) error {
	return apperrors.WithKindf(apperrors.KindInvalidTransition, "cannot change state from %s to %s", from.Name(), to.Name()).
		WithContext("from", string(from)).
		WithContext("to", string(to))
}

// Transition validates a state change and returns the updated copy. The
// argument is never modified; on error it is returned as received.
//
//	N -> A  requires an operator, stamps datetime_attended
//	A -> C  stamps datetime_closed
//
// Everything else, including any move to N and no-op moves, is rejected.
func Transition(alert Alert, to AlertState, operatorID uint, now time.Time) (Alert, error) {
	if !to.Valid() {
		return alert, apperrors.WithKindf(apperrors.KindValidation, "%q is not a valid state", string(to)).WithContext("field", "state")
	}
	switch {
	case alert.State == StateNew && to == StateAttended:
		if operatorID == 0 {
			return alert, apperrors.WithKind(apperrors.KindInvalidTransition, "an operator is required to attend an alert")
		}
		attended := now
		operator := operatorID
		alert.DatetimeAttended = &attended
		alert.OperatorID = &operator
	case alert.State == StateAttended && to == StateClosed:
		closed := now
		alert.DatetimeClosed = &closed
	default:
		return alert, invalidTransition(alert.State, to)
	}
	alert.State = to
	return alert, nil
}

// CheckInvariants reports whether the timestamps and operator agree with the state.
func (a *Alert) CheckInvariants() error {
	ok := true
	switch a.State {
	case StateNew:
		ok = a.DatetimeAttended == nil && a.DatetimeClosed == nil && a.OperatorID == nil
	case StateAttended:
		ok = a.DatetimeAttended != nil && a.OperatorID != nil && a.DatetimeClosed == nil
	case StateClosed:
		ok = a.DatetimeAttended != nil && a.DatetimeClosed != nil
	default:
		ok = false
	}
	if !ok {
		return apperrors.Errorf("alert %d violates the %s state invariants", a.ID, a.State.Name())
	}
	return nil
}

// ApplyAlertUpdate runs the state machine and the plain field updates of one
// request, then persists them with a conditional update on the state that
// was read. If another request changed the state in between, no row matches
// and the caller gets InvalidTransition.
func ApplyAlertUpdate(ctx context.Context, db *gorm.DB, caller Identity, id uint, upd AlertUpdate) (*Alert, error) {
	current, err := GetAlert(ctx, db, caller, id)
	if err != nil {
		return nil, err
	}

	// 先校验，全部通过后再赋值
	if upd.Observations != nil {
		if err := checkLen("observations", *upd.Observations, 0, 512); err != nil {
			return nil, err
		}
	}
	if upd.TypeID != nil && *upd.TypeID != 0 {
		if _, err := getType[AlertType](ctx, db, current.OrganizationID, *upd.TypeID); err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				return nil, apperrors.WithKind(apperrors.KindInvalidReference, "invalid alert type").WithContext("field", "type_id")
			}
			return nil, err
		}
	}

	next := *current
	if upd.State != nil {
		to, err := ParseAlertState(*upd.State)
		if err != nil {
			return nil, err
		}
		if next, err = Transition(*current, to, caller.UserID, time.Now()); err != nil {
			return nil, err
		}
	}

	vals := map[string]any{"updated_at": time.Now()}
	if next.State != current.State {
		vals["state"] = next.State
		vals["datetime_attended"] = next.DatetimeAttended
		vals["datetime_closed"] = next.DatetimeClosed
		vals["operator_id"] = next.OperatorID
	}
	if upd.Observations != nil {
		vals["observations"] = *upd.Observations
	}
	if upd.TypeID != nil {
		if *upd.TypeID == 0 {
			vals["type_id"] = nil
		} else {
			vals["type_id"] = *upd.TypeID
		}
	}

	res := db.WithContext(ctx).Model(&Alert{}).
		Where("id = ? AND state = ?", current.ID, current.State).
		Updates(vals)
	if res.Error != nil {
		return nil, apperrors.Wrap(res.Error, "update alert")
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.WithKind(apperrors.KindInvalidTransition, "alert was modified by another request").
			WithContext("from", string(current.State))
	}
	return GetAlert(ctx, db, caller, id)
}
