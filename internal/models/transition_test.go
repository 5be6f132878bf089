package models

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "AlertDesk/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		from AlertState
		to   AlertState
		ok   bool
	}{
		{StateNew, StateAttended, true},
		{StateAttended, StateClosed, true},
		{StateNew, StateClosed, false},
		{StateNew, StateNew, false},
		{StateAttended, StateNew, false},
		{StateClosed, StateNew, false},
		{StateAttended, StateAttended, false},
		{StateClosed, StateClosed, false},
		{StateClosed, StateAttended, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			alert := Alert{ID: 1, State: tc.from}
			if tc.from != StateNew {
				attended := now.Add(-time.Hour)
				op := uint(9)
				alert.DatetimeAttended, alert.OperatorID = &attended, &op
			}
			if tc.from == StateClosed {
				closed := now.Add(-time.Minute)
				alert.DatetimeClosed = &closed
			}

			next, err := Transition(alert, tc.to, 3, now)
			if !tc.ok {
				assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))
				assert.Equal(t, tc.from, next.State)
				assert.Equal(t, alert, next)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.to, next.State)
			assert.NoError(t, next.CheckInvariants())
		})
	}
}

func TestTransitionDoesNotMutateInput(t *testing.T) {
	alert := Alert{ID: 1, State: StateNew}
	next, err := Transition(alert, StateAttended, 4, time.Now())
	require.NoError(t, err)

	assert.Equal(t, StateNew, alert.State)
	assert.Nil(t, alert.DatetimeAttended)
	assert.Nil(t, alert.OperatorID)
	assert.Equal(t, uint(4), *next.OperatorID)
}

func TestTransitionAttendRequiresOperator(t *testing.T) {
	_, err := Transition(Alert{State: StateNew}, StateAttended, 0, time.Now())
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))
}

func TestParseAlertState(t *testing.T) {
	for in, want := range map[string]AlertState{"A": StateAttended, "c": StateClosed, "attended": StateAttended, "New": StateNew} {
		got, err := ParseAlertState(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseAlertState("X")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestAlertRoundTripThroughStateMachine(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	admin := createAdmin(t, db)
	op := createOperator(t, db, admin)
	createBeneficiary(t, db, admin.Identity(), "1154047987", true)
	alert := ingest(t, db, "1154047987")

	attend, closeState := "A", "C"
	attended, err := ApplyAlertUpdate(ctx, db, op.Identity(), alert.ID, AlertUpdate{State: &attend})
	require.NoError(t, err)
	assert.Equal(t, StateAttended, attended.State)
	assert.Equal(t, op.ID, *attended.OperatorID)

	obs := "Ambulancia enviada"
	closed, err := ApplyAlertUpdate(ctx, db, admin.Identity(), alert.ID, AlertUpdate{State: &closeState, Observations: &obs})
	require.NoError(t, err)

	assert.Equal(t, StateClosed, closed.State)
	assert.Equal(t, obs, closed.Observations)
	require.NotNil(t, closed.DatetimeAttended)
	require.NotNil(t, closed.DatetimeClosed)
	assert.False(t, closed.DatetimeAttended.Before(closed.Datetime))
	assert.False(t, closed.DatetimeClosed.Before(*closed.DatetimeAttended))
	assert.Equal(t, op.ID, *closed.OperatorID)
	assert.NoError(t, closed.CheckInvariants())
}

func TestApplyAlertUpdateRejectsReplaysAndSkips(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	admin := createAdmin(t, db)
	createBeneficiary(t, db, admin.Identity(), "1154047987", true)
	alert := ingest(t, db, "1154047987")

	closeState, attend, newState := "C", "A", "N"
	_, err := ApplyAlertUpdate(ctx, db, admin.Identity(), alert.ID, AlertUpdate{State: &closeState})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))
	_, err = ApplyAlertUpdate(ctx, db, admin.Identity(), alert.ID, AlertUpdate{State: &newState})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))

	stored, err := GetAlert(ctx, db, admin.Identity(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, StateNew, stored.State)
	assert.NoError(t, stored.CheckInvariants())

	_, err = ApplyAlertUpdate(ctx, db, admin.Identity(), alert.ID, AlertUpdate{State: &attend})
	require.NoError(t, err)
	_, err = ApplyAlertUpdate(ctx, db, admin.Identity(), alert.ID, AlertUpdate{State: &attend})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))
}

func TestApplyAlertUpdateValidatesBeforeWriting(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	admin := createAdmin(t, db)
	other := createAdmin(t, db)
	createBeneficiary(t, db, admin.Identity(), "1154047987", true)
	alert := ingest(t, db, "1154047987")

	foreign, err := CreateAlertType(ctx, db, other.Identity(), TypeRequest{Code: "VIO", Description: "Violencia"})
	require.NoError(t, err)

	attend := "A"
	_, err = ApplyAlertUpdate(ctx, db, admin.Identity(), alert.ID, AlertUpdate{State: &attend, TypeID: &foreign.ID})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidReference))

	stored, err := GetAlert(ctx, db, admin.Identity(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, StateNew, stored.State)
	assert.Nil(t, stored.TypeID)

	_, err = ApplyAlertUpdate(ctx, db, other.Identity(), alert.ID, AlertUpdate{State: &attend})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestConcurrentAttendOnlyOneWins(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	admin := createAdmin(t, db)
	ops := []*User{createOperator(t, db, admin), createOperator(t, db, admin)}
	createBeneficiary(t, db, admin.Identity(), "1154047987", true)
	alert := ingest(t, db, "1154047987")

	attend := "A"
	var wg sync.WaitGroup
	errs := make([]error, len(ops))
	start := make(chan struct{})
	for i, op := range ops {
		wg.Add(1)
		go func(i int, op *User) {
			defer wg.Done()
			<-start
			_, errs[i] = ApplyAlertUpdate(ctx, db, op.Identity(), alert.ID, AlertUpdate{State: &attend})
		}(i, op)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition), err)
	}
	assert.Equal(t, 1, succeeded)

	stored, err := GetAlert(ctx, db, admin.Identity(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, StateAttended, stored.State)
}
