package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithKindCarriesStatus(t *testing.T) {
	err := WithKind(KindInvalidTransition, "alert is already attended")
	assert.Equal(t, KindInvalidTransition, err.Kind)
	assert.Equal(t, http.StatusBadRequest, err.Code)
	assert.Equal(t, "alert is already attended", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := WithKind(KindMalformedLocation, "no maps marker")
	wrapped := fmt.Errorf("sms inbound: %w", Wrap(inner, "parse body"))

	assert.Equal(t, KindMalformedLocation, KindOf(wrapped))
	assert.True(t, Is(wrapped, ErrMalformedLocation))
	assert.False(t, Is(wrapped, ErrInvalidTransition))
	assert.Equal(t, http.StatusBadRequest, StatusOf(wrapped))
}

func TestUnclassifiedErrors(t *testing.T) {
	err := fmt.Errorf("boom")
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestWithContextDoesNotMutate(t *testing.T) {
	base := WithKind(KindDuplicateCode, "code taken")
	withCode := base.WithContext("code", "VIO")

	assert.Empty(t, base.Context)
	assert.Equal(t, "VIO", withCode.ContextValue("code"))
	assert.Equal(t, KindDuplicateCode, withCode.Kind)
}
