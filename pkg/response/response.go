package response

import (
	"net/http"

	constants "AlertDesk/pkg/constant"
	apperrors "AlertDesk/pkg/errors"
	"AlertDesk/pkg/i18n"

	"github.com/gin-gonic/gin"
)

// Body is the envelope every JSON endpoint answers with.
type Body struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Data   any    `json:"data,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

var translator *i18n.I18nSupport

// SetTranslator installs the localizer used for error messages.
func SetTranslator(t *i18n.I18nSupport) { translator = t }

func Success(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, Body{Code: http.StatusOK, Msg: msg, Data: data})
}

func Created(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusCreated, Body{Code: http.StatusCreated, Msg: msg, Data: data})
}

// Fail answers 400 with a plain message.
func Fail(c *gin.Context, msg string, data any) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Body{Code: http.StatusBadRequest, Msg: msg, Data: data})
}

// AbortWithStatus answers an arbitrary status with a plain message.
func AbortWithStatus(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Body{Code: status, Msg: msg})
}

// Error renders err using its kind: status from the kind table and a
// message localized by kind when a translation exists.
func Error(c *gin.Context, err error) {
	status := apperrors.StatusOf(err)
	kind := apperrors.KindOf(err)
	body := Body{Code: status, Msg: apperrors.GetMessage(err), Kind: string(kind)}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		body.Msg = "internal error"
	} else if kind != apperrors.KindUnknown && translator != nil {
		if t, ok := translator.Lookup(c.GetString(constants.LangField), string(kind), nil); ok {
			body.Detail = body.Msg
			body.Msg = t
		}
	}
	c.AbortWithStatusJSON(status, body)
}
