package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Kind classifies a domain failure so the transport layer can map it to a response.
type Kind string

const (
	KindUnknown                      Kind = ""
	KindInvalidTransition            Kind = "InvalidTransition"
	KindInvalidReference             Kind = "InvalidReference"
	KindUnknownOrBeneficiaryDisabled Kind = "UnknownOrBeneficiaryDisabled"
	KindMalformedLocation            Kind = "MalformedLocation"
	KindDuplicatePhoneNumber         Kind = "DuplicatePhoneNumber"
	KindDuplicateCode                Kind = "DuplicateCode"
	KindAdmissionRejected            Kind = "AdmissionRejected"
	KindValidation                   Kind = "Validation"
	KindNotFound                     Kind = "NotFound"
	KindUnauthorized                 Kind = "Unauthorized"
	KindForbidden                    Kind = "Forbidden"
)

// kindStatus 错误类型到 HTTP 状态码
var kindStatus = map[Kind]int{
	KindInvalidTransition:            http.StatusBadRequest,
	KindInvalidReference:             http.StatusBadRequest,
	KindUnknownOrBeneficiaryDisabled: http.StatusBadRequest,
	KindMalformedLocation:            http.StatusBadRequest,
	KindDuplicatePhoneNumber:         http.StatusBadRequest,
	KindDuplicateCode:                http.StatusBadRequest,
	KindValidation:                   http.StatusBadRequest,
	KindAdmissionRejected:            http.StatusForbidden,
	KindForbidden:                    http.StatusForbidden,
	KindUnauthorized:                 http.StatusUnauthorized,
	KindNotFound:                     http.StatusNotFound,
}

// Error represents a custom error with stack trace
type Error struct {
	Kind    Kind       `json:"kind,omitempty"`
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Err     error      `json:"-"` // 原始错误，不序列化
	Stack   string     `json:"stack,omitempty"`
	Context []KeyValue `json:"context,omitempty"`
}

// KeyValue represents a key-value pair for context
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Kind != KindUnknown {
		return string(e.Kind)
	}
	return "unknown error"
}

// Unwrap implements the errors.Wrapper interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Kind == KindUnknown {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels usable with errors.Is.
var (
	ErrInvalidTransition            = &Error{Kind: KindInvalidTransition}
	ErrInvalidReference             = &Error{Kind: KindInvalidReference}
	ErrUnknownOrBeneficiaryDisabled = &Error{Kind: KindUnknownOrBeneficiaryDisabled}
	ErrMalformedLocation            = &Error{Kind: KindMalformedLocation}
	ErrDuplicatePhoneNumber         = &Error{Kind: KindDuplicatePhoneNumber}
	ErrDuplicateCode                = &Error{Kind: KindDuplicateCode}
	ErrAdmissionRejected            = &Error{Kind: KindAdmissionRejected}
	ErrNotFound                     = &Error{Kind: KindNotFound}
)

// WithKind creates a new classified error
func WithKind(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    kindStatus[kind],
		Message: message,
		Stack:   captureStack(),
	}
}

// WithKindf creates a new classified error with formatted message
func WithKindf(kind Kind, format string, args ...interface{}) *Error {
	return WithKind(kind, fmt.Sprintf(format, args...))
}

// WithCode creates a new error with code
func WithCode(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(),
	}
}

// Wrap wraps an error with message
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}

	e := &Error{
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
	// 保留内层错误的分类
	if kind := KindOf(err); kind != KindUnknown {
		e.Kind = kind
		e.Code = kindStatus[kind]
	}
	return e
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// New creates a new error
func New(message string) *Error {
	return &Error{
		Message: message,
		Stack:   captureStack(),
	}
}

// Errorf creates a new formatted error
func Errorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(),
	}
}

// WithContext adds context to an error
func (e *Error) WithContext(key, value string) *Error {
	if e == nil {
		return nil
	}

	// 创建新的错误实例以避免修改原始错误
	newErr := *e
	newErr.Context = make([]KeyValue, len(e.Context), len(e.Context)+1)
	copy(newErr.Context, e.Context)
	newErr.Context = append(newErr.Context, KeyValue{Key: key, Value: value})

	return &newErr
}

// ContextValue returns the first context value stored under key.
func (e *Error) ContextValue(key string) string {
	for _, kv := range e.Context {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// 移除顶部几行（通常是 captureStack 和 Error 相关的调用）
	lines := strings.Split(stack, "\n")
	if len(lines) > 6 {
		stack = strings.Join(lines[6:], "\n")
	}

	return strings.TrimSpace(stack)
}

// KindOf walks the chain and returns the first classified kind.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return KindUnknown
		}
		if e.Kind != KindUnknown {
			return e.Kind
		}
		err = e.Err
	}
	return KindUnknown
}

// IsKind reports whether err carries kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// StatusOf returns the HTTP status an error should be rendered with.
func StatusOf(err error) int {
	var e *Error
	if stderrors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	if status, ok := kindStatus[KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// GetMessage returns the error message
func GetMessage(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Error()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Is forwards to the standard library so callers need a single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As forwards to the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Cause returns the underlying error
func Cause(err error) error {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Err != nil {
			err = e.Err
		} else {
			return err
		}
	}
	return err
}

// Format implements fmt.Formatter
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprintf(s, "%s", e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
