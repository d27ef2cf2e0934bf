package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a machine-readable error code shared by the call layer and the HTTP API.
type ErrorCode string

// Call taxonomy.
const (
	ErrCodeInitFailed           ErrorCode = "INIT_FAILED"
	ErrCodeJoinFailed           ErrorCode = "JOIN_FAILED"
	ErrCodeDeviceError          ErrorCode = "DEVICE_ERROR"
	ErrCodeSubscribeFailed      ErrorCode = "SUBSCRIBE_FAILED"
	ErrCodeScreenShareError     ErrorCode = "SCREEN_SHARE_ERROR"
	ErrCodeScreenShareDenied    ErrorCode = "SCREEN_SHARE_DENIED"
	ErrCodeQualityError         ErrorCode = "QUALITY_ERROR"
	ErrCodeEncryptionFailed     ErrorCode = "ENCRYPTION_FAILED"
	ErrCodeRoleChangeFailed     ErrorCode = "ROLE_CHANGE_FAILED"
	ErrCodeVBFailed             ErrorCode = "VB_FAILED"
	ErrCodeVBNotAvailable       ErrorCode = "VB_NOT_AVAILABLE"
	ErrCodeBeautyFailed         ErrorCode = "BEAUTY_FAILED"
	ErrCodeBeautyNotAvailable   ErrorCode = "BEAUTY_NOT_AVAILABLE"
	ErrCodeDenoiserFailed       ErrorCode = "DENOISER_FAILED"
	ErrCodeDenoiserNotAvailable ErrorCode = "DENOISER_NOT_AVAILABLE"
	ErrCodeRecordingUnavailable ErrorCode = "RECORDING_NOT_AVAILABLE"
	ErrCodeTokenFailed          ErrorCode = "TOKEN_REFRESH_FAILED"
	ErrCodeMessageFailed        ErrorCode = "MESSAGE_FAILED"
)

// Generic codes used at the API edge.
const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeNotSupported       ErrorCode = "NOT_SUPPORTED"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// messageKeys maps codes to i18n message references.
var messageKeys = map[ErrorCode]string{
	ErrCodeInitFailed:           "vc.err.initFailed",
	ErrCodeJoinFailed:           "vc.err.joinFailed",
	ErrCodeDeviceError:          "vc.err.deviceError",
	ErrCodeSubscribeFailed:      "vc.err.subscribeFailed",
	ErrCodeScreenShareError:     "vc.err.screenShareError",
	ErrCodeScreenShareDenied:    "vc.err.screenShareDenied",
	ErrCodeQualityError:         "vc.err.qualityError",
	ErrCodeEncryptionFailed:     "vc.err.encryptionFailed",
	ErrCodeRoleChangeFailed:     "vc.err.roleChangeFailed",
	ErrCodeVBFailed:             "vc.err.vbFailed",
	ErrCodeVBNotAvailable:       "vc.err.vbNotAvailable",
	ErrCodeBeautyFailed:         "vc.err.beautyFailed",
	ErrCodeBeautyNotAvailable:   "vc.err.beautyNotAvailable",
	ErrCodeDenoiserFailed:       "vc.err.denoiserFailed",
	ErrCodeDenoiserNotAvailable: "vc.err.denoiserNotAvailable",
	ErrCodeRecordingUnavailable: "vc.err.recordingNotAvailable",
	ErrCodeTokenFailed:          "vc.err.tokenRefreshFailed",
	ErrCodeMessageFailed:        "vc.err.messageFailed",
}

// MessageKey returns the i18n reference for a code, or a generic one.
func MessageKey(code ErrorCode) string {
	if key, ok := messageKeys[code]; ok {
		return key
	}
	return "vc.err.unknown"
}

// AppError represents an application error with code and context
type AppError struct {
	Code        ErrorCode
	Message     string
	Detail      string
	HTTPStatus  int
	Recoverable bool
	Cause       error
	Context     map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches AppErrors by code so callers can test against the sentinels below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetail sets the free-text detail.
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	appErr := NewAppError(code, message, httpStatus)
	appErr.Cause = err
	return appErr
}

// NewCallError builds a call-layer error with its i18n message key.
func NewCallError(code ErrorCode, recoverable bool, cause error) *AppError {
	appErr := NewAppError(code, MessageKey(code), http.StatusUnprocessableEntity)
	appErr.Recoverable = recoverable
	appErr.Cause = cause
	if cause != nil {
		appErr.Detail = cause.Error()
	}
	return appErr
}

// Sentinels for errors.Is comparisons.
var (
	ErrOperationInProgress = NewConflictError("another call operation is in progress")
	ErrNotSupported        = NewAppError(ErrCodeNotSupported, "feature not supported", http.StatusNotImplemented)
)

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ErrCodeConflict, message, http.StatusConflict)
}

func NewNotSupportedError(feature string) *AppError {
	return NewAppError(ErrCodeNotSupported, fmt.Sprintf("%s not supported", feature), http.StatusNotImplemented)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// CodeOf returns the code of the first AppError in the chain, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code
	}
	return ErrCodeInternal
}
