package middleware

import (
	stderrors "errors"
	"net/http"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// domainErrors lifts call-layer sentinels into API errors.
var domainErrors = []struct {
	target error
	code   errors.ErrorCode
	status int
}{
	{domain.ErrAlreadyJoined, errors.ErrCodeConflict, http.StatusConflict},
	{domain.ErrNotInCall, errors.ErrCodeConflict, http.StatusConflict},
	{domain.ErrParticipantAbsent, errors.ErrCodeNotFound, http.StatusNotFound},
	{domain.ErrNoCamera, errors.ErrCodeDeviceError, http.StatusUnprocessableEntity},
	{domain.ErrNoMicrophone, errors.ErrCodeDeviceError, http.StatusUnprocessableEntity},
}

// asAppError returns err as an AppError, classifying known domain errors.
func asAppError(err error) *errors.AppError {
	if appErr := errors.GetAppError(err); appErr != nil {
		return appErr
	}
	for _, d := range domainErrors {
		if stderrors.Is(err, d.target) {
			return errors.WrapError(err, d.code, err.Error(), d.status)
		}
	}
	return nil
}

// ErrorHandlerMiddleware renders the last error attached to the context.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		if appErr := asAppError(err); appErr != nil {
			status := appErr.HTTPStatus
			if status == 0 {
				status = http.StatusInternalServerError
			}
			logger.Warnw("request failed",
				"code", appErr.Code,
				"message", appErr.Message,
				"status", status,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"context", appErr.Context,
			)

			body := gin.H{
				"error":       string(appErr.Code),
				"message":     appErr.Message,
				"recoverable": appErr.Recoverable,
			}
			if appErr.Detail != "" {
				body["detail"] = appErr.Detail
			}
			if len(appErr.Context) > 0 {
				body["details"] = appErr.Context
			}
			c.JSON(status, body)
			return
		}

		logger.Errorw("unhandled error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   string(errors.ErrCodeInternal),
			"message": "Internal server error",
		})
	}
}

// RecoveryMiddleware turns panics into 500 responses.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "Internal server error",
				})
			}
		}()

		c.Next()
	}
}
