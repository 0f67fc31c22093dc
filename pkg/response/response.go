package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the unified API response format.
// Key is a stable message key the client uses for localized rendering.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Key     string      `json:"key,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// AppError represents a structured application error with HTTP status and error code.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
	Key        string // e.g. role_chain.not_found.employee
}

func (e *AppError) Error() string {
	return e.Message
}

// WithKey returns a copy of the error carrying a localization key.
func (e *AppError) WithKey(key string) *AppError {
	cp := *e
	cp.Key = key
	return &cp
}

func newAppError(status int, msg string) *AppError {
	return &AppError{HTTPStatus: status, Code: status, Message: msg}
}

func NewBadRequest(msg string) *AppError      { return newAppError(http.StatusBadRequest, msg) }
func NewUnauthorized(msg string) *AppError    { return newAppError(http.StatusUnauthorized, msg) }
func NewForbidden(msg string) *AppError       { return newAppError(http.StatusForbidden, msg) }
func NewNotFound(msg string) *AppError        { return newAppError(http.StatusNotFound, msg) }
func NewConflict(msg string) *AppError        { return newAppError(http.StatusConflict, msg) }
func NewUnprocessable(msg string) *AppError   { return newAppError(http.StatusUnprocessableEntity, msg) }
func NewTooManyRequests(msg string) *AppError { return newAppError(http.StatusTooManyRequests, msg) }

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "ok",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "created",
		Data:    data,
	})
}

// Error sends an error response. If err is an *AppError, its code and status
// are used; otherwise a generic 500 is returned without leaking the cause.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, Response{
			Code:    appErr.Code,
			Message: appErr.Message,
			Key:     appErr.Key,
		})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, Response{
		Code:    http.StatusInternalServerError,
		Message: "internal server error",
		Key:     "common.internal",
	})
}

// Abort writes the error and stops the handler chain.
func Abort(c *gin.Context, err *AppError) {
	Error(c, err)
	c.Abort()
}
