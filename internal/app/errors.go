package app

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	errMediaDisabled  = errors.New("media storage not configured")
	errExportDisabled = errors.New("export not configured")
)

// Error codes for the moderation core. FORBIDDEN and NOT_FOUND are
// deliberately indistinguishable on read paths: a caller is never told
// whether an entity it may not see exists.
const (
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeNotFound           = "NOT_FOUND"
	CodeTopicNotApproved   = "TOPIC_NOT_APPROVED"
	CodeCycleDetected      = "CYCLE_DETECTED"
	CodeParentNotFound     = "PARENT_NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeValidation         = "VALIDATION_ERROR"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errNotFound() *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, "Not found", nil)
}

func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, CodeForbidden, "Forbidden", nil)
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeValidation, message, nil)
}

func errConflict() *DomainError {
	return domainError(http.StatusConflict, CodeConflict, "Entity was modified concurrently", nil)
}

func errInvalidTransition(message string) *DomainError {
	return domainError(http.StatusConflict, CodeInvalidTransition, message, nil)
}

func errStorage(err error) *DomainError {
	return domainError(http.StatusServiceUnavailable, CodeStorageUnavailable, "Storage unavailable", map[string]any{
		"cause": err.Error(),
	})
}
