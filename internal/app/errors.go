package app

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrIllegalState marks an etherpad item that was stored without its pad id.
var ErrIllegalState = errors.New("illegal state")

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errEtherpadServer(cause error) *DomainError {
	err := domainError(http.StatusInternalServerError, "GPEPERR001", "Internal Etherpad server error", nil)
	err.cause = cause
	return err
}

func errItemNotFound(itemID string) *DomainError {
	return domainError(http.StatusNotFound, "GPEPERR002", "Item not found", map[string]any{"itemId": itemID})
}

func errItemMissingExtra(itemID string) *DomainError {
	return domainError(http.StatusInternalServerError, "GPEPERR003", "Item missing etherpad extra", map[string]any{"itemId": itemID})
}

func errAccessForbidden(itemID string, cause error) *DomainError {
	err := domainError(http.StatusForbidden, "GPEPERR004", "Access forbidden to this item", map[string]any{"itemId": itemID})
	err.cause = cause
	return err
}

func errMissingPadID(itemID string) error {
	return fmt.Errorf("%w: property padID is missing in etherpad extra for item %s", ErrIllegalState, itemID)
}
