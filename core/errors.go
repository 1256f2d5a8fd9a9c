package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	GrantsErrorBadInput           = "GRANTS_BAD_INPUT"
	GrantsErrorNotFound           = "GRANTS_NOT_FOUND"
	GrantsErrorAlreadyPaused      = "GRANTS_ALREADY_PAUSED"
	GrantsErrorNotPaused          = "GRANTS_NOT_PAUSED"
	GrantsErrorInsufficientCredit = "GRANTS_INSUFFICIENT_CREDIT"
	GrantsErrorStoreConflict      = "GRANTS_STORE_CONFLICT"
	GrantsErrorInternal           = "GRANTS_INTERNAL_ERROR"
)

func grantsErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureGrantsErrorEnvelope(richErr)
	}

	switch {
	case goerrors.Is(err, ErrGrantNotFound):
		return newGrantsError(err.Error(), goerrors.CategoryNotFound, GrantsErrorNotFound)
	case goerrors.Is(err, ErrAlreadyPaused):
		return newGrantsError(err.Error(), goerrors.CategoryConflict, GrantsErrorAlreadyPaused)
	case goerrors.Is(err, ErrNotPaused):
		return newGrantsError(err.Error(), goerrors.CategoryConflict, GrantsErrorNotPaused)
	case goerrors.Is(err, ErrInsufficientCredit):
		return newGrantsError(err.Error(), goerrors.CategoryOperation, GrantsErrorInsufficientCredit)
	case goerrors.Is(err, ErrVersionConflict):
		return newGrantsError(err.Error(), goerrors.CategoryConflict, GrantsErrorStoreConflict)
	case goerrors.Is(err, ErrInvalidGrantKey), goerrors.Is(err, ErrInvalidPauseKind):
		return newGrantsError(err.Error(), goerrors.CategoryBadInput, GrantsErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureGrantsErrorEnvelope(mapped)
}

func newGrantsError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureGrantsErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureGrantsErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = grantsHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultGrantsTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultGrantsTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return GrantsErrorBadInput
	case goerrors.CategoryNotFound:
		return GrantsErrorNotFound
	case goerrors.CategoryConflict:
		return GrantsErrorStoreConflict
	case goerrors.CategoryOperation:
		return GrantsErrorInsufficientCredit
	default:
		return GrantsErrorInternal
	}
}

func grantsHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func hasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return strings.EqualFold(strings.TrimSpace(richErr.TextCode), textCode)
	}
	return false
}

// IsNotFound reports whether err means the operation required an existing
// grant row and none exists.
func IsNotFound(err error) bool {
	return goerrors.Is(err, ErrGrantNotFound) || hasTextCode(err, GrantsErrorNotFound)
}

func IsAlreadyPaused(err error) bool {
	return goerrors.Is(err, ErrAlreadyPaused) || hasTextCode(err, GrantsErrorAlreadyPaused)
}

func IsNotPaused(err error) bool {
	return goerrors.Is(err, ErrNotPaused) || hasTextCode(err, GrantsErrorNotPaused)
}

func IsInsufficientCredit(err error) bool {
	return goerrors.Is(err, ErrInsufficientCredit) || hasTextCode(err, GrantsErrorInsufficientCredit)
}

// IsStoreConflict reports whether err means the optimistic-concurrency retry
// budget was exhausted; callers may retry the whole operation.
func IsStoreConflict(err error) bool {
	return goerrors.Is(err, ErrVersionConflict) || hasTextCode(err, GrantsErrorStoreConflict)
}
