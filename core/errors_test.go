package core

import (
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestGrantsErrorMapper_Sentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		textCode string
		httpCode int
	}{
		{"not found", ErrGrantNotFound, goerrors.CategoryNotFound, GrantsErrorNotFound, http.StatusNotFound},
		{"already paused", ErrAlreadyPaused, goerrors.CategoryConflict, GrantsErrorAlreadyPaused, http.StatusConflict},
		{"not paused", ErrNotPaused, goerrors.CategoryConflict, GrantsErrorNotPaused, http.StatusConflict},
		{"insufficient credit", ErrInsufficientCredit, goerrors.CategoryOperation, GrantsErrorInsufficientCredit, http.StatusUnprocessableEntity},
		{"version conflict", ErrVersionConflict, goerrors.CategoryConflict, GrantsErrorStoreConflict, http.StatusConflict},
		{"invalid key", ErrInvalidGrantKey, goerrors.CategoryBadInput, GrantsErrorBadInput, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := grantsErrorMapper(fmt.Errorf("wrap: %w", tc.err))
			if mapped == nil {
				t.Fatal("expected mapped error")
			}
			if mapped.Category != tc.category {
				t.Fatalf("category %v, want %v", mapped.Category, tc.category)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("text code %q, want %q", mapped.TextCode, tc.textCode)
			}
			if mapped.Code != tc.httpCode {
				t.Fatalf("http code %d, want %d", mapped.Code, tc.httpCode)
			}
		})
	}
}

func TestGrantsErrorMapper_PreservesRichErrors(t *testing.T) {
	original := goerrors.New("upstream refused", goerrors.CategoryExternal).WithTextCode("UPSTREAM_DOWN")
	mapped := grantsErrorMapper(original)
	if mapped.TextCode != "UPSTREAM_DOWN" {
		t.Fatalf("text code %q, want UPSTREAM_DOWN", mapped.TextCode)
	}
	if mapped.Category != goerrors.CategoryExternal {
		t.Fatalf("category %v, want external", mapped.Category)
	}
}

func TestGrantsErrorMapper_UnknownErrorsGetEnvelope(t *testing.T) {
	mapped := grantsErrorMapper(fmt.Errorf("disk on fire"))
	if mapped == nil {
		t.Fatal("expected mapped error")
	}
	if mapped.TextCode == "" {
		t.Fatal("text code must be filled in")
	}
	if mapped.Code == 0 {
		t.Fatal("http code must be filled in")
	}
}

func TestErrorPredicates_SeeThroughWrapping(t *testing.T) {
	wrapped := grantsErrorMapper(fmt.Errorf("pause: %w", ErrInsufficientCredit))
	if !IsInsufficientCredit(wrapped) {
		t.Fatal("predicate must match mapped error by text code")
	}
	if !IsInsufficientCredit(fmt.Errorf("x: %w", ErrInsufficientCredit)) {
		t.Fatal("predicate must match raw sentinel")
	}
	if IsInsufficientCredit(ErrGrantNotFound) {
		t.Fatal("predicate must not cross-match")
	}
	if !IsNotFound(grantsErrorMapper(ErrGrantNotFound)) {
		t.Fatal("not-found predicate")
	}
	if !IsStoreConflict(grantsErrorMapper(ErrVersionConflict)) {
		t.Fatal("conflict predicate")
	}
}
