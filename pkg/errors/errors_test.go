package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewAndWrap(t *testing.T) {
	err := New(CategoryParse, CodeInvalidFormat, "bad row")
	if err.Category != CategoryParse {
		t.Errorf("expected category %s, got %s", CategoryParse, err.Category)
	}
	if err.Code != CodeInvalidFormat {
		t.Errorf("expected code %s, got %s", CodeInvalidFormat, err.Code)
	}
	if err.StackTrace == nil {
		t.Error("expected stack trace to be captured")
	}

	cause := fmt.Errorf("boom")
	wrapped := Wrap(cause, CategoryNetwork, CodeTimeout, "fetch failed")
	if wrapped.Unwrap() != cause {
		t.Error("expected Unwrap to return the cause")
	}

	if Wrap(nil, CategoryNetwork, CodeTimeout, "x") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestErrorMessageIncludesSuggestion(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "file not found: books.csv").
		WithSuggestion("check the path")
	if !strings.Contains(err.Error(), "suggestion: check the path") {
		t.Errorf("expected suggestion in message, got %q", err.Error())
	}
}

func TestExitCodes(t *testing.T) {
	cases := []struct {
		category ErrorCategory
		want     int
	}{
		{CategoryFile, 2},
		{CategoryParse, 3},
		{CategoryValidation, 3},
		{CategoryConfiguration, 4},
		{CategoryReconciliation, 5},
		{CategoryInternal, 5},
		{CategoryNetwork, 6},
		{CategoryAuth, 7},
	}

	for _, tc := range cases {
		err := New(tc.category, CodeUnexpectedError, "x")
		if got := err.GetExitCode(); got != tc.want {
			t.Errorf("category %s: expected exit code %d, got %d", tc.category, tc.want, got)
		}
	}
}

func TestAuthErrorIsDistinctCategory(t *testing.T) {
	err := AuthError(CodeSessionExpired, "session abc", nil)
	if err.Category != CategoryAuth {
		t.Errorf("expected auth category, got %s", err.Category)
	}
	if !HasCategory(err, CategoryAuth) {
		t.Error("HasCategory should detect auth errors")
	}
	if HasCategory(err, CategoryNetwork) {
		t.Error("auth error must not report as network error")
	}
}

func TestAsReconErrorThroughWrapping(t *testing.T) {
	inner := ParseError(CodeMissingColumn, "books.csv", 1, "Taxable", "", nil)
	outer := fmt.Errorf("loading left side: %w", inner)

	extracted, ok := AsReconError(outer)
	if !ok {
		t.Fatal("expected to extract ReconError from chain")
	}
	if extracted.Code != CodeMissingColumn {
		t.Errorf("expected code %s, got %s", CodeMissingColumn, extracted.Code)
	}
}

func TestWrapIfNeededPreservesExisting(t *testing.T) {
	original := NetworkError(CodeRateLimited, "/gstrs/gstr-2b", nil)
	result := WrapIfNeeded(original, CategoryInternal, CodeUnexpectedError, "should not apply")
	if result.Category != CategoryNetwork {
		t.Errorf("expected original category preserved, got %s", result.Category)
	}

	plain := fmt.Errorf("plain")
	wrapped := WrapIfNeeded(plain, CategoryInternal, CodeUnexpectedError, "wrapped")
	if wrapped.Category != CategoryInternal {
		t.Errorf("expected internal category, got %s", wrapped.Category)
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize(nil); got != "no errors" {
		t.Errorf("expected 'no errors', got %q", got)
	}

	errs := []*ReconError{
		ValidationError(CodeInvalidDate, "Date", "31-31-2024", nil),
		ValidationError(CodeInvalidAmount, "Taxable", "abc", nil),
		New(CategoryParse, CodeInvalidData, "bad row"),
	}
	summary := Summarize(errs)
	if !strings.Contains(summary, "3 errors occurred") {
		t.Errorf("expected count in summary, got %q", summary)
	}
	if !strings.Contains(summary, "validation: 2") {
		t.Errorf("expected per-category counts, got %q", summary)
	}
}
