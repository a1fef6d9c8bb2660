package errs

import (
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

var allCodes = []Code{
	ElementNotVisible,
	MissingReference,
	ComparisonMismatch,
	NoNavigationDetected,
	AmbiguousOutcome,
	ScrollMismatch,
	ImageNotLoaded,
	AspectDistorted,
	AssertionFailed,
	InvalidArgument,
	Unavailable,
	Internal,
}

func testCodeOf_RoundtripForTypedErrors(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")

	err := New(code, message)
	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf(New) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(err); got != message {
		t.Fatalf("MessageOf(New) mismatch: got=%q want=%q", got, message)
	}
}

func TestCodeOf_RoundtripForTypedErrors(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOf_RoundtripForTypedErrors)
}

func testCodeOfAndMessageOf_WrappedTypedError(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")
	causeText := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "cause")

	err := Wrap(code, message, errors.New(causeText))
	wrapped := fmt.Errorf("outer: %w", err)

	if got := CodeOf(wrapped); got != code {
		t.Fatalf("CodeOf(wrapped) mismatch: got=%q want=%q", got, code)
	}
	if got, want := MessageOf(wrapped), message+": "+causeText; got != want {
		t.Fatalf("MessageOf(wrapped) mismatch: got=%q want=%q", got, want)
	}
}

func TestCodeOfAndMessageOf_WrappedTypedError(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOfAndMessageOf_WrappedTypedError)
}

func testUntypedAndNilFallbacks(t *rapid.T) {
	raw := rapid.StringMatching(`[a-zA-Z0-9 _:\-./]{1,80}`).Draw(t, "raw")
	untyped := errors.New(raw)

	if got := CodeOf(untyped); got != Internal {
		t.Fatalf("CodeOf(untyped) mismatch: got=%q want=%q", got, Internal)
	}
	if got := MessageOf(untyped); got != raw {
		t.Fatalf("MessageOf(untyped) mismatch: got=%q want=%q", got, raw)
	}
	if got := CodeOf(nil); got != Internal {
		t.Fatalf("CodeOf(nil) mismatch: got=%q want=%q", got, Internal)
	}
	if got := MessageOf(nil); got != string(Internal) {
		t.Fatalf("MessageOf(nil) mismatch: got=%q want=%q", got, Internal)
	}
}

func TestUntypedAndNilFallbacks(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testUntypedAndNilFallbacks)
}

func testExitCode_Mapping(t *rapid.T) {
	code := rapid.SampledFrom(append(allCodes, Code("unknown_code"))).Draw(t, "code")

	want := ExitFatal
	switch {
	case IsCheckFailure(code):
		want = ExitCheckFailed
	case code == InvalidArgument:
		want = ExitConfig
	}
	if got := ExitCode(code); got != want {
		t.Fatalf("ExitCode mismatch: code=%q got=%d want=%d", code, got, want)
	}
}

func TestExitCode_Mapping(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testExitCode_Mapping)
}

func TestIsCheckFailure_FatalCodesAreNotFailures(t *testing.T) {
	t.Parallel()
	for _, code := range []Code{InvalidArgument, Unavailable, Internal, Code("")} {
		if IsCheckFailure(code) {
			t.Fatalf("IsCheckFailure(%q) = true, want false", code)
		}
	}
	if !IsCheckFailure(NoNavigationDetected) {
		t.Fatal("IsCheckFailure(NoNavigationDetected) = false, want true")
	}
}
