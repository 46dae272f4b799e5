package testutil

import (
	"errors"
	"net/http"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()

	fakeT := &testing.T{}
	AssertStatusCode(fakeT, http.StatusOK, http.StatusOK)
	if fakeT.Failed() {
		t.Error("expected no failure for matching status codes")
	}

	fakeT = &testing.T{}
	AssertStatusCode(fakeT, http.StatusOK, http.StatusBadRequest)
	if !fakeT.Failed() {
		t.Error("expected failure for mismatched status codes")
	}
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	fakeT := &testing.T{}
	AssertNoError(fakeT, nil)
	if fakeT.Failed() {
		t.Error("expected no failure for nil error")
	}

	// Fatalf exits the calling goroutine, so run the failure path apart.
	fakeT = &testing.T{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		AssertNoError(fakeT, errors.New("boom"))
	}()
	<-done
	if !fakeT.Failed() {
		t.Error("expected failure for non-nil error")
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	fakeT := &testing.T{}
	AssertError(fakeT, errors.New("test error"))
	if fakeT.Failed() {
		t.Error("expected no failure when error is present")
	}

	fakeT = &testing.T{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		AssertError(fakeT, nil)
	}()
	<-done
	if !fakeT.Failed() {
		t.Error("expected failure when error is nil")
	}
}

func TestAssertInDelta(t *testing.T) {
	t.Parallel()

	fakeT := &testing.T{}
	AssertInDelta(fakeT, 90.04, 90.0, 0.1)
	if fakeT.Failed() {
		t.Error("expected no failure inside tolerance")
	}

	fakeT = &testing.T{}
	AssertInDelta(fakeT, 91.0, 90.0, 0.1)
	if !fakeT.Failed() {
		t.Error("expected failure outside tolerance")
	}
}
