package jobq_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/xraph/jobq"
)

func TestPermanent(t *testing.T) {
	cause := errors.New("file missing")
	err := jobq.Permanent(cause)

	if !jobq.IsPermanent(err) {
		t.Error("IsPermanent(Permanent(err)) = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("Permanent error does not wrap its cause")
	}
	if err.Error() != cause.Error() {
		t.Errorf("Error() = %q, want %q", err.Error(), cause.Error())
	}

	wrapped := fmt.Errorf("import: %w", err)
	if !jobq.IsPermanent(wrapped) {
		t.Error("IsPermanent lost through fmt.Errorf wrapping")
	}
}

func TestPermanentf(t *testing.T) {
	err := jobq.Permanentf("bad file %q", "f-1")
	if !jobq.IsPermanent(err) {
		t.Error("Permanentf error is not permanent")
	}
	if want := `bad file "f-1"`; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTransient(t *testing.T) {
	cause := errors.New("timeout")
	err := jobq.Transient(cause)

	if jobq.IsPermanent(err) {
		t.Error("Transient error reported as permanent")
	}
	if !errors.Is(err, jobq.ErrTransientFailure) || !errors.Is(err, cause) {
		t.Error("Transient error chain is incomplete")
	}
	if jobq.IsPermanent(cause) {
		t.Error("unclassified error reported as permanent")
	}
}

func TestClassifyNil(t *testing.T) {
	if jobq.Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
	if jobq.Transient(nil) != nil {
		t.Error("Transient(nil) != nil")
	}
}
