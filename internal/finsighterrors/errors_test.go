package finsighterrors_test

import (
	"errors"
	"testing"

	"github.com/finsight/finsight/internal/finsighterrors"
)

func TestCodeOf(t *testing.T) {
	err := finsighterrors.Wrap(finsighterrors.CodeTransientExternal, "fetch failed", errors.New("dial timeout"))

	code, ok := finsighterrors.CodeOf(err)
	if !ok {
		t.Fatal("expected CodeOf to find a code")
	}
	if code != finsighterrors.CodeTransientExternal {
		t.Errorf("code = %s, want %s", code, finsighterrors.CodeTransientExternal)
	}
}

func TestIsSentinel(t *testing.T) {
	err := finsighterrors.New(finsighterrors.CodeInsufficientData, "only 10 bars")

	if !errors.Is(err, finsighterrors.InsufficientData) {
		t.Error("expected errors.Is to match the InsufficientData sentinel")
	}
	if errors.Is(err, finsighterrors.InvariantViolation) {
		t.Error("did not expect a match against a different code")
	}
}
