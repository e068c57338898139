package errors

import (
	"strings"
	"testing"
)

func TestNewCarriesCallerLocation(t *testing.T) {
	err := New("slug %q is empty", "")
	if !strings.HasPrefix(err.Error(), "[errors_test.go:") {
		t.Errorf("expected caller prefix, got %q", err.Error())
	}
	if !strings.HasSuffix(err.Error(), `slug "" is empty`) {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "ignored") != nil {
		t.Fatal("Wrapf(nil) should return nil")
	}

	err := Wrapf(ErrConfig, "loading %s", "config.yaml")
	if !Is(err, ErrConfig) {
		t.Errorf("wrapped error lost its cause: %v", err)
	}
	if !strings.Contains(err.Error(), "loading config.yaml: configuration error") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
