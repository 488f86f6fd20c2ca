// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorUnwrapsUnderlyingCause(t *testing.T) {
	cause := errors.New("backend exploded")
	e := newCreateFailed("buffer", cause.Error(), cause)
	if !errors.Is(e, cause) {
		t.Fatal("errors.Is should see through Error.Unwrap to the underlying cause")
	}
}

func TestErrorMessageIncludesResourceAndReason(t *testing.T) {
	e := newCreateFailed("texture", "out of memory", nil)
	msg := e.Error()
	if msg == "" {
		t.Fatal("Error() returned an empty string")
	}
	for _, want := range []string{"texture", "out of memory"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, want it to mention %q", msg, want)
		}
	}
}
