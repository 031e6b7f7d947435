// internal/types/ids_test.go
package types

import (
	"testing"
)

func TestNewConnID(t *testing.T) {
	id := NewConnID()
	if id == "" {
		t.Error("expected non-empty ConnID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
	if NewConnID() == id {
		t.Error("expected distinct ConnIDs")
	}
}
