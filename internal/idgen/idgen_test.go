package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNew(t *testing.T) {
	id := New()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("New() = %q is not a uuid: %v", id, err)
	}
	if New() == id {
		t.Fatal("expected distinct ids")
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("pln_")
	if !strings.HasPrefix(id, "pln_") {
		t.Fatalf("missing prefix: %s", id)
	}
	if len(id) != len("pln_")+24 {
		t.Fatalf("unexpected length %d", len(id))
	}
}

func TestHex(t *testing.T) {
	if got := len(Hex(32)); got != 64 {
		t.Fatalf("Hex(32) length = %d, want 64", got)
	}
}
