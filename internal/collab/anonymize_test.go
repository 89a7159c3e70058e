package collab

import (
	"strings"
	"testing"
)

func TestSaltedAnonymizerIsDeterministic(t *testing.T) {
	a := SaltedAnonymizer{Salt: "salt-1"}

	first := a.RetiredUsername("Alice")
	second := a.RetiredUsername("Alice")
	if first != second {
		t.Fatalf("same input produced %q and %q", first, second)
	}

	// Case differences in the original collapse to the same identifier.
	if got := a.RetiredUsername("ALICE"); got != first {
		t.Fatalf("case-insensitive mismatch: %q vs %q", got, first)
	}
}

func TestSaltedAnonymizerShape(t *testing.T) {
	a := SaltedAnonymizer{Salt: "salt-1"}

	username := a.RetiredUsername("alice")
	if !strings.HasPrefix(username, "retired__user_") {
		t.Fatalf("username %q missing retired prefix", username)
	}
	if strings.Contains(username, "alice") {
		t.Fatalf("username %q leaks the original", username)
	}

	email := a.RetiredEmail("alice@example.com")
	if !strings.HasSuffix(email, "@retired.invalid") {
		t.Fatalf("email %q not on the sink domain", email)
	}
	if strings.Contains(email, "alice@example.com") {
		t.Fatalf("email %q leaks the original", email)
	}
}

func TestSaltChangesOutput(t *testing.T) {
	a := SaltedAnonymizer{Salt: "salt-1"}
	b := SaltedAnonymizer{Salt: "salt-2"}
	if a.RetiredUsername("alice") == b.RetiredUsername("alice") {
		t.Fatal("different salts produced the same identifier")
	}
}
