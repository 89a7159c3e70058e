package collab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pavitrk/retirepipe/internal/retry"
)

func TestRESTEraserClassifiesFailures(t *testing.T) {
	var status int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/retire_user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
	}))
	defer ts.Close()

	eraser := NewRESTEraser(ts.URL)
	ctx := context.Background()

	status = http.StatusOK
	if err := eraser.Retire(ctx, "alice", "alice@example.com"); err != nil {
		t.Fatalf("Retire on 200: %v", err)
	}

	// Server-side failures and throttling are transient.
	for _, status = range []int{http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusTooManyRequests} {
		err := eraser.Retire(ctx, "alice", "alice@example.com")
		if err == nil {
			t.Fatalf("Retire on %d succeeded", status)
		}
		if got := retry.Classify(err); got != retry.ClassRetryable {
			t.Errorf("status %d classified %s, want retryable", status, got)
		}
	}

	// Client-side rejections are not worth retrying.
	for _, status = range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict} {
		err := eraser.Retire(ctx, "alice", "alice@example.com")
		if err == nil {
			t.Fatalf("Retire on %d succeeded", status)
		}
		if got := retry.Classify(err); got != retry.ClassTerminal {
			t.Errorf("status %d classified %s, want terminal", status, got)
		}
	}
}

func TestRESTEraserConnectionFailureIsRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	eraser := NewRESTEraser(ts.URL)
	err := eraser.Retire(context.Background(), "alice", "alice@example.com")
	if err == nil {
		t.Fatal("Retire against closed server succeeded")
	}
	if got := retry.Classify(err); got != retry.ClassRetryable {
		t.Fatalf("connection failure classified %s, want retryable", got)
	}
}

func TestRESTIdentityLockAndLookup(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/users/u1/lock":
			w.Write([]byte(`{"retiredUsername":"retired__user_abc","retiredEmail":"retired__user_abc@retired.invalid"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/lookup":
			if r.URL.Query().Get("username") != "alice" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write([]byte(`{"userId":"u1","username":"alice","email":"alice@example.com","name":"Alice Doe"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	identity := NewRESTIdentity(ts.URL)
	ctx := context.Background()

	username, email, err := identity.LockIdentity(ctx, "u1")
	if err != nil {
		t.Fatalf("LockIdentity: %v", err)
	}
	if username != "retired__user_abc" || email != "retired__user_abc@retired.invalid" {
		t.Fatalf("LockIdentity returned %q %q", username, email)
	}

	info, err := identity.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if info.UserID != "u1" || info.Username != "alice" {
		t.Fatalf("Lookup returned %+v", info)
	}
}
