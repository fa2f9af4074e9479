package auth

import (
	"context"
	"testing"
	"time"

	"deliveryFieldOps/internal/testutil"
)

const testSecret = "test-secret"

func TestParseFromMD_ValidBearer(t *testing.T) {
	tok := testutil.GenerateJWTHS256(t, testSecret, "alice", "driver")
	ctx := testutil.CtxWithBearer(context.Background(), tok)
	p, err := ParseFromMD(ctx, testSecret)
	if err != nil {
		t.Fatalf("ParseFromMD: %v", err)
	}
	if p.Name != "alice" || p.Kind != KindDriver {
		t.Fatalf("principal mismatch: %+v", p)
	}
}

func TestParseFromMD_MissingHeader(t *testing.T) {
	if _, err := ParseFromMD(context.Background(), testSecret); err == nil {
		t.Fatalf("expected error for missing metadata")
	}
}

func TestParse_WrongSecret(t *testing.T) {
	tok := testutil.GenerateJWTHS256(t, testSecret, "bob", "driver")
	if _, err := Parse(tok, "wrong"); err == nil {
		t.Fatalf("expected error for wrong secret")
	}
}

func TestParse_ClaimsValidation(t *testing.T) {
	tok := testutil.GenerateJWTHS256(t, testSecret, "", "")
	if _, err := Parse(tok, testSecret); err == nil {
		t.Fatalf("expected invalid claims error")
	}
}

func TestIssue_RoundTripAndExpiry(t *testing.T) {
	tok, exp, err := Issue(testSecret, "joao", "Driver", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p, err := Parse(tok, testSecret)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Name != "joao" || p.Kind != KindDriver {
		t.Fatalf("principal mismatch: %+v", p)
	}
	got, ok := ExpiresAt(tok)
	if !ok || !got.Equal(exp) {
		t.Fatalf("ExpiresAt=%v ok=%v want %v", got, ok, exp)
	}

	if _, _, err := Issue("", "joao", KindDriver, time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestParse_RejectsExpired(t *testing.T) {
	tok := testutil.GenerateExpiringJWT(t, testSecret, "joao", "driver", time.Now().Add(-time.Minute))
	if _, err := Parse(tok, testSecret); err == nil {
		t.Fatalf("expected error for expired token")
	}
	// The unverified read still reports the expiry.
	if _, ok := ExpiresAt(tok); !ok {
		t.Fatalf("expected expiry from unverified read")
	}
}

func TestExpiresAt_NoClaimOrGarbage(t *testing.T) {
	if _, ok := ExpiresAt(testutil.GenerateJWTHS256(t, testSecret, "a", "driver")); ok {
		t.Fatalf("token without exp reported an expiry")
	}
	if _, ok := ExpiresAt("not-a-token"); ok {
		t.Fatalf("garbage reported an expiry")
	}
	if _, ok := ExpiresAt(""); ok {
		t.Fatalf("empty token reported an expiry")
	}
}
