package signature_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/herald/signature"
)

func TestHeaderFormat(t *testing.T) {
	got := signature.Header(1700000000000, "abc123")
	want := "t=1700000000000,v1=abc123"
	if got != want {
		t.Errorf("Header() = %q, want %q", got, want)
	}
}

func TestParseHeader(t *testing.T) {
	ts, sigs, err := signature.ParseHeader("t=42,v1=aa, v0=zz,v1=bb")
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if ts != 42 {
		t.Errorf("ts = %d", ts)
	}
	if len(sigs) != 2 || sigs[0] != "aa" || sigs[1] != "bb" {
		t.Errorf("sigs = %v", sigs)
	}

	bad := []string{"", "v1=aa", "t=abc,v1=aa", "t=1,garbage"}
	for _, h := range bad {
		if _, _, err := signature.ParseHeader(h); err == nil {
			t.Errorf("ParseHeader(%q) expected error", h)
		}
	}

	if _, _, err := signature.ParseHeader("t=1"); !errors.Is(err, signature.ErrNoSignature) {
		t.Errorf("expected ErrNoSignature, got %v", err)
	}
}

func TestVerifyHeader(t *testing.T) {
	secret := signature.GenerateSecret()
	body := []byte(`{"id":"evt_1","event":"payment.failed"}`)
	now := time.UnixMilli(1700000000000)
	header := signature.Header(now.UnixMilli(), signature.Sign(secret, now.UnixMilli(), body))

	if err := signature.VerifyHeader(secret, header, body, signature.DefaultTolerance, now.Add(time.Minute)); err != nil {
		t.Fatalf("VerifyHeader: %v", err)
	}

	err := signature.VerifyHeader(secret, header, body, signature.DefaultTolerance, now.Add(10*time.Minute))
	if !errors.Is(err, signature.ErrTimestampOutOfRange) {
		t.Errorf("expected ErrTimestampOutOfRange, got %v", err)
	}

	// Zero tolerance skips the clock check.
	if err := signature.VerifyHeader(secret, header, body, 0, now.Add(24*time.Hour)); err != nil {
		t.Errorf("zero tolerance: %v", err)
	}

	err = signature.VerifyHeader(secret, header, []byte(`{}`), signature.DefaultTolerance, now)
	if !errors.Is(err, signature.ErrSignatureMismatch) {
		t.Errorf("expected ErrSignatureMismatch, got %v", err)
	}
}
