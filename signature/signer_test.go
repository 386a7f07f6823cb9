package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/xraph/herald/signature"
)

func TestSignKnownVector(t *testing.T) {
	body := []byte(`{"event":"order.created"}`)
	secret := "whsec_testsecret123"
	timestamp := int64(1700000000000)

	got := signature.Sign(secret, timestamp, body)

	// Compute expected HMAC-SHA256 independently.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, body)))
	expected := hex.EncodeToString(mac.Sum(nil))

	if got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
	if len(got) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(got))
	}
}

func TestSignDeterministic(t *testing.T) {
	body := []byte(`{"a":1}`)
	a := signature.Sign("whsec_x", 1, body)
	b := signature.Sign("whsec_x", 1, body)
	if a != b {
		t.Errorf("Sign is not deterministic: %q vs %q", a, b)
	}
}

func TestSignSensitivity(t *testing.T) {
	base := signature.Sign("whsec_x", 1700000000000, []byte(`{"a":1}`))

	cases := map[string]string{
		"secret":    signature.Sign("whsec_y", 1700000000000, []byte(`{"a":1}`)),
		"timestamp": signature.Sign("whsec_x", 1700000000001, []byte(`{"a":1}`)),
		"body":      signature.Sign("whsec_x", 1700000000000, []byte(`{"a":2}`)),
	}
	for name, sig := range cases {
		if sig == base {
			t.Errorf("changing %s did not change the signature", name)
		}
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"order_id":"ord_1","amount":9900}`)
	secret := "whsec_roundtrip"
	ts := int64(1700000001000)

	sig := signature.Sign(secret, ts, body)
	if !signature.Verify(secret, ts, body, sig) {
		t.Error("Verify() returned false for valid signature")
	}
	if signature.Verify(secret, ts, []byte(`{"order_id":"ord_2"}`), sig) {
		t.Error("Verify() returned true for tampered body")
	}
	if signature.Verify("whsec_wrong", ts, body, sig) {
		t.Error("Verify() returned true for wrong secret")
	}
}
