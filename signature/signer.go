// Package signature signs and verifies Herald webhook deliveries.
//
// A delivery is signed with HMAC-SHA256 over "{timestamp}.{body}", where the
// timestamp is Unix milliseconds and body is the exact request body. The
// result travels in a single header of the form "t=<timestamp>,v1=<hex>".
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Version is the scheme tag carried in the header.
const Version = "v1"

// Sign returns the lowercase hex HMAC-SHA256 of "{timestamp}.{body}" keyed
// by secret. It is deterministic.
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(strconv.AppendInt(nil, timestamp, 10))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the signature of body at timestamp.
// The comparison is constant time.
func Verify(secret string, timestamp int64, body []byte, sig string) bool {
	expected := Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(sig))
}
