package signature

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is how far a signed timestamp may drift from the
// receiver's clock before VerifyHeader rejects it.
const DefaultTolerance = 5 * time.Minute

var (
	ErrInvalidHeader       = errors.New("signature: invalid header")
	ErrNoSignature         = errors.New("signature: no v1 signature in header")
	ErrTimestampOutOfRange = errors.New("signature: timestamp outside tolerance")
	ErrSignatureMismatch   = errors.New("signature: signature mismatch")
)

// Header formats the signature header value.
func Header(timestamp int64, sig string) string {
	return "t=" + strconv.FormatInt(timestamp, 10) + "," + Version + "=" + sig
}

// ParseHeader splits a header value into its timestamp and every v1
// signature it carries. Unknown schemes are ignored so senders can add new
// versions alongside v1.
func ParseHeader(header string) (int64, []string, error) {
	var (
		ts    int64
		haveT bool
		sigs  []string
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, ErrInvalidHeader
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, ErrInvalidHeader
			}
			ts, haveT = n, true
		case Version:
			sigs = append(sigs, v)
		}
	}
	if !haveT {
		return 0, nil, ErrInvalidHeader
	}
	if len(sigs) == 0 {
		return 0, nil, ErrNoSignature
	}
	return ts, sigs, nil
}

// VerifyHeader checks a received header against body. A tolerance of zero
// disables the timestamp check.
func VerifyHeader(secret, header string, body []byte, tolerance time.Duration, now time.Time) error {
	ts, sigs, err := ParseHeader(header)
	if err != nil {
		return err
	}
	if tolerance > 0 {
		drift := now.Sub(time.UnixMilli(ts))
		if drift < 0 {
			drift = -drift
		}
		if drift > tolerance {
			return ErrTimestampOutOfRange
		}
	}
	for _, sig := range sigs {
		if Verify(secret, ts, body, sig) {
			return nil
		}
	}
	return ErrSignatureMismatch
}
