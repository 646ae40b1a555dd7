package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSignatureMissing indicates the request carried no signature header.
	ErrSignatureMissing = errors.New("payment: signature header missing")
	// ErrSignatureMalformed indicates the header could not be parsed.
	ErrSignatureMalformed = errors.New("payment: signature header malformed")
	// ErrSignatureMismatch indicates no candidate signature matched the payload.
	ErrSignatureMismatch = errors.New("payment: signature mismatch")
)

// SignatureHeader is the parsed form of a Stripe-Signature header value.
// The header is a comma-separated list of key=value pairs; only t and v1
// are consumed, and multiple v1 entries are allowed during secret rotation.
type SignatureHeader struct {
	Timestamp  int64
	Signatures []string
}

// ParseSignatureHeader splits a raw header value into timestamp and candidate signatures.
func ParseSignatureHeader(header string) (SignatureHeader, error) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return SignatureHeader{}, ErrSignatureMissing
	}
	parsed := SignatureHeader{}
	seenTimestamp := false
	for _, pair := range strings.Split(trimmed, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return SignatureHeader{}, fmt.Errorf("%w: element %q", ErrSignatureMalformed, pair)
		}
		switch strings.TrimSpace(key) {
		case "t":
			ts, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return SignatureHeader{}, fmt.Errorf("%w: bad timestamp", ErrSignatureMalformed)
			}
			parsed.Timestamp = ts
			seenTimestamp = true
		case "v1":
			sig := strings.TrimSpace(value)
			if sig != "" {
				parsed.Signatures = append(parsed.Signatures, sig)
			}
		default:
			// Unknown schemes (e.g. v0) are ignored for forward compatibility.
		}
	}
	if !seenTimestamp {
		return SignatureHeader{}, fmt.Errorf("%w: missing t", ErrSignatureMalformed)
	}
	if len(parsed.Signatures) == 0 {
		return SignatureHeader{}, fmt.Errorf("%w: missing v1", ErrSignatureMalformed)
	}
	return parsed, nil
}

// ComputeSignature derives the hex HMAC-SHA256 digest over "{timestamp}.{body}".
func ComputeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the payload digest and compares it in constant
// time against every candidate signature from the header. Verification must
// run on the raw body exactly as received; any re-serialisation breaks it.
func VerifySignature(secret string, header SignatureHeader, body []byte) error {
	expected := ComputeSignature(secret, header.Timestamp, body)
	for _, candidate := range header.Signatures {
		if hmac.Equal([]byte(expected), []byte(strings.ToLower(candidate))) {
			return nil
		}
	}
	return ErrSignatureMismatch
}
