package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the HTTP header carrying the webhook signature.
const SignatureHeader = "X-Gateway-Signature"

// DefaultTolerance bounds how old a signed timestamp may be before the
// payload is rejected as a possible replay.
const DefaultTolerance = 5 * time.Minute

// ComputeSignature returns the HMAC-SHA256 signature over the timestamped
// payload, the scheme the processor signs webhook deliveries with. Tests
// and local tooling use it to produce valid headers.
func ComputeSignature(t time.Time, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", t.Unix())
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignPayload builds a complete signature header value for payload.
func SignPayload(t time.Time, payload []byte, secret string) string {
	sig := ComputeSignature(t, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", t.Unix(), hex.EncodeToString(sig))
}

// verifySignature checks header against payload. The header has the form
// "t=<unix>,v1=<hex>[,v1=<hex>...]"; any matching v1 entry passes, so the
// processor can rotate secrets without dropping deliveries.
func verifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrInvalidSignature
	}

	var timestamp time.Time
	var candidates [][]byte

	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			unix, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = time.Unix(unix, 0)
		case "v1":
			sig, err := hex.DecodeString(v)
			if err != nil {
				continue
			}
			candidates = append(candidates, sig)
		}
	}

	if timestamp.IsZero() || len(candidates) == 0 {
		return ErrInvalidSignature
	}

	if tolerance > 0 {
		age := now.Sub(timestamp)
		if age > tolerance || age < -tolerance {
			return ErrInvalidSignature
		}
	}

	expected := ComputeSignature(timestamp, payload, secret)
	for _, candidate := range candidates {
		if hmac.Equal(expected, candidate) {
			return nil
		}
	}

	return ErrInvalidSignature
}
