package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// HeaderSignature carries "sha256=<hex>" over "<timestamp>.<body>"
	HeaderSignature = "X-Signature"
	// HeaderTimestamp carries the RFC 3339 time the delivery was produced
	HeaderTimestamp = "X-Timestamp"
	// HeaderEventType names the payload type for cheap receiver routing
	HeaderEventType = "X-Event-Type"

	signaturePrefix = "sha256="
)

// Signer computes and verifies webhook payload signatures. The signature
// covers the timestamp as well as the body, so a captured delivery cannot be
// replayed outside the receiver's acceptance window.
type Signer struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewSigner creates a payload signer. An empty secret disables signing.
func NewSigner(secret string, maxAge time.Duration) *Signer {
	return &Signer{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Enabled reports whether deliveries will be signed
func (s *Signer) Enabled() bool {
	return len(s.secret) > 0
}

// Sign returns the signature and timestamp headers for one payload
func (s *Signer) Sign(body []byte) (signature, timestamp string) {
	ts := s.now().UTC().Format(time.RFC3339)
	return signaturePrefix + s.compute(ts, body), ts
}

// Verify checks a received signature against the body and timestamp. It is
// what a webhook receiver runs; kept here so both ends share one definition
// of the scheme.
func (s *Signer) Verify(body []byte, signature, timestamp string) error {
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fmt.Errorf("invalid signature timestamp: %w", err)
	}

	age := s.now().Sub(ts)
	if s.maxAge > 0 && (age > s.maxAge || age < -s.maxAge) {
		return fmt.Errorf("signature timestamp outside acceptance window")
	}

	expected := signaturePrefix + s.compute(timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func (s *Signer) compute(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
