package svix

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Signature header names attached to every delivery.
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"
)

const (
	secretPrefix       = "whsec_"
	signatureVersion   = "v1"
	timestampTolerance = 5 * time.Minute
)

// Verification error definitions
var (
	ErrRequiredHeaders     = errors.New("missing required webhook headers")
	ErrInvalidHeaders      = errors.New("invalid webhook headers")
	ErrNoMatchingSignature = errors.New("no matching signature found")
	ErrMessageTimestamp    = errors.New("message timestamp too old or too new")
)

// Webhook signs and verifies delivery payloads with an endpoint's
// signing secret. Secrets are "whsec_"-prefixed base64 strings; the
// signed content is "<id>.<timestamp>.<payload>" and signatures are
// "v1,<base64 HMAC-SHA256>".
type Webhook struct {
	key []byte
}

// NewWebhook creates a signer/verifier from a signing secret. The
// "whsec_" prefix is optional on input.
func NewWebhook(secret string) (*Webhook, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid webhook secret: %w", err)
	}
	return &Webhook{key: key}, nil
}

// Sign computes the signature for a payload.
func (w *Webhook) Sign(msgID string, timestamp time.Time, payload []byte) string {
	mac := hmac.New(sha256.New, w.key)
	mac.Write([]byte(msgID))
	mac.Write([]byte("."))
	mac.Write([]byte(strconv.FormatInt(timestamp.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)

	return signatureVersion + "," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a payload against the webhook headers, enforcing the
// timestamp tolerance window.
func (w *Webhook) Verify(payload []byte, headers http.Header) error {
	return w.verify(payload, headers, true)
}

// VerifyIgnoringTimestamp checks a payload against the webhook headers
// without enforcing timestamp recency.
func (w *Webhook) VerifyIgnoringTimestamp(payload []byte, headers http.Header) error {
	return w.verify(payload, headers, false)
}

func (w *Webhook) verify(payload []byte, headers http.Header, enforceTolerance bool) error {
	msgID := headers.Get(HeaderWebhookID)
	msgTimestamp := headers.Get(HeaderWebhookTimestamp)
	msgSignature := headers.Get(HeaderWebhookSignature)
	if msgID == "" || msgTimestamp == "" || msgSignature == "" {
		return ErrRequiredHeaders
	}

	ts, err := parseTimestamp(msgTimestamp)
	if err != nil {
		return err
	}
	if enforceTolerance {
		if err := verifyTimestamp(ts); err != nil {
			return err
		}
	}

	expected := w.Sign(msgID, ts, payload)

	// The header may carry several space-delimited signatures, possibly
	// of different versions; any v1 match accepts the payload.
	for _, versioned := range strings.Split(msgSignature, " ") {
		parts := strings.SplitN(versioned, ",", 2)
		if len(parts) != 2 || parts[0] != signatureVersion {
			continue
		}
		if hmac.Equal([]byte(versioned), []byte(expected)) {
			return nil
		}
	}

	return ErrNoMatchingSignature
}

func parseTimestamp(value string) (time.Time, error) {
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, ErrInvalidHeaders
	}
	return time.Unix(unix, 0), nil
}

func verifyTimestamp(ts time.Time) error {
	now := time.Now()
	if math.Abs(now.Sub(ts).Seconds()) > timestampTolerance.Seconds() {
		return ErrMessageTimestamp
	}
	return nil
}
