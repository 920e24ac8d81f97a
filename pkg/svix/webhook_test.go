package svix

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

func signedHeaders(t *testing.T, wh *Webhook, msgID string, ts time.Time, payload []byte) http.Header {
	t.Helper()
	headers := http.Header{}
	headers.Set(HeaderWebhookID, msgID)
	headers.Set(HeaderWebhookTimestamp, strconv.FormatInt(ts.Unix(), 10))
	headers.Set(HeaderWebhookSignature, wh.Sign(msgID, ts, payload))
	return headers
}

func TestNewWebhook_AcceptsPrefixedAndBareSecrets(t *testing.T) {
	prefixed, err := NewWebhook(testSecret)
	require.NoError(t, err)

	bare, err := NewWebhook("MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw")
	require.NoError(t, err)

	ts := time.Now()
	payload := []byte(`{"hello":"world"}`)
	assert.Equal(t, prefixed.Sign("msg_1", ts, payload), bare.Sign("msg_1", ts, payload))
}

func TestNewWebhook_RejectsInvalidBase64(t *testing.T) {
	_, err := NewWebhook("whsec_not-valid-base64!!!")
	assert.Error(t, err)
}

func TestWebhook_SignFormat(t *testing.T) {
	wh, err := NewWebhook(testSecret)
	require.NoError(t, err)

	sig := wh.Sign("msg_1", time.Now(), []byte(`{}`))
	require.True(t, len(sig) > 3)
	assert.Equal(t, "v1,", sig[:3])

	_, err = base64.StdEncoding.DecodeString(sig[3:])
	assert.NoError(t, err)
}

func TestWebhook_VerifyRoundtrip(t *testing.T) {
	wh, err := NewWebhook(testSecret)
	require.NoError(t, err)

	payload := []byte(`{"event_type":"invoice.paid"}`)
	headers := signedHeaders(t, wh, "msg_1", time.Now(), payload)

	assert.NoError(t, wh.Verify(payload, headers))
}

func TestWebhook_VerifyRejectsTamperedPayload(t *testing.T) {
	wh, err := NewWebhook(testSecret)
	require.NoError(t, err)

	payload := []byte(`{"amount":100}`)
	headers := signedHeaders(t, wh, "msg_1", time.Now(), payload)

	err = wh.Verify([]byte(`{"amount":999}`), headers)
	assert.ErrorIs(t, err, ErrNoMatchingSignature)
}

func TestWebhook_VerifyRejectsWrongSecret(t *testing.T) {
	signer, err := NewWebhook(testSecret)
	require.NoError(t, err)
	verifier, err := NewWebhook("whsec_" + base64.StdEncoding.EncodeToString([]byte("a different key entirely!")))
	require.NoError(t, err)

	payload := []byte(`{}`)
	headers := signedHeaders(t, signer, "msg_1", time.Now(), payload)

	assert.ErrorIs(t, verifier.Verify(payload, headers), ErrNoMatchingSignature)
}

func TestWebhook_VerifyMissingHeaders(t *testing.T) {
	wh, err := NewWebhook(testSecret)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set(HeaderWebhookID, "msg_1")

	assert.ErrorIs(t, wh.Verify([]byte(`{}`), headers), ErrRequiredHeaders)
}

func TestWebhook_VerifyMalformedTimestamp(t *testing.T) {
	wh, err := NewWebhook(testSecret)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set(HeaderWebhookID, "msg_1")
	headers.Set(HeaderWebhookTimestamp, "not-a-unix-time")
	headers.Set(HeaderWebhookSignature, "v1,AAAA")

	assert.ErrorIs(t, wh.Verify([]byte(`{}`), headers), ErrInvalidHeaders)
}

func TestWebhook_VerifyStaleTimestamp(t *testing.T) {
	wh, err := NewWebhook(testSecret)
	require.NoError(t, err)

	payload := []byte(`{}`)
	stale := time.Now().Add(-10 * time.Minute)
	headers := signedHeaders(t, wh, "msg_1", stale, payload)

	assert.ErrorIs(t, wh.Verify(payload, headers), ErrMessageTimestamp)

	// The same delivery passes when recency is not enforced
	assert.NoError(t, wh.VerifyIgnoringTimestamp(payload, headers))
}

func TestWebhook_VerifyMultipleSignatures(t *testing.T) {
	wh, err := NewWebhook(testSecret)
	require.NoError(t, err)

	payload := []byte(`{}`)
	ts := time.Now()
	good := wh.Sign("msg_1", ts, payload)

	// Old-key and unknown-version signatures share the header after a
	// secret rotation; any valid v1 entry accepts the payload
	combined := fmt.Sprintf("v2,bm90LXYx %s v1,c3RhbGUta2V5LXNpZw==", good)

	headers := http.Header{}
	headers.Set(HeaderWebhookID, "msg_1")
	headers.Set(HeaderWebhookTimestamp, strconv.FormatInt(ts.Unix(), 10))
	headers.Set(HeaderWebhookSignature, combined)

	assert.NoError(t, wh.Verify(payload, headers))
}
