package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrBadSignature means a webhook notification failed HMAC validation.
var ErrBadSignature = errors.New("invalid webhook signature")

// VerifyWebhookSignature validates the provider's x-signature header
// ("ts=...,v1=...") against the configured secret. The signed manifest is
// the provider's documented "id:<dataID>;request-id:<requestID>;ts:<ts>;"
// template. The browser redirect alone is spoofable; the webhook is the
// trustworthy confirmation path when a secret is configured.
func VerifyWebhookSignature(secret, signatureHeader, requestID, dataID string) error {
	if secret == "" {
		return fmt.Errorf("%w: no webhook secret configured", ErrBadSignature)
	}

	var ts, v1 string
	for _, part := range strings.Split(signatureHeader, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if ts == "" || v1 == "" {
		return fmt.Errorf("%w: malformed signature header", ErrBadSignature)
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(v1)) {
		return ErrBadSignature
	}
	return nil
}
