package billing

import (
	"errors"
	"fmt"
)

var ErrMalformedPayload = errors.New("webhook payload malformed")

// Authenticate verifies an inbound webhook body and decodes it into a
// typed Event. It is the only entry point for raw provider input; the
// reconciler never sees unauthenticated bytes.
func Authenticate(rawBody []byte, signatureHeader, webhookSecret string) (*Event, error) {
	if err := VerifyWebhookSignature(rawBody, signatureHeader, webhookSecret); err != nil {
		return nil, err
	}
	ev, err := DecodeEvent(rawBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return ev, nil
}

// IsAuthError reports whether err belongs to the authentication failure
// class (missing/invalid signature, undecodable payload).
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrMalformedPayload)
}
