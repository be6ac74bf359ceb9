package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signed webhook deliveries carry a header of the form
// "t=<unix>,v1=<hex hmac-sha256>"; the MAC covers "<unix>.<raw body>".
const signatureTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("webhook signature header missing")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
)

// VerifyWebhookSignature checks an inbound payload against its signature
// header. It must run on the raw, unparsed request body.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) error {
	return verifyWebhookSignatureAt(payload, signatureHeader, webhookSecret, time.Now())
}

func verifyWebhookSignatureAt(payload []byte, signatureHeader, webhookSecret string, now time.Time) error {
	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		return ErrMissingSignature
	}
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return ErrInvalidSignature
	}

	var timestamp int64
	var candidates [][]byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(strings.ToLower(v))
			if err != nil {
				continue
			}
			candidates = append(candidates, sig)
		}
	}

	if timestamp == 0 || len(candidates) == 0 {
		return ErrInvalidSignature
	}
	drift := now.Sub(time.Unix(timestamp, 0))
	if drift > signatureTolerance || drift < -signatureTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range candidates {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrInvalidSignature
}
