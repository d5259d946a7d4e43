// Package service implements the enhancement orchestration business logic:
// webhook admission, context gathering, synthesis, outbound updates, and job
// lifecycle tracking.
package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/ticketwise/enhancer/internal/errors"
)

const (
	signaturePrefix = "sha256="
	// replayWindow bounds how far a webhook timestamp may drift from now in
	// either direction.
	replayWindow = 10 * time.Minute
)

// ComputeSignature returns the hex HMAC-SHA256 of body under secret, in the
// header format external systems send: "sha256=<hex>".
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature header against the HMAC-SHA256 of the
// raw request body. Comparison is constant-time. Pure validation: the caller
// logs the outcome once a correlation id is minted.
func VerifySignature(body []byte, header, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return errors.Authentication("signing secret unavailable")
	}
	if header == "" {
		return errors.Authentication("missing signature header")
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return errors.Authentication("malformed signature header")
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return errors.Authentication("signature is not valid hex")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return errors.Authentication("signature mismatch")
	}
	return nil
}

// VerifyTimestamp validates an optional unix-seconds timestamp header against
// the replay window. An absent header is accepted; a malformed or
// out-of-window one is rejected.
func VerifyTimestamp(header string, now time.Time) error {
	if header == "" {
		return nil
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64)
	if err != nil {
		return errors.Replay("malformed timestamp header")
	}
	sent := time.Unix(ts, 0)
	drift := now.Sub(sent)
	if drift < 0 {
		drift = -drift
	}
	if drift > replayWindow {
		return errors.Replayf("timestamp outside ±%s window", replayWindow)
	}
	return nil
}
