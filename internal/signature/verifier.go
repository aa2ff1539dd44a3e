// Package signature authenticates raw webhook bodies with an HMAC-SHA256
// shared secret.
//
// Three canonicalizations are tried in priority order: notification URL plus
// raw body, raw body alone, and compacted JSON. The last one is degraded:
// compaction can hide byte-level differences between what was signed and
// what was received.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"
)

type Method string

const (
	MethodNone        Method = "none"
	MethodURLAndBody  Method = "url_body"
	MethodBody        Method = "body"
	MethodCompactJSON Method = "compact_json"
	MethodProvider    Method = "provider_scheme"
	MethodBypass      Method = "unsigned_bypass"
)

// Degraded reports whether the method is accepted only as a fallback.
func (m Method) Degraded() bool {
	return m == MethodCompactJSON || m == MethodBypass
}

type Result struct {
	Valid  bool
	Method Method
	Reason string
}

func reject(reason string) Result {
	return Result{Valid: false, Method: MethodNone, Reason: reason}
}

type Options struct {
	// NotificationURL is the exact URL the provider was configured to call.
	NotificationURL string
	// RequireURL accepts only the URL-and-body canonicalization whenever a
	// notification URL is known.
	RequireURL bool
}

// Verify checks providedSignature, a base64 HMAC-SHA256, against rawBody.
func Verify(rawBody []byte, providedSignature, secret string, opts Options) Result {
	if secret == "" {
		return reject("webhook secret not configured")
	}
	if providedSignature == "" {
		return reject("missing signature header")
	}

	if opts.NotificationURL != "" {
		payload := make([]byte, 0, len(opts.NotificationURL)+len(rawBody))
		payload = append(payload, opts.NotificationURL...)
		payload = append(payload, rawBody...)
		if matches(payload, providedSignature, secret) {
			return Result{Valid: true, Method: MethodURLAndBody}
		}
		if opts.RequireURL {
			return reject("signature does not match notification url and body")
		}
	}

	if matches(rawBody, providedSignature, secret) {
		return Result{Valid: true, Method: MethodBody}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, rawBody); err == nil && !bytes.Equal(compact.Bytes(), rawBody) {
		if matches(compact.Bytes(), providedSignature, secret) {
			return Result{Valid: true, Method: MethodCompactJSON}
		}
	}

	return reject("signature mismatch")
}

// Sign returns the base64 HMAC-SHA256 of payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignWithURL signs the URL-and-body canonicalization.
func SignWithURL(notificationURL string, body []byte, secret string) string {
	return Sign(append([]byte(notificationURL), body...), secret)
}

func matches(payload []byte, provided, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(provided))
}

// CheckFreshness rejects event timestamps outside [now-maxAge, now+maxSkew].
// A zero timestamp is not checked.
func CheckFreshness(ts, now time.Time, maxAge, maxSkew time.Duration) (ok bool, reason string) {
	if ts.IsZero() {
		return true, ""
	}
	if maxAge > 0 && now.Sub(ts) > maxAge {
		return false, "event timestamp is stale"
	}
	if maxSkew > 0 && ts.Sub(now) > maxSkew {
		return false, "event timestamp is in the future"
	}
	return true, ""
}
