package ratelimit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// SignedIPHeader and VerificationHeader let a trusted reverse proxy hand the
// rate limiter a client IP that bypasses RemoteAddr (spec §4.7), signed so
// an untrusted caller can't spoof another client's bucket.
const (
	SignedIPHeader     = "X-SSR-Ip"
	VerificationHeader = "X-SSR-Ip-Verification"
)

// signIP computes the HMAC-SHA256 of ip under key, hex-encoded.
func signIP(key []byte, ip string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignedIP reports whether sig is the valid HMAC of ip under key, in
// constant time.
func verifySignedIP(key []byte, ip, sig string) bool {
	if ip == "" || sig == "" {
		return false
	}
	expected := signIP(key, ip)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// ClientIP resolves the rate-limit key for r: the signed X-SSR-Ip header
// when its accompanying verification header checks out under key, falling
// back to RemoteAddr otherwise. An unverifiable signed header is ignored
// rather than rejected, so a misconfigured or absent proxy never breaks
// the request path, only the override.
func ClientIP(r *http.Request, key []byte) string {
	if signedIP := r.Header.Get(SignedIPHeader); signedIP != "" && len(key) > 0 {
		sig := r.Header.Get(VerificationHeader)
		if verifySignedIP(key, signedIP, sig) {
			return signedIP
		}
	}
	return r.RemoteAddr
}
