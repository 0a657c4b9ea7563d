package utils

import (
    "crypto/hmac"
    "crypto/sha256"
    "encoding/hex"
    "strings"
)

// SignPayload returns the hex HMAC-SHA256 of body under secret.  Payment
// webhooks carry it in the X-Signature header.
func SignPayload(secret string, body []byte) string {
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write(body)
    return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayload checks signature against body in constant time.  An
// optional "sha256=" prefix is accepted.
func VerifyPayload(secret string, body []byte, signature string) bool {
    if secret == "" || signature == "" {
        return false
    }
    signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
    got, err := hex.DecodeString(signature)
    if err != nil {
        return false
    }
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write(body)
    return hmac.Equal(got, mac.Sum(nil))
}
