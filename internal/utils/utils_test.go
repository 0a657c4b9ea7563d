package utils

import (
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

func TestNewAccessToken(t *testing.T) {
    t.Parallel()

    tok, err := NewAccessToken("s3cret", "user-7", "ADMIN", time.Hour)
    if err != nil {
        t.Fatal(err)
    }
    parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
    if err != nil || !parsed.Valid {
        t.Fatalf("parse: %v", err)
    }
    claims := parsed.Claims.(jwt.MapClaims)
    if claims["sub"] != "user-7" || claims["role"] != "ADMIN" {
        t.Fatalf("claims = %v", claims)
    }
    if d := time.Until(tok.Exp); d < 59*time.Minute || d > time.Hour {
        t.Fatalf("exp in %s", d)
    }
}

func TestVerifyPayload(t *testing.T) {
    t.Parallel()

    body := []byte(`{"alias":"SEAT1","status":"PAID"}`)
    sig := SignPayload("k", body)

    tests := []struct {
        name   string
        secret string
        body   []byte
        sig    string
        want   bool
    }{
        {"valid", "k", body, sig, true},
        {"prefixed", "k", body, "sha256=" + sig, true},
        {"wrong secret", "other", body, sig, false},
        {"tampered body", "k", []byte(`{"alias":"SEAT2","status":"PAID"}`), sig, false},
        {"not hex", "k", body, "zz", false},
        {"empty signature", "k", body, "", false},
        {"no secret", "", body, sig, false},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            if got := VerifyPayload(tt.secret, tt.body, tt.sig); got != tt.want {
                t.Fatalf("VerifyPayload = %v, want %v", got, tt.want)
            }
        })
    }
}
