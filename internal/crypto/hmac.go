package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
)

// Credentials are the L2 API credentials issued by the CLOB.
type Credentials struct {
	Key        string
	Secret     string // base64, URL-safe alphabet
	Passphrase string
}

// Valid reports whether all three parts are set.
func (c Credentials) Valid() bool {
	return c.Key != "" && c.Secret != "" && c.Passphrase != ""
}

// L2Headers signs one request. The signature is
// base64url(HMAC-SHA256(secret, timestamp+method+path+body)).
func (c Credentials) L2Headers(address, method, path, body string, unixTS int64) (map[string]string, error) {
	secret, err := decodeSecret(c.Secret)
	if err != nil {
		return nil, err
	}
	ts := strconv.FormatInt(unixTS, 10)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + method + path + body))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    c.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": c.Passphrase,
		"POLY_SIGNATURE":  sig,
	}, nil
}

// String redacts the secret parts.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{key=%s, secret=%s}", redact(c.Key), redact(c.Secret))
}

func decodeSecret(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("crypto/hmac: empty secret")
	}
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("crypto/hmac: secret is not base64")
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
