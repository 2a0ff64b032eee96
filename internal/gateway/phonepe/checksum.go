// Package phonepe implements the redirect-style PhonePe gateway: payload codec,
// X-VERIFY checksums and the pay/status API client.
package phonepe

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

const separator = "###"

// EncodePayload serializes v to JSON and base64-encodes it.
func EncodePayload(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePayload reverses EncodePayload into v.
func DecodePayload(b64 string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload json: %w", err)
	}
	return nil
}

// RequestChecksum signs an outbound request body for the given endpoint path:
// SHA256(SHA256(SHA256(b64) ++ endpoint) ++ "###" ++ idx ++ salt) ++ "###" ++ idx.
func RequestChecksum(payloadB64, endpoint, saltKey string, saltIndex int) string {
	idx := strconv.Itoa(saltIndex)
	bound := sha256Hex(sha256Hex(payloadB64) + endpoint)
	return sha256Hex(bound+separator+idx+saltKey) + separator + idx
}

// ResponseChecksum signs a base64 response payload.
func ResponseChecksum(payloadB64, saltKey string, saltIndex int) string {
	return sha256Hex(payloadB64+saltKey) + separator + strconv.Itoa(saltIndex)
}

// VerifyResponse reports whether checksum matches the payload byte for byte.
func VerifyResponse(payloadB64, checksum, saltKey string, saltIndex int) bool {
	want := ResponseChecksum(payloadB64, saltKey, saltIndex)
	return subtle.ConstantTimeCompare([]byte(want), []byte(checksum)) == 1
}

// StatusChecksum signs a status-poll path such as /pg/v1/status/{mid}/{txn}.
func StatusChecksum(path, saltKey string, saltIndex int) string {
	return sha256Hex(path+saltKey) + separator + strconv.Itoa(saltIndex)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
