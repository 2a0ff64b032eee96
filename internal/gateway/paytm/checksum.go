// Package paytm implements the token-style Paytm gateway: the AES-wrapped SHA-256
// checksum, form-parameter signing and the initiate/status API client.
package paytm

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// ChecksumField is the posted form field that carries the signature.
const ChecksumField = "CHECKSUMHASH"

const (
	iv         = "@@@@&&&&####$$$$"
	saltLength = 4
	saltChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var errPadding = errors.New("paytm checksum: bad padding")

// GenerateSignature signs body with the merchant key using a fresh random salt.
func GenerateSignature(body, key string) (string, error) {
	salt, err := randomSalt()
	if err != nil {
		return "", err
	}
	return signWithSalt(body, key, salt)
}

// VerifySignature reports whether signature was produced for body under key.
func VerifySignature(body, key, signature string) bool {
	hash, err := decrypt(signature, key)
	if err != nil || len(hash) <= saltLength {
		return false
	}
	salt := hash[len(hash)-saltLength:]
	want := hashWithSalt(body, salt)
	return subtle.ConstantTimeCompare([]byte(want), []byte(hash)) == 1
}

// ParamsString joins the values of params ordered by key, skipping CHECKSUMHASH.
// A literal "null" value signs as empty.
func ParamsString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == ChecksumField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, len(keys))
	for i, k := range keys {
		v := params[k]
		if strings.EqualFold(v, "null") {
			v = ""
		}
		values[i] = v
	}
	return strings.Join(values, "|")
}

// GenerateFormSignature signs a parameter map.
func GenerateFormSignature(params map[string]string, key string) (string, error) {
	return GenerateSignature(ParamsString(params), key)
}

// VerifyForm checks the CHECKSUMHASH field of a posted callback form.
func VerifyForm(params map[string]string, key string) bool {
	sig, ok := params[ChecksumField]
	if !ok || sig == "" {
		return false
	}
	return VerifySignature(ParamsString(params), key, sig)
}

func signWithSalt(body, key, salt string) (string, error) {
	return encrypt(hashWithSalt(body, salt), key)
}

func hashWithSalt(body, salt string) string {
	sum := sha256.Sum256([]byte(body + "|" + salt))
	return hex.EncodeToString(sum[:]) + salt
}

func randomSalt() (string, error) {
	out := make([]byte, saltLength)
	max := big.NewInt(int64(len(saltChars)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("paytm checksum salt: %w", err)
		}
		out[i] = saltChars[n.Int64()]
	}
	return string(out), nil
}

func encrypt(plain, key string) (string, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("paytm checksum: %w", err)
	}
	padded := pkcs7Pad([]byte(plain), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, []byte(iv)).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func decrypt(encoded, key string) (string, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("paytm checksum: %w", err)
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("paytm checksum: %w", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", errPadding
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, []byte(iv)).CryptBlocks(out, raw)
	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errPadding
		}
	}
	return b[:len(b)-n], nil
}
