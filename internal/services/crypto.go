package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// CryptoService seals phone numbers at rest with AES-256-GCM. The key is
// the SHA-256 of APP_SECRET. Hash gives the deterministic lookup key used
// to match the same number across accounts.
type CryptoService struct {
	aead   cipher.AEAD
	macKey []byte
}

func NewCryptoService(secret string) (*CryptoService, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	mac := sha256.Sum256([]byte("phone-hash:" + secret))
	return &CryptoService{aead: aead, macKey: mac[:]}, nil
}

// Hash returns the hex HMAC-SHA256 of a normalized phone number.
func (c *CryptoService) Hash(phone string) string {
	h := hmac.New(sha256.New, c.macKey)
	h.Write([]byte(phone))
	return hex.EncodeToString(h.Sum(nil))
}

// Encrypt returns base64(nonce || ciphertext).
func (c *CryptoService) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *CryptoService) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	n := c.aead.NonceSize()
	if len(data) < n {
		return "", errors.New("ciphertext too short")
	}

	plaintext, err := c.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// MaskPhone keeps the last four digits for logs and responses.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
