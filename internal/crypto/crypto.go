package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// SealedPrefix marks a configuration value as AES-GCM sealed.
const SealedPrefix = "enc:"

// EncryptString seals plaintext with AES-256-GCM and returns base64(nonce|ciphertext).
func EncryptString(key []byte, plaintext string) (string, error) {
	if len(key) != 32 {
		return "", fmt.Errorf("encryption key must be 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString opens a value produced by EncryptString.
func DecryptString(key []byte, ciphertext string) (string, error) {
	if len(key) != 32 {
		return "", fmt.Errorf("decryption key must be 32 bytes")
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// Seal returns the prefixed form stored in configuration files.
func Seal(key []byte, plaintext string) (string, error) {
	enc, err := EncryptString(key, plaintext)
	if err != nil {
		return "", err
	}
	return SealedPrefix + enc, nil
}

// Unseal decrypts prefixed values and passes anything else through untouched.
func Unseal(key []byte, value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	return DecryptString(key, strings.TrimPrefix(value, SealedPrefix))
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}
