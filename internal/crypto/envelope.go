// Package crypto provides authenticated at-rest encryption for stored SAP
// credentials. Envelopes are AES-256-GCM with a random 12-byte IV per
// encryption and a 16-byte authentication tag, all hex-encoded.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	envelopeVersion = 1
	ivSize          = 12
	tagSize         = 16
	keySize         = 32
)

var (
	// ErrLegacyEnvelope is returned for the retired nonce-based envelope
	// shape. Those blobs must be re-encrypted by the admin layer; decrypting
	// them here would silently misinterpret the ciphertext layout.
	ErrLegacyEnvelope = errors.New("legacy credential envelope: re-encryption required")

	// ErrDecryptFailed is returned when the ciphertext or tag fails
	// authentication. Plaintext is never returned on a failed tag check.
	ErrDecryptFailed = errors.New("credential decryption failed")
)

// Envelope is the persisted credential blob written by the admin layer and
// read by the proxy core.
type Envelope struct {
	Version    int    `json:"v"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`

	// Nonce is only ever present on legacy blobs and triggers rejection.
	Nonce string `json:"nonce,omitempty"`
}

// Encryptor encrypts and decrypts credential envelopes with a fixed 256-bit
// key. Construct once at startup and inject where credentials are handled.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an Encryptor from a hex-encoded 32-byte key.
func NewEncryptor(hexKey string) (*Encryptor, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt seals plaintext into a JSON envelope string.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := e.aead.Seal(nil, iv, []byte(plaintext), nil)
	// GCM appends the tag to the ciphertext; the envelope stores them apart.
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	env := Envelope{
		Version:    envelopeVersion,
		IV:         hex.EncodeToString(iv),
		Ciphertext: hex.EncodeToString(ct),
		Tag:        hex.EncodeToString(tag),
	}
	out, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(out), nil
}

// Decrypt opens a JSON envelope string. Legacy envelopes (nonce field, no
// tag) are rejected with ErrLegacyEnvelope. Any tamper or corruption yields
// ErrDecryptFailed, never corrupted plaintext.
func (e *Encryptor) Decrypt(envelope string) (string, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(envelope), &env); err != nil {
		return "", fmt.Errorf("parse envelope: %w", err)
	}

	if env.Nonce != "" || env.Tag == "" {
		return "", ErrLegacyEnvelope
	}

	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != ivSize {
		return "", ErrDecryptFailed
	}
	ct, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return "", ErrDecryptFailed
	}
	tag, err := hex.DecodeString(env.Tag)
	if err != nil || len(tag) != tagSize {
		return "", ErrDecryptFailed
	}

	plaintext, err := e.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// GenerateKey returns a fresh hex-encoded 32-byte key, for first-run setup.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
