package crypto

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestEncryptor(t *testing.T) *Encryptor {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	return enc
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc := newTestEncryptor(t)

	inputs := []string{
		"",
		"hunter2",
		`{"client_id":"abc","client_secret":"s3cret"}`,
		"üñîçødé ✓ payload with spaces",
		strings.Repeat("x", 4096),
	}

	for _, in := range inputs {
		sealed, err := enc.Encrypt(in)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", in, err)
		}
		out, err := enc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if out != in {
			t.Errorf("round trip: got %q, want %q", out, in)
		}
	}
}

func TestEncryptProducesUniqueIVs(t *testing.T) {
	enc := newTestEncryptor(t)

	a, _ := enc.Encrypt("same plaintext")
	b, _ := enc.Encrypt("same plaintext")
	if a == b {
		t.Fatal("two encryptions of the same plaintext produced identical envelopes")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	enc := newTestEncryptor(t)

	sealed, err := enc.Encrypt("sensitive")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal([]byte(sealed), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	flipHex := func(s string) string {
		raw, _ := hex.DecodeString(s)
		raw[0] ^= 0x01
		return hex.EncodeToString(raw)
	}

	// Flip a bit in the ciphertext.
	tampered := env
	tampered.Ciphertext = flipHex(env.Ciphertext)
	body, _ := json.Marshal(tampered)
	if _, err := enc.Decrypt(string(body)); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("tampered ciphertext: got %v, want ErrDecryptFailed", err)
	}

	// Flip a bit in the tag.
	tampered = env
	tampered.Tag = flipHex(env.Tag)
	body, _ = json.Marshal(tampered)
	if _, err := enc.Decrypt(string(body)); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("tampered tag: got %v, want ErrDecryptFailed", err)
	}
}

func TestDecryptRejectsLegacyEnvelope(t *testing.T) {
	enc := newTestEncryptor(t)

	legacy := `{"nonce":"00112233445566778899aabb","ciphertext":"deadbeef"}`
	if _, err := enc.Decrypt(legacy); !errors.Is(err, ErrLegacyEnvelope) {
		t.Fatalf("legacy envelope: got %v, want ErrLegacyEnvelope", err)
	}

	// An envelope missing the tag is also treated as legacy, not decrypted.
	noTag := `{"v":1,"iv":"00112233445566778899aabb","ciphertext":"deadbeef"}`
	if _, err := enc.Decrypt(noTag); !errors.Is(err, ErrLegacyEnvelope) {
		t.Fatalf("missing tag: got %v, want ErrLegacyEnvelope", err)
	}
}

func TestNewEncryptorRejectsBadKeys(t *testing.T) {
	cases := []string{
		"",
		"not-hex",
		"deadbeef", // too short
	}
	for _, key := range cases {
		if _, err := NewEncryptor(key); err == nil {
			t.Errorf("NewEncryptor(%q): expected error", key)
		}
	}
}
