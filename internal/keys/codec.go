// Package keys implements the external API key format:
//
//	s4k_<environment>_<8 char short id><40 char secret>
//
// where the id and secret are base62. The raw key is shown once at creation;
// only the SHA-256 hash of the secret part is stored for lookup.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	Prefix = "s4k"

	EnvLive = "live"
	EnvTest = "test"

	shortIDLen = 8
	secretLen  = 40

	base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// ErrMalformed indicates the presented key does not have the structural
// format of an API key. It is distinct from an unknown key: malformed input
// is a 400, an unknown key a 401.
var ErrMalformed = errors.New("malformed api key")

// Key is the parsed form of an external API key string.
type Key struct {
	Environment string
	ShortID     string
	Secret      string
}

// Parse splits and validates a presented key string.
func Parse(raw string) (*Key, error) {
	parts := strings.SplitN(raw, "_", 3)
	if len(parts) != 3 || parts[0] != Prefix {
		return nil, ErrMalformed
	}
	env := parts[1]
	if env != EnvLive && env != EnvTest {
		return nil, ErrMalformed
	}
	body := parts[2]
	if len(body) != shortIDLen+secretLen || !isBase62(body) {
		return nil, ErrMalformed
	}
	return &Key{
		Environment: env,
		ShortID:     body[:shortIDLen],
		Secret:      body[shortIDLen:],
	}, nil
}

// Format assembles a key string from its parts.
func Format(environment, shortID, secret string) string {
	return fmt.Sprintf("%s_%s_%s%s", Prefix, environment, shortID, secret)
}

// Generate mints a fresh key for the given environment. It returns the raw
// key (shown once), its parsed form, and the lookup hash to persist.
func Generate(environment string) (raw string, key *Key, lookupHash string, err error) {
	if environment != EnvLive && environment != EnvTest {
		return "", nil, "", fmt.Errorf("invalid environment %q", environment)
	}
	shortID, err := randomBase62(shortIDLen)
	if err != nil {
		return "", nil, "", fmt.Errorf("generate short id: %w", err)
	}
	secret, err := randomBase62(secretLen)
	if err != nil {
		return "", nil, "", fmt.Errorf("generate secret: %w", err)
	}
	key = &Key{Environment: environment, ShortID: shortID, Secret: secret}
	return Format(environment, shortID, secret), key, Hash(secret), nil
}

// Hash computes the deterministic one-way lookup digest of a key secret.
// This is the only value the database ever stores or is queried by.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Mask produces the display form of a raw key: the prefix, environment, and
// short id stay visible, the secret is reduced to its last four characters.
func Mask(raw string) string {
	key, err := Parse(raw)
	if err != nil {
		// Not structurally a key; blank out everything past a short prefix.
		if len(raw) <= 4 {
			return strings.Repeat("*", len(raw))
		}
		return raw[:4] + strings.Repeat("*", 4)
	}
	return fmt.Sprintf("%s_%s_%s...%s", Prefix, key.Environment, key.ShortID, key.Secret[len(key.Secret)-4:])
}

func isBase62(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(base62Alphabet, r) {
			return false
		}
	}
	return true
}

func randomBase62(n int) (string, error) {
	max := big.NewInt(int64(len(base62Alphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(base62Alphabet[idx.Int64()])
	}
	return b.String(), nil
}
