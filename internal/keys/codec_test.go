package keys

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	for _, env := range []string{EnvLive, EnvTest} {
		raw, key, hash, err := Generate(env)
		if err != nil {
			t.Fatalf("Generate(%s): %v", env, err)
		}

		parsed, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", raw, err)
		}
		if parsed.Environment != env {
			t.Errorf("environment: got %q, want %q", parsed.Environment, env)
		}
		if parsed.ShortID != key.ShortID {
			t.Errorf("short id: got %q, want %q", parsed.ShortID, key.ShortID)
		}
		if parsed.Secret != key.Secret {
			t.Errorf("secret: got %q, want %q", parsed.Secret, key.Secret)
		}
		if Hash(parsed.Secret) != hash {
			t.Error("hash of parsed secret does not match the stored lookup hash")
		}
	}
}

func TestParseRejectsMalformedKeys(t *testing.T) {
	valid, _, _, err := Generate(EnvLive)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"wrong prefix", strings.Replace(valid, "s4k_", "sk_", 1)},
		{"missing environment", "s4k_" + strings.TrimPrefix(valid, "s4k_live_")},
		{"unknown environment", strings.Replace(valid, "_live_", "_prod_", 1)},
		{"too short", valid[:len(valid)-1]},
		{"too long", valid + "A"},
		{"bad charset", valid[:len(valid)-1] + "!"},
		{"jwt-looking", "eyJhbGciOiJIUzI1NiJ9.payload.sig"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.key); !errors.Is(err, ErrMalformed) {
				t.Errorf("Parse(%q): got %v, want ErrMalformed", tc.key, err)
			}
		})
	}
}

func TestHashDeterministic(t *testing.T) {
	if Hash("secret-a") != Hash("secret-a") {
		t.Error("hash is not deterministic")
	}
	if Hash("secret-a") == Hash("secret-b") {
		t.Error("distinct secrets hashed to the same value")
	}
	if len(Hash("anything")) != 64 {
		t.Error("expected a 64-char hex sha256 digest")
	}
}

func TestMask(t *testing.T) {
	raw := Format(EnvLive, "Ab12Cd34", strings.Repeat("x", 36)+"Z9y8")
	masked := Mask(raw)

	if !strings.HasPrefix(masked, "s4k_live_Ab12Cd34...") {
		t.Errorf("masked form %q missing visible prefix", masked)
	}
	if !strings.HasSuffix(masked, "Z9y8") {
		t.Errorf("masked form %q missing visible suffix", masked)
	}
	if strings.Contains(masked, strings.Repeat("x", 8)) {
		t.Errorf("masked form %q leaks secret content", masked)
	}

	// Malformed input never panics and never echoes more than 4 chars.
	if got := Mask("xy"); got != "**" {
		t.Errorf("Mask(short): got %q", got)
	}
	if got := Mask("totally-wrong"); got != "tota****" {
		t.Errorf("Mask(malformed): got %q", got)
	}
}
