package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/michal-majer/s4kit/internal/crypto"
	"github.com/michal-majer/s4kit/internal/keys"
	"github.com/michal-majer/s4kit/internal/model"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke the API keys callers use against the S4Kit proxy.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		environment string
		label       string
		perMinute   int
		perDay      int
		expiresIn   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key. The raw key is shown once and cannot be retrieved again; grants must be added separately via the admin API.",
		Example: `  s4kit key create --env live --label "warehouse integration"
  s4kit key create --env test --per-minute 120 --per-day 5000
  s4kit key create --env test --expires-in 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(environment, label, perMinute, perDay, expiresIn)
		},
	}

	cmd.Flags().StringVar(&environment, "env", keys.EnvTest, "Key environment: live or test")
	cmd.Flags().StringVar(&label, "label", "", "Human-readable label for the key")
	cmd.Flags().IntVar(&perMinute, "per-minute", 60, "Per-minute rate limit (0 disables)")
	cmd.Flags().IntVar(&perDay, "per-day", 0, "Per-day rate limit (0 disables)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Key lifetime, e.g. 720h (0 for no expiry)")

	return cmd
}

func runKeyCreate(environment, label string, perMinute, perDay int, expiresIn time.Duration) error {
	if environment != keys.EnvLive && environment != keys.EnvTest {
		return fmt.Errorf("environment must be %q or %q", keys.EnvLive, keys.EnvTest)
	}

	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	raw, parsed, hash, err := keys.Generate(environment)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	rec := &model.APIKey{
		KeyHash:            hash,
		KeyMasked:          keys.Mask(raw),
		ShortID:            parsed.ShortID,
		Label:              label,
		Environment:        parsed.Environment,
		RateLimitPerMinute: perMinute,
		RateLimitPerDay:    perDay,
	}
	if expiresIn > 0 {
		exp := time.Now().UTC().Add(expiresIn)
		rec.ExpiresAt = &exp
	}

	if err := store.CreateAPIKey(context.Background(), rec); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  Key:      %s\n", raw)
	fmt.Printf("  Short ID: %s\n", rec.ShortID)
	fmt.Printf("  Env:      %s\n", rec.Environment)
	if label != "" {
		fmt.Printf("  Label:    %s\n", label)
	}
	if rec.ExpiresAt != nil {
		fmt.Printf("  Expires:  %s\n", rec.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	fmt.Println("  The key has no access until a grant is added via the admin API.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	apiKeys, err := store.ListAPIKeys(context.Background())
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	type keyRow struct {
		ShortID string `json:"short_id"`
		Masked  string `json:"masked"`
		Env     string `json:"env"`
		Label   string `json:"label"`
		Revoked bool   `json:"revoked"`
	}

	rows := make([]keyRow, len(apiKeys))
	for i, k := range apiKeys {
		rows[i] = keyRow{
			ShortID: k.ShortID,
			Masked:  k.KeyMasked,
			Env:     k.Environment,
			Label:   k.Label,
			Revoked: k.IsRevoked,
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No API keys configured. Use 's4kit key create' to create one.")
		return nil
	}

	fmt.Printf("%-10s %-24s %-6s %-24s %-8s\n", "SHORT ID", "KEY", "ENV", "LABEL", "REVOKED")
	fmt.Printf("%-10s %-24s %-6s %-24s %-8s\n", "--------", "---", "---", "-----", "-------")
	for _, k := range rows {
		revoked := "no"
		if k.Revoked {
			revoked = "yes"
		}
		fmt.Printf("%-10s %-24s %-6s %-24s %-8s\n", k.ShortID, k.Masked, k.Env, k.Label, revoked)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <short-id>",
		Short: "Revoke an API key by its short ID",
		Long:  "Irreversibly disable an API key, rejecting any further requests that present it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0])
		},
	}

	return cmd
}

func runKeyRevoke(shortID string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	apiKeys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	var matched *model.APIKey
	for i := range apiKeys {
		if apiKeys[i].ShortID == shortID {
			matched = &apiKeys[i]
			break
		}
	}
	if matched == nil {
		return fmt.Errorf("no API key found with short ID %q", shortID)
	}
	if matched.IsRevoked {
		return fmt.Errorf("API key %q is already revoked", shortID)
	}

	if err := store.RevokeAPIKey(ctx, matched.ID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %q\n", shortID)
	return nil
}

// ---------- keygen ----------

func newKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an encryption key for credential storage",
		Long:  "Generate a random 32-byte AES-256 key, hex encoded. Set it as S4KIT_ENCRYPTION_KEY before starting the server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			fmt.Println(key)
			return nil
		},
	}

	return cmd
}
