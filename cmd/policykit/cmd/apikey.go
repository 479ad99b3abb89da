package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/solatis/policykit/internal/core/auth"
	"github.com/solatis/policykit/internal/core/config"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Issue and revoke API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a new API key (printed once)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		principal, _ := cmd.Flags().GetString("principal")
		name, _ := cmd.Flags().GetString("name")
		secretID, _ := cmd.Flags().GetString("secret-id")

		authenticator, closeDB, err := openAuthenticator(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		if secretID == "" {
			secretID, err = defaultSecretID()
			if err != nil {
				return err
			}
		}

		issued, err := authenticator.IssueKey(ctx, secretID, principal, name)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "id:  %s\n", issued.ID)
		fmt.Fprintf(out, "key: %s\n", issued.Key)
		return nil
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		authenticator, closeDB, err := openAuthenticator(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := authenticator.RevokeKey(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd)
	apikeyCreateCmd.Flags().String("principal", "", "identity the key authenticates as")
	apikeyCreateCmd.Flags().String("name", "", "free-form label")
	apikeyCreateCmd.Flags().String("secret-id", "", "HMAC secret to bind the key to (required when several are configured)")
	_ = apikeyCreateCmd.MarkFlagRequired("principal")
}

func openAuthenticator(ctx context.Context) (*auth.Authenticator, func(), error) {
	secrets, err := config.HMACSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	database, queries, err := openDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := requireMigrated(ctx, database); err != nil {
		database.Close()
		return nil, nil, err
	}
	return auth.NewAuthenticator(secrets, queries), func() { database.Close() }, nil
}

// defaultSecretID picks the only configured secret.
func defaultSecretID() (string, error) {
	secrets, err := config.HMACSecrets()
	if err != nil {
		return "", err
	}
	ids := make([]string, 0, len(secrets))
	for id := range secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no HMAC secrets configured (set %s environment variable)", config.EnvHMACSecret)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%d HMAC secrets configured, choose one with --secret-id: %v", len(ids), ids)
	}
}
