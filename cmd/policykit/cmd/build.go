package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/policykit/internal/catalog"
	"github.com/solatis/policykit/internal/core/config"
	"github.com/solatis/policykit/internal/core/db"
	"github.com/solatis/policykit/internal/predicate"
	"github.com/solatis/policykit/internal/session"
)

var buildCmd = &cobra.Command{
	Use:   "build <form.json|->",
	Short: "Build a predicate from form state",
	Long: `Build reads form state JSON and prints the predicate it produces.

Reference data comes from --session (a catalog seed file) when given, from
the configured backend or database otherwise. Invalid fields are printed to
stderr and the command exits non-zero.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

var parseCmd = &cobra.Command{
	Use:   "parse <predicate.json|->",
	Short: "Reconstruct form state from a predicate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		form, err := predicate.Parse(data)
		if err != nil {
			return err
		}
		return writeIndented(cmd.OutOrStdout(), form)
	},
}

func init() {
	rootCmd.AddCommand(buildCmd, parseCmd)
	buildCmd.Flags().String("session", "", "catalog seed file to build against")
	buildCmd.Flags().String("timezone", "", "time zone for datetime values without offset (default predicate.timezone)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	form := predicate.NewFormState()
	if err := json.Unmarshal(data, &form); err != nil {
		return fmt.Errorf("invalid form state: %w", err)
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("timezone") {
		cfg.Predicate.Timezone, _ = cmd.Flags().GetString("timezone")
	}
	loc, err := cfg.Predicate.Location()
	if err != nil {
		return err
	}

	sess, err := openBuildSession(ctx, cmd, cfg, session.Options{Location: loc})
	if err != nil {
		return err
	}
	if err := sess.CheckBuildable(); err != nil {
		return err
	}

	pred, err := predicate.Build(sess, form)
	var verr *predicate.ValidationError
	if errors.As(err, &verr) {
		stderr := cmd.ErrOrStderr()
		for _, field := range verr.FieldNames() {
			fmt.Fprintf(stderr, "%s: %s\n", field, verr.Fields[field])
		}
		return verr
	}
	if err != nil {
		return err
	}
	return writeIndented(cmd.OutOrStdout(), pred)
}

// openBuildSession loads reference data from --session or the configured
// sources.
func openBuildSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts session.Options) (*session.Session, error) {
	if path, _ := cmd.Flags().GetString("session"); path != "" {
		snap, err := catalog.LoadSeed(path)
		if err != nil {
			return nil, err
		}
		return session.New(snap, opts), nil
	}

	var queries *db.Queries
	if cfg.Backend.BaseURL == "" {
		database, q, err := openDatabase(ctx)
		if err != nil {
			return nil, err
		}
		defer database.Close()
		queries = q
	}
	src, _, err := dataSources(cfg, queries)
	if err != nil {
		return nil, err
	}
	sess, err := session.Open(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	for _, kind := range catalog.Kinds {
		if ferr := sess.FetchError(kind); ferr != nil {
			logger.Warn("catalog unavailable", "catalog", kind, "error", ferr)
		}
	}
	return sess, nil
}

// readInput reads a file argument, or stdin for "-".
func readInput(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", arg, err)
	}
	return data, nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
