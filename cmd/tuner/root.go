package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/tuner/internal/config"
	"github.com/MikeSquared-Agency/tuner/internal/finetune"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tuner",
		Short:         "Manage OpenAI fine-tuning jobs",
		Long:          "tuner uploads JSONL training files, starts fine-tuning jobs and tracks them, from a browser UI or the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("api-key", "", "provider API key (default $OPENAI_API_KEY)")
	root.PersistentFlags().String("base-url", "", "provider base URL (default $TUNER_BASE_URL)")

	root.AddCommand(
		newServeCmd(),
		newModelsCmd(),
		newValidateCmd(),
		newUploadCmd(),
		newCreateCmd(),
		newStatusCmd(),
		newJobsCmd(),
		newCancelCmd(),
	)
	return root
}

// clientFromFlags builds a provider client and credential for the one-shot
// subcommands. Logs go to stderr so stdout stays machine-readable.
func clientFromFlags(cmd *cobra.Command) (*finetune.Client, finetune.Credential) {
	cfg := config.Load()
	setupLogging(cfg.LogLevel, cmd.ErrOrStderr())

	if u, _ := cmd.Flags().GetString("base-url"); u != "" {
		cfg.BaseURL = u
	}
	key, _ := cmd.Flags().GetString("api-key")
	key = strings.TrimSpace(key)
	if key == "" {
		key = strings.TrimSpace(cfg.DefaultAPIKey)
	}

	client := finetune.NewClient(cfg.BaseURL,
		finetune.WithTimeouts(cfg.RequestTimeout, cfg.UploadTimeout),
		finetune.WithLogger(slog.Default()),
	)
	return client, finetune.Credential(key)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
