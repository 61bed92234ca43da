package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/tuner/internal/finetune"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List base models the account can fine-tune",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cred := clientFromFlags(cmd)
			models, err := client.ListBaseModels(cmd.Context(), cred)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"models": models, "default": finetune.DefaultBaseModel})
		},
	}
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a JSONL training file locally without uploading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read training file: %w", err)
			}
			if err := finetune.ValidateTrainingFile(data); err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("preview")
			lines, remaining := finetune.Preview(data, n)
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"file":      filepath.Base(args[0]),
				"valid":     true,
				"preview":   lines,
				"remaining": remaining,
			})
		},
	}
	cmd.Flags().Int("preview", 5, "number of lines to preview")
	return cmd
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE",
		Short: "Validate and upload a JSONL training file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read training file: %w", err)
			}
			client, cred := clientFromFlags(cmd)
			fileID, err := client.UploadTrainingFile(cmd.Context(), cred, data, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"file_id": fileID})
		},
	}
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a fine-tuning job from an uploaded file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fileID, _ := cmd.Flags().GetString("file-id")
			model, _ := cmd.Flags().GetString("model")
			client, cred := clientFromFlags(cmd)
			job, err := client.CreateJob(cmd.Context(), cred, fileID, model)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
	cmd.Flags().String("file-id", "", "id of an uploaded training file")
	cmd.Flags().String("model", finetune.DefaultBaseModel, "base model to fine-tune")
	_ = cmd.MarkFlagRequired("file-id")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cred := clientFromFlags(cmd)
			job, err := client.GetJobStatus(cmd.Context(), cred, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}

func newJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the account's fine-tuning jobs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cred := clientFromFlags(cmd)
			jobs, err := client.ListJobs(cmd.Context(), cred)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"jobs": jobs, "count": len(jobs)})
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a job that has not finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cred := clientFromFlags(cmd)
			job, err := client.CancelJob(cmd.Context(), cred, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}
