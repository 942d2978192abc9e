package main

import (
	"context"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/api"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/errors"
)

var emergencyCmd = &cobra.Command{
	Use:   "emergency-remove-collabs <folder-id>",
	Short: "Strip every collaboration from a folder's child folders",
	Long: `Abort switch for a run gone wrong: enumerate the child folders of the
given folder and delete every collaboration on each of them, with bounded
retries. Use this to cut pooled app users off from the destination tree
immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runEmergency,
}

func runEmergency(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}

	folderID := args[0]
	var confirmed bool
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Remove ALL collaborations under folder %s?", folderID),
	}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return err
	}
	if !confirmed {
		fmt.Println("aborted")
		return nil
	}

	ctx := cmd.Context()
	items, err := client.ListFolderItems(ctx, folderID)
	if err != nil {
		return fmt.Errorf("failed to list folder contents: %w", err)
	}

	policy := errors.RetryPolicy{
		MaxAttempts: cfg.Fix.RetryAttempts,
		BaseDelay:   cfg.Fix.RetryBaseDelay,
	}

	var failed int
	for _, item := range items {
		if !item.IsFolder() {
			continue
		}
		if err := stripFolder(ctx, client, policy, item.ID); err != nil {
			fmt.Println(color.RedString("✗"), "folder", item.ID+":", err)
			failed++
			continue
		}
		fmt.Println(color.GreenString("✓"), "folder", item.ID, "cleaned")
	}

	if failed > 0 {
		return fmt.Errorf("%d folders still have collaborations", failed)
	}
	return nil
}

func stripFolder(ctx context.Context, client *api.Client, policy errors.RetryPolicy, folderID string) error {
	return errors.RetryLinear(ctx, policy, func(int) error {
		collabs, err := client.ListFolderCollaborations(ctx, folderID)
		if err != nil {
			return err
		}
		for _, collab := range collabs {
			if err := client.DeleteCollaboration(ctx, "", collab.ID); err != nil {
				return err
			}
		}
		return nil
	}, nil)
}
