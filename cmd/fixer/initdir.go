package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/api"
)

var initDirCmd = &cobra.Command{
	Use:   "init-directory",
	Short: "Create the service-account destination folder tree",
	Long: `Create a timestamped root folder under the service account, pre-create
one subfolder per distinct uploader in the database, and add every pooled
app user as an editor collaborator on the root. Also lifts the service
account's storage quota so copies never fail on space.

The printed root folder id is what 'fixer fix --root-folder' expects.`,
	RunE: runInitDir,
}

func runInitDir(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	m, err := openManager(cfg, false)
	if err != nil {
		return err
	}
	defer m.Close()

	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	me, err := client.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if err := client.SetUnlimitedSpace(ctx, me.ID); err != nil {
		return fmt.Errorf("failed to lift service account quota: %w", err)
	}

	root, err := client.CreateSubfolder(ctx, "0", time.Now().Format("2006-01-02 15:04:05"))
	if err != nil {
		return fmt.Errorf("failed to create root folder: %w", err)
	}
	fmt.Println(color.GreenString("✓"), "root folder created, id:", color.CyanString(root.ID))

	uploaders, err := m.FixItems().DistinctUploaders(ctx)
	if err != nil {
		return err
	}
	for _, up := range uploaders {
		if _, err := client.CreateSubfolder(ctx, root.ID, up.Email); err != nil {
			return fmt.Errorf("failed to create folder for %s: %w", up.Email, err)
		}
	}
	fmt.Println(color.GreenString("✓"), "created", len(uploaders), "uploader folders")

	users, err := m.AppUsers().List(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if _, err := client.AddFolderCollaboration(ctx, root.ID, u.BoxUserID, api.RoleEditor); err != nil {
			return fmt.Errorf("failed to collaborate app user %s: %w", u.BoxUserID, err)
		}
	}
	fmt.Println(color.GreenString("✓"), "added", len(users), "app user collaborations")
	fmt.Println("service account folder initialize complete")
	return nil
}
