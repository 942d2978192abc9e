package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

var appUserCmd = &cobra.Command{
	Use:   "appuser",
	Short: "Manage the delegated app user pool",
}

var appUserCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Mint app users on Box and record them in the pool",
	RunE:  runAppUserCreate,
}

var appUserDeleteCmd = &cobra.Command{
	Use:   "delete <box-user-id>",
	Short: "Remove an app user from the pool and from Box",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppUserDelete,
}

var appUserListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the app user pool",
	RunE:  runAppUserList,
}

var createCount int

func init() {
	appUserCreateCmd.Flags().IntVar(&createCount, "count", 1,
		"number of app users to create")
	appUserCmd.AddCommand(appUserCreateCmd)
	appUserCmd.AddCommand(appUserDeleteCmd)
	appUserCmd.AddCommand(appUserListCmd)
}

func runAppUserCreate(cmd *cobra.Command, args []string) error {
	if createCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

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
	var failures int
	for i := 0; i < createCount; i++ {
		name := "Box fixer-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		user, err := client.CreateAppUser(ctx, name)
		if err != nil {
			log.Error(err, "failed to create app user", "name", name)
			failures++
			continue
		}
		if err := m.AppUsers().Create(ctx, &state.AppUser{
			BoxUserID: user.ID,
			Login:     user.Login,
			Name:      user.Name,
		}); err != nil {
			log.Error(err, "failed to record app user", "box_user_id", user.ID)
			failures++
			continue
		}
		fmt.Println(color.GreenString("✓"), "created", user.Name, "("+user.ID+")")
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d app users failed", failures, createCount)
	}
	return nil
}

func runAppUserDelete(cmd *cobra.Command, args []string) error {
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

	ctx := cmd.Context()
	boxUserID := args[0]
	user, err := m.AppUsers().Get(ctx, boxUserID)
	if err != nil {
		return err
	}

	var confirmed bool
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Delete app user %s (%s) from the pool and from Box?", user.Name, user.BoxUserID),
	}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return err
	}
	if !confirmed {
		fmt.Println("aborted")
		return nil
	}

	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}

	if err := m.AppUsers().Delete(ctx, boxUserID); err != nil {
		return err
	}
	if err := client.DeleteUser(ctx, boxUserID); err != nil {
		return fmt.Errorf("removed from pool but remote delete failed: %w", err)
	}

	fmt.Println(color.GreenString("✓"), "deleted", user.Name)
	return nil
}

func runAppUserList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := openManager(cfg, false)
	if err != nil {
		return err
	}
	defer m.Close()

	users, err := m.AppUsers().List(cmd.Context())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("app user pool is empty")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Box User ID", "Name", "Login", "Created"})
	for _, u := range users {
		t.AppendRow(table.Row{u.BoxUserID, u.Name, u.Login,
			u.CreatedAt.Format("2006-01-02 15:04:05")})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}
