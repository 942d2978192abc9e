package main

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset terminally-failed items for another run",
	Long: `Flip every item whose status is a CAN_NOT_* failure back to
BEFORE_PROCESS so the next 'fixer fix' run retries it. COMPLETE items are
never touched.`,
	RunE: runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := openManager(cfg, false)
	if err != nil {
		return err
	}
	defer m.Close()

	var confirmed bool
	prompt := &survey.Confirm{
		Message: "Reset all failed items to BEFORE_PROCESS?",
	}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return err
	}
	if !confirmed {
		fmt.Println("aborted")
		return nil
	}

	reset, err := m.FixItems().ResetFailed(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Println(color.GreenString("✓"), "reset", reset, "items")
	return nil
}
